// Package live manages long-lived notification sessions. Each session walks
// Connecting -> Authenticating -> Authorizing -> Subscribed -> Closed;
// cleanup of the broker subscription is guaranteed on every exit path, not
// only the happy one.
package live

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"paygate/internal/broker"
	"paygate/internal/obs"
)

// Manager owns the transport settings shared by every session.
type Manager struct {
	broker   broker.Broker
	upgrader websocket.Upgrader

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// NewManager wires sessions onto a broker.
func NewManager(b broker.Broker) *Manager {
	return &Manager{
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Notification endpoints are consumed by merchant dashboards and
			// customer checkout pages on arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Handler returns the HTTP handler serving sessions under the given policy.
// The entity id is the trailing path segment; the credential, when the
// policy wants one, is the `token` query parameter.
func (m *Manager) Handler(policy Policy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			return
		}
		defer conn.Close()

		id, err := entityID(r.URL.Path)
		if err != nil {
			m.closeWith(conn, websocket.ClosePolicyViolation, "malformed entity id")
			return
		}
		credential := r.URL.Query().Get("token")

		ctx := r.Context()
		prep, err := policy.Prepare(ctx, credential, id)
		if err != nil {
			// Setup failures are never retried and leave no subscription
			// behind; the close code is the only detail disclosed.
			m.closeWith(conn, websocket.ClosePolicyViolation, "policy violation")
			return
		}

		obs.SessionOpened(policy.Kind)
		defer obs.SessionClosed(policy.Kind)
		obs.LogEvent(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"msg":   "live session open",
			"kind":  policy.Kind,
			"id":    id,
			"addr":  r.RemoteAddr,
			"final": prep.Terminal,
		})

		if len(prep.Greeting) > 0 {
			if err := m.write(conn, prep.Greeting); err != nil {
				return
			}
		}
		if prep.Terminal {
			m.closeWith(conn, websocket.CloseNormalClosure, "")
			return
		}

		sub, err := m.broker.Subscribe(ctx, policy.Topic(id))
		if err != nil {
			m.closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
			return
		}
		// The one subscription this session holds. Unsubscribe is
		// idempotent, so the deferred call is safe regardless of how the
		// relay loop ends.
		defer sub.Unsubscribe()

		m.relay(conn, sub)
	}
}

// relay pushes broker events to the peer until the peer disconnects or the
// subscription's channel closes. It blocks only on its own subscription and
// transport, never on other sessions.
func (m *Manager) relay(conn *websocket.Conn, sub broker.Subscription) {
	readErr := make(chan error, 1)
	go func() {
		// The endpoints accept no inbound application messages; the read
		// loop exists to detect peer disconnect and to service pongs.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(m.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.pongTimeout))
	})

	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				m.closeWith(conn, websocket.CloseGoingAway, "channel closed")
				return
			}
			if err := m.write(conn, evt.Data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readErr:
			return
		}
	}
}

func (m *Manager) write(conn *websocket.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (m *Manager) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func entityID(path string) (int64, error) {
	segment := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		segment = path[i+1:]
	}
	return strconv.ParseInt(segment, 10, 64)
}
