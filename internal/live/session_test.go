package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paygate/internal/auth"
	"paygate/internal/broker"
	"paygate/internal/commerce"
)

type fixture struct {
	t        *testing.T
	srv      *httptest.Server
	brk      *broker.Memory
	auth     *auth.Service
	store    *auth.InMemoryStore
	entities *commerce.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	brk := broker.NewMemory()
	store := auth.NewInMemoryStore()
	entities := commerce.NewInMemory()
	eval := auth.NewService(store)

	mgr := NewManager(brk)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/wallets/", mgr.Handler(WalletPolicy(eval, entities)))
	mux.HandleFunc("/ws/invoices/", mgr.Handler(InvoicePolicy(entities)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{t: t, srv: srv, brk: brk, auth: eval, store: store, entities: entities}
}

func (f *fixture) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + path
}

func (f *fixture) dial(path string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(path), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (f *fixture) user(email string, scopes ...string) (*auth.User, *auth.Token) {
	f.t.Helper()
	ctx := context.Background()
	user, err := f.auth.Register(ctx, email, "pw")
	require.NoError(f.t, err)
	token, err := f.auth.IssueToken(ctx, auth.IssueRequest{User: user, Scopes: auth.NewScopeSet(scopes...)})
	require.NoError(f.t, err)
	return user, token
}

func (f *fixture) wallet(userID int64) *commerce.Wallet {
	f.t.Helper()
	w := &commerce.Wallet{UserID: userID, Name: "hot", Currency: "btc", XPub: "xpub"}
	require.NoError(f.t, f.entities.CreateWallet(context.Background(), w))
	return w
}

func (f *fixture) invoice(status string) *commerce.Invoice {
	f.t.Helper()
	ctx := context.Background()
	user, _ := f.user("owner+" + status + "@example.com")
	w := f.wallet(user.ID)
	st := &commerce.Store{WalletID: w.ID, Name: "shop"}
	require.NoError(f.t, f.entities.CreateStore(ctx, st))
	inv := &commerce.Invoice{StoreID: st.ID, Price: "5", Currency: "btc", Status: status}
	require.NoError(f.t, f.entities.CreateInvoice(ctx, inv))
	return inv
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	return closeErr.Code
}

func TestWalletSessionWithoutCredential(t *testing.T) {
	f := newFixture(t)
	user, _ := f.user("a@example.com", auth.ScopeWalletManagement)
	w := f.wallet(user.ID)

	conn, err := f.dial("/ws/wallets/" + itoa(w.ID))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
	assert.Equal(t, 0, f.brk.Subscribers(broker.WalletTopic(w.ID)))
}

func TestWalletSessionInvalidCredential(t *testing.T) {
	f := newFixture(t)
	user, _ := f.user("a@example.com", auth.ScopeWalletManagement)
	w := f.wallet(user.ID)

	conn, err := f.dial("/ws/wallets/" + itoa(w.ID) + "?token=bogus")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
	assert.Equal(t, 0, f.brk.Subscribers(broker.WalletTopic(w.ID)))
}

func TestWalletSessionInsufficientScope(t *testing.T) {
	f := newFixture(t)
	user, token := f.user("a@example.com", auth.ScopeTokenManagement)
	w := f.wallet(user.ID)

	conn, err := f.dial("/ws/wallets/" + itoa(w.ID) + "?token=" + token.ID)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
	assert.Equal(t, 0, f.brk.Subscribers(broker.WalletTopic(w.ID)))
}

func TestWalletSessionNonOwner(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.user("owner@example.com", auth.ScopeWalletManagement)
	w := f.wallet(owner.ID)
	_, intruderToken := f.user("intruder@example.com", auth.ScopeWalletManagement)

	conn, err := f.dial("/ws/wallets/" + itoa(w.ID) + "?token=" + intruderToken.ID)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
	assert.Equal(t, 0, f.brk.Subscribers(broker.WalletTopic(w.ID)))
}

func TestWalletSessionMalformedID(t *testing.T) {
	f := newFixture(t)
	conn, err := f.dial("/ws/wallets/not-a-number")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
}

func TestWalletSessionMissingWallet(t *testing.T) {
	f := newFixture(t)
	_, token := f.user("a@example.com", auth.ScopeWalletManagement)

	conn, err := f.dial("/ws/wallets/9999?token=" + token.ID)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
}

func TestWalletSessionRelayAndCleanup(t *testing.T) {
	f := newFixture(t)
	owner, token := f.user("owner@example.com", auth.ScopeWalletManagement)
	w := f.wallet(owner.ID)
	topic := broker.WalletTopic(w.ID)

	conn, err := f.dial("/ws/wallets/" + itoa(w.ID) + "?token=" + token.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.brk.Subscribers(topic) == 1 },
		2*time.Second, 10*time.Millisecond)

	data := json.RawMessage(`{"balance":"1.25","delta":"+0.25"}`)
	require.NoError(t, f.brk.Publish(context.Background(), topic, broker.Event{ID: "e1", Data: data}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(msg))

	// Peer disconnect must tear the subscription down; a channel that never
	// empties is a leak.
	conn.Close()
	require.Eventually(t, func() bool { return f.brk.Subscribers(topic) == 0 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return f.brk.Channels() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestInvoiceSessionTerminalShortCircuit(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(commerce.StatusPaid)

	conn, err := f.dial("/ws/invoices/" + itoa(inv.ID))
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Paid"}`, string(msg))

	assert.Equal(t, websocket.CloseNormalClosure, readCloseCode(t, conn))
	assert.Equal(t, 0, f.brk.Subscribers(broker.InvoiceTopic(inv.ID)))
}

func TestInvoiceSessionUnknownInvoice(t *testing.T) {
	f := newFixture(t)
	conn, err := f.dial("/ws/invoices/424242")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, conn))
}

func TestInvoiceFanOutSameOrder(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(commerce.StatusPending)
	topic := broker.InvoiceTopic(inv.ID)

	c1, err := f.dial("/ws/invoices/" + itoa(inv.ID))
	require.NoError(t, err)
	defer c1.Close()
	c2, err := f.dial("/ws/invoices/" + itoa(inv.ID))
	require.NoError(t, err)
	defer c2.Close()

	require.Eventually(t, func() bool { return f.brk.Subscribers(topic) == 2 },
		2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, f.brk.Publish(ctx, topic, broker.Event{ID: "e1", Data: json.RawMessage(`{"status":"confirmed"}`)}))
	require.NoError(t, f.brk.Publish(ctx, topic, broker.Event{ID: "e2", Data: json.RawMessage(`{"status":"Paid"}`)}))

	for _, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, first, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"confirmed"}`, string(first))
		_, second, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"Paid"}`, string(second))
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
