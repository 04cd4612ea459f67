package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"paygate/internal/auth"
	"paygate/internal/broker"
	"paygate/internal/coins"
	"paygate/internal/commerce"
	"paygate/internal/live"
	"paygate/internal/obs"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	entities commerce.Service
	coins    *coins.Registry
	broker   broker.Broker
	live     *live.Manager

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, authSvc *auth.Service, entities commerce.Service, registry *coins.Registry, b broker.Broker) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       authSvc,
		entities:   entities,
		coins:      registry,
		broker:     b,
		live:       live.NewManager(b),
		rateBurst:  20,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// users
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/me", a.handleCurrentUser)

	// capability tokens
	a.mux.HandleFunc("/v1/token", a.handleTokenCollection)
	a.mux.HandleFunc("/v1/token/current", a.handleTokenCurrent)
	a.mux.HandleFunc("/v1/token/count", a.handleTokenCount)
	a.mux.HandleFunc("/v1/token/", a.handleTokenResource)

	// wallets
	a.mux.HandleFunc("/v1/wallets", a.handleWalletsCollection)
	a.mux.HandleFunc("/v1/wallets/", a.handleWalletResource)
	a.mux.HandleFunc("/v1/wallet_history/", a.handleWalletHistory)

	// stores and invoices
	a.mux.HandleFunc("/v1/stores", a.handleStoresCollection)
	a.mux.HandleFunc("/v1/stores/", a.handleStoreResource)
	a.mux.HandleFunc("/v1/invoices", a.handleInvoicesCollection)
	a.mux.HandleFunc("/v1/invoices/order_id/", a.handleInvoiceByOrderID)
	a.mux.HandleFunc("/v1/invoices/", a.handleInvoiceResource)

	// exchange rate
	a.mux.HandleFunc("/v1/rate", a.handleRate)

	// live notification sessions
	a.mux.HandleFunc("/ws/wallets/", a.live.Handler(live.WalletPolicy(authSvc, entities)))
	a.mux.HandleFunc("/ws/invoices/", a.live.Handler(live.InvoicePolicy(entities)))

	// корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = Logging(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "paygate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"name":    "paygate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.coins != nil {
		payload["currencies"] = a.coins.Currencies()
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleDomainError maps sentinel errors onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, commerce.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidScope),
		errors.Is(err, auth.ErrConflict),
		errors.Is(err, commerce.ErrConflict),
		errors.Is(err, commerce.ErrInvalidStatus):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, commerce.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
