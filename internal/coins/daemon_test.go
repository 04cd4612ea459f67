package coins

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fakeDaemon(t *testing.T, handler func(method string, params map[string]any) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"result": result}
		if rpcErr != nil {
			resp = map[string]any{"error": rpcErr}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestDaemonBalance(t *testing.T) {
	srv := fakeDaemon(t, func(method string, params map[string]any) (any, *rpcError) {
		if method != "balance" {
			t.Fatalf("method = %q", method)
		}
		if params["xpub"] != "xpub-test" {
			t.Fatalf("params = %v", params)
		}
		return Balance{Confirmed: "1.5", Unconfirmed: "0.1"}, nil
	})
	defer srv.Close()

	bal, err := NewDaemon(srv.URL).Balance(context.Background(), "xpub-test")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Confirmed != "1.5" {
		t.Fatalf("confirmed = %q", bal.Confirmed)
	}
}

func TestDaemonHistory(t *testing.T) {
	srv := fakeDaemon(t, func(method string, params map[string]any) (any, *rpcError) {
		return []map[string]any{
			{"tx_hash": "aa", "amount": "0.5", "date": 1700000000},
			{"tx_hash": "bb", "amount": "-0.2", "date": 1700000100},
		}, nil
	})
	defer srv.Close()

	txs, err := NewDaemon(srv.URL).History(context.Background(), "xpub-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[0].TxHash != "aa" {
		t.Fatalf("txs = %+v", txs)
	}
	if txs[1].Date != time.Unix(1700000100, 0).UTC() {
		t.Fatalf("date = %v", txs[1].Date)
	}
}

func TestDaemonRPCError(t *testing.T) {
	srv := fakeDaemon(t, func(method string, params map[string]any) (any, *rpcError) {
		return nil, &rpcError{Code: -32601, Message: "unknown method"}
	})
	defer srv.Close()

	if _, err := NewDaemon(srv.URL).Rate(context.Background(), "usd"); err == nil {
		t.Fatal("expected error from rpc error response")
	}
}

func TestDaemonHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches for client disconnect and
		// cancels r.Context(); otherwise this handler blocks forever and
		// srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewDaemon(srv.URL).Balance(ctx, "x"); err == nil {
		t.Fatal("expected deadline error")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	d := NewDaemon("http://localhost:5000")
	reg.Register("BTC", d)

	if _, err := reg.Get("btc"); err != nil {
		t.Fatalf("lookup is case-insensitive: %v", err)
	}
	if _, err := reg.Get("doge"); err != ErrUnknownCurrency {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
	if got := reg.Currencies(); len(got) != 1 || got[0] != "btc" {
		t.Fatalf("currencies = %v", got)
	}
}
