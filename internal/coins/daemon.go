package coins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Daemon is a Provider speaking the electrum-style JSON-RPC over HTTP
// protocol the wallet daemons expose.
type Daemon struct {
	url    string
	client *http.Client
}

// NewDaemon points a provider at a daemon endpoint.
func NewDaemon(url string) *Daemon {
	return &Daemon{
		url: url,
		client: &http.Client{
			// Daemons proxy to the network and can be slow; callers add
			// tighter per-request deadlines via ctx where needed.
			Timeout: 30 * time.Second,
		},
	}
}

var _ Provider = (*Daemon)(nil)

type rpcRequest struct {
	ID     int            `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (d *Daemon) call(ctx context.Context, method string, params map[string]any, out any) error {
	body, err := json.Marshal(rpcRequest{ID: 0, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("coins: daemon call %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coins: daemon call %s: status %d", method, resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("coins: daemon call %s: %w", method, err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("coins: daemon call %s: %s (code %d)", method, rpc.Error.Message, rpc.Error.Code)
	}
	if out != nil {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("coins: daemon call %s: %w", method, err)
		}
	}
	return nil
}

func (d *Daemon) Balance(ctx context.Context, xpub string) (Balance, error) {
	var bal Balance
	err := d.call(ctx, "balance", map[string]any{"xpub": xpub}, &bal)
	return bal, err
}

func (d *Daemon) History(ctx context.Context, xpub string) ([]Tx, error) {
	var raw []struct {
		TxHash string `json:"tx_hash"`
		Amount string `json:"amount"`
		Date   int64  `json:"date"` // unix seconds
	}
	if err := d.call(ctx, "history", map[string]any{"xpub": xpub}, &raw); err != nil {
		return nil, err
	}
	out := make([]Tx, 0, len(raw))
	for _, item := range raw {
		out = append(out, Tx{
			TxHash: item.TxHash,
			Amount: item.Amount,
			Date:   time.Unix(item.Date, 0).UTC(),
		})
	}
	return out, nil
}

func (d *Daemon) Rate(ctx context.Context, fiat string) (string, error) {
	var rate string
	err := d.call(ctx, "exchange_rate", map[string]any{"fiat": fiat}, &rate)
	return rate, err
}
