// Package coins abstracts the per-currency wallet daemons. Providers are
// opaque and possibly slow; callers bound them with context deadlines.
package coins

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Balance is a confirmed/unconfirmed pair of decimal strings in major
// units, passed through from the daemon untouched (no floats).
type Balance struct {
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
}

// Tx is one entry of a wallet's transaction history.
type Tx struct {
	TxHash string    `json:"tx_hash"`
	Amount string    `json:"amount"`
	Date   time.Time `json:"date"`
}

// Provider talks to one currency's daemon.
type Provider interface {
	// Balance returns the confirmed balance for the given key material.
	Balance(ctx context.Context, xpub string) (Balance, error)
	// History lists wallet transactions, newest first.
	History(ctx context.Context, xpub string) ([]Tx, error)
	// Rate returns the fiat exchange rate as a decimal string.
	Rate(ctx context.Context, fiat string) (string, error)
}

// ErrUnknownCurrency is returned for currencies with no registered provider.
var ErrUnknownCurrency = errors.New("coins: unknown currency")

// Registry maps currency codes to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register installs a provider for a currency code (lowercased).
func (r *Registry) Register(currency string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(currency)] = p
}

// Get resolves the provider for a currency.
func (r *Registry) Get(currency string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(currency)]
	if !ok {
		return nil, ErrUnknownCurrency
	}
	return p, nil
}

// Currencies lists registered currency codes, sorted.
func (r *Registry) Currencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for c := range r.providers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
