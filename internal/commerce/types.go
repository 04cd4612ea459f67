package commerce

import (
	"errors"
	"time"
)

// Invoice statuses. Pending is the only live status: once an invoice reaches
// a terminal status no further events are ever published for it.
const (
	StatusPending = "Pending"
	StatusPaid    = "Paid"
	StatusExpired = "Expired"
	StatusInvalid = "Invalid"
)

// IsTerminalStatus reports whether no further transitions can happen.
func IsTerminalStatus(status string) bool {
	return status != StatusPending
}

// Wallet holds key material for one currency and belongs directly to a user.
type Wallet struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	XPub      string    `json:"xpub"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a merchant storefront funded through a wallet.
type Store struct {
	ID        int64     `json:"id"`
	WalletID  int64     `json:"wallet_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice is a payment request issued by a store. Amounts are decimal
// strings in major units, passed through from the payment provider untouched
// (no floats).
type Invoice struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Price     string    `json:"price"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	OrderID   string    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound      = errors.New("commerce: not found")
	ErrConflict      = errors.New("commerce: constraint violation")
	ErrInvalidInput  = errors.New("commerce: invalid input")
	ErrInvalidStatus = errors.New("commerce: invalid status")
)
