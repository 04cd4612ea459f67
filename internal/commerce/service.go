package commerce

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Service defines entity operations used by request handlers and by the live
// notification layer. Absent entities surface as ErrNotFound.
type Service interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id int64) (*Wallet, error)
	ListWallets(ctx context.Context, userID int64) ([]*Wallet, error)

	CreateStore(ctx context.Context, s *Store) error
	GetStore(ctx context.Context, id int64) (*Store, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceByOrderID(ctx context.Context, orderID string) (*Invoice, error)
	// SetInvoiceStatus transitions the invoice and returns the updated row.
	// Transitions out of a terminal status fail with ErrInvalidStatus.
	SetInvoiceStatus(ctx context.Context, id int64, status string) (*Invoice, error)

	// OwnerOfWallet resolves the owning user id.
	OwnerOfWallet(ctx context.Context, walletID int64) (int64, error)
	// OwnerOfInvoice walks invoice -> store -> wallet -> user.
	OwnerOfInvoice(ctx context.Context, invoiceID int64) (int64, error)
}

// InMemory implements Service with in-process concurrency safety. Used in
// tests and for running the API without postgres.
type InMemory struct {
	mu       sync.RWMutex
	nextID   int64
	wallets  map[int64]*Wallet
	stores   map[int64]*Store
	invoices map[int64]*Invoice
	orders   map[string]int64
}

// NewInMemory creates an empty entity store.
func NewInMemory() *InMemory {
	return &InMemory{
		wallets:  make(map[int64]*Wallet),
		stores:   make(map[int64]*Store),
		invoices: make(map[int64]*Invoice),
		orders:   make(map[string]int64),
	}
}

var _ Service = (*InMemory)(nil)

func (s *InMemory) CreateWallet(ctx context.Context, w *Wallet) error {
	if w.UserID == 0 || w.Currency == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	w.ID = s.nextID
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	cp := *w
	s.wallets[w.ID] = &cp
	return nil
}

func (s *InMemory) GetWallet(ctx context.Context, id int64) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *InMemory) ListWallets(ctx context.Context, userID int64) ([]*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CreateStore(ctx context.Context, st *Store) error {
	if st.WalletID == 0 || st.Name == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[st.WalletID]; !ok {
		return ErrConflict
	}
	s.nextID++
	st.ID = s.nextID
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	cp := *st
	s.stores[st.ID] = &cp
	return nil
}

func (s *InMemory) GetStore(ctx context.Context, id int64) (*Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *InMemory) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.StoreID == 0 || inv.Price == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[inv.StoreID]; !ok {
		return ErrConflict
	}
	if inv.OrderID != "" {
		if _, ok := s.orders[inv.OrderID]; ok {
			return ErrConflict
		}
	}
	s.nextID++
	inv.ID = s.nextID
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	if inv.OrderID != "" {
		s.orders[inv.OrderID] = inv.ID
	}
	return nil
}

func (s *InMemory) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemory) GetInvoiceByOrderID(ctx context.Context, orderID string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.invoices[id]
	return &cp, nil
}

func (s *InMemory) SetInvoiceStatus(ctx context.Context, id int64, status string) (*Invoice, error) {
	switch status {
	case StatusPending, StatusPaid, StatusExpired, StatusInvalid:
	default:
		return nil, ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	if IsTerminalStatus(inv.Status) {
		return nil, ErrInvalidStatus
	}
	inv.Status = status
	cp := *inv
	return &cp, nil
}

func (s *InMemory) OwnerOfWallet(ctx context.Context, walletID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return 0, ErrNotFound
	}
	return w.UserID, nil
}

func (s *InMemory) OwnerOfInvoice(ctx context.Context, invoiceID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[invoiceID]
	if !ok {
		return 0, ErrNotFound
	}
	st, ok := s.stores[inv.StoreID]
	if !ok {
		return 0, ErrNotFound
	}
	w, ok := s.wallets[st.WalletID]
	if !ok {
		return 0, ErrNotFound
	}
	return w.UserID, nil
}
