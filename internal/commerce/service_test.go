package commerce

import (
	"context"
	"errors"
	"testing"
)

func seed(t *testing.T, s *InMemory, userID int64) (*Wallet, *Store, *Invoice) {
	t.Helper()
	ctx := context.Background()
	w := &Wallet{UserID: userID, Name: "hot", Currency: "btc", XPub: "xpub-test"}
	if err := s.CreateWallet(ctx, w); err != nil {
		t.Fatal(err)
	}
	st := &Store{WalletID: w.ID, Name: "shop"}
	if err := s.CreateStore(ctx, st); err != nil {
		t.Fatal(err)
	}
	inv := &Invoice{StoreID: st.ID, Price: "10.50", Currency: "btc", OrderID: "ord-1"}
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatal(err)
	}
	return w, st, inv
}

func TestOwnerChain(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w, _, inv := seed(t, s, 7)

	owner, err := s.OwnerOfWallet(ctx, w.ID)
	if err != nil || owner != 7 {
		t.Fatalf("wallet owner = %d, %v", owner, err)
	}
	owner, err = s.OwnerOfInvoice(ctx, inv.ID)
	if err != nil || owner != 7 {
		t.Fatalf("invoice owner = %d, %v", owner, err)
	}
	if _, err := s.OwnerOfInvoice(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInvoiceDefaultsToPending(t *testing.T) {
	s := NewInMemory()
	_, _, inv := seed(t, s, 1)
	if inv.Status != StatusPending {
		t.Fatalf("status = %q", inv.Status)
	}
	if IsTerminalStatus(inv.Status) {
		t.Fatal("Pending must not be terminal")
	}
}

func TestSetInvoiceStatusTerminalIsFinal(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_, _, inv := seed(t, s, 1)

	upd, err := s.SetInvoiceStatus(ctx, inv.ID, StatusPaid)
	if err != nil {
		t.Fatal(err)
	}
	if upd.Status != StatusPaid || !IsTerminalStatus(upd.Status) {
		t.Fatalf("status = %q", upd.Status)
	}
	if _, err := s.SetInvoiceStatus(ctx, inv.ID, StatusExpired); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("terminal invoice accepted a transition: %v", err)
	}
	if _, err := s.SetInvoiceStatus(ctx, inv.ID, "Weird"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unknown status accepted: %v", err)
	}
}

func TestOrderIDLookupAndUniqueness(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	_, st, inv := seed(t, s, 1)

	got, err := s.GetInvoiceByOrderID(ctx, "ord-1")
	if err != nil || got.ID != inv.ID {
		t.Fatalf("lookup: %v", err)
	}
	dup := &Invoice{StoreID: st.ID, Price: "1", Currency: "btc", OrderID: "ord-1"}
	if err := s.CreateInvoice(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateStoreRequiresWallet(t *testing.T) {
	s := NewInMemory()
	if err := s.CreateStore(context.Background(), &Store{WalletID: 42, Name: "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
