package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"paygate/internal/commerce"
)

func (s *Store) CreateWallet(ctx context.Context, w *commerce.Wallet) error {
	if w.UserID == 0 || w.Currency == "" {
		return commerce.ErrInvalidInput
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into wallets(user_id, name, currency, xpub, created_at)
		values ($1,$2,$3,$4,$5) returning id
	`, w.UserID, w.Name, w.Currency, w.XPub, w.CreatedAt).Scan(&w.ID)
	return commerceErr(err)
}

func (s *Store) GetWallet(ctx context.Context, id int64) (*commerce.Wallet, error) {
	var w commerce.Wallet
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, name, currency, xpub, created_at
		from wallets where id=$1
	`, id).Scan(&w.ID, &w.UserID, &w.Name, &w.Currency, &w.XPub, &w.CreatedAt)
	if err != nil {
		return nil, commerceErr(err)
	}
	return &w, nil
}

func (s *Store) ListWallets(ctx context.Context, userID int64) ([]*commerce.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, name, currency, xpub, created_at
		from wallets where user_id=$1 order by id
	`, userID)
	if err != nil {
		return nil, commerceErr(err)
	}
	defer rows.Close()

	var out []*commerce.Wallet
	for rows.Next() {
		var w commerce.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.Currency, &w.XPub, &w.CreatedAt); err != nil {
			return nil, commerceErr(err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *Store) CreateStore(ctx context.Context, st *commerce.Store) error {
	if st.WalletID == 0 || st.Name == "" {
		return commerce.ErrInvalidInput
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into stores(wallet_id, name, email, created_at)
		values ($1,$2,$3,$4) returning id
	`, st.WalletID, st.Name, st.Email, st.CreatedAt).Scan(&st.ID)
	return commerceErr(err)
}

func (s *Store) GetStore(ctx context.Context, id int64) (*commerce.Store, error) {
	var st commerce.Store
	err := s.db.QueryRowContext(ctx, `
		select id, wallet_id, name, email, created_at
		from stores where id=$1
	`, id).Scan(&st.ID, &st.WalletID, &st.Name, &st.Email, &st.CreatedAt)
	if err != nil {
		return nil, commerceErr(err)
	}
	return &st, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *commerce.Invoice) error {
	if inv.StoreID == 0 || inv.Price == "" {
		return commerce.ErrInvalidInput
	}
	if inv.Status == "" {
		inv.Status = commerce.StatusPending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into invoices(store_id, price, currency, status, order_id, created_at)
		values ($1,$2,$3,$4,nullif($5,''),$6) returning id
	`, inv.StoreID, inv.Price, inv.Currency, inv.Status, inv.OrderID, inv.CreatedAt).Scan(&inv.ID)
	return commerceErr(err)
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*commerce.Invoice, error) {
	return s.scanInvoice(s.db.QueryRowContext(ctx, `
		select id, store_id, price, currency, status, coalesce(order_id,''), created_at
		from invoices where id=$1
	`, id))
}

func (s *Store) GetInvoiceByOrderID(ctx context.Context, orderID string) (*commerce.Invoice, error) {
	return s.scanInvoice(s.db.QueryRowContext(ctx, `
		select id, store_id, price, currency, status, coalesce(order_id,''), created_at
		from invoices where order_id=$1
	`, orderID))
}

func (s *Store) scanInvoice(row rowScanner) (*commerce.Invoice, error) {
	var inv commerce.Invoice
	err := row.Scan(&inv.ID, &inv.StoreID, &inv.Price, &inv.Currency, &inv.Status, &inv.OrderID, &inv.CreatedAt)
	if err != nil {
		return nil, commerceErr(err)
	}
	return &inv, nil
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id int64, status string) (*commerce.Invoice, error) {
	switch status {
	case commerce.StatusPending, commerce.StatusPaid, commerce.StatusExpired, commerce.StatusInvalid:
	default:
		return nil, commerce.ErrInvalidStatus
	}
	// The status guard lives in the update predicate so concurrent
	// transitions cannot both leave Pending.
	inv, err := s.scanInvoice(s.db.QueryRowContext(ctx, `
		update invoices set status=$2
		where id=$1 and status=$3
		returning id, store_id, price, currency, status, coalesce(order_id,''), created_at
	`, id, status, commerce.StatusPending))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, commerce.ErrNotFound) {
		return nil, err
	}
	// No row updated: either the invoice is gone or already terminal.
	var current string
	scanErr := s.db.QueryRowContext(ctx, `select status from invoices where id=$1`, id).Scan(&current)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, commerce.ErrNotFound
	}
	if scanErr != nil {
		return nil, commerceErr(scanErr)
	}
	return nil, commerce.ErrInvalidStatus
}

func (s *Store) OwnerOfWallet(ctx context.Context, walletID int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, `select user_id from wallets where id=$1`, walletID).Scan(&owner)
	if err != nil {
		return 0, commerceErr(err)
	}
	return owner, nil
}

func (s *Store) OwnerOfInvoice(ctx context.Context, invoiceID int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, `
		select w.user_id
		from invoices i
		join stores s on s.id = i.store_id
		join wallets w on w.id = s.wallet_id
		where i.id=$1
	`, invoiceID).Scan(&owner)
	if err != nil {
		return 0, commerceErr(err)
	}
	return owner, nil
}
