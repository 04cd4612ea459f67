package pg

import (
	"context"
	"strconv"
	"time"

	"paygate/internal/auth"
)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users(email, password_hash, is_superuser, created_at)
		values ($1,$2,$3,$4) returning id
	`, u.Email, u.PasswordHash, u.IsSuperuser, u.CreatedAt).Scan(&u.ID)
	return authErr(err)
}

func (s *Store) FindUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, is_superuser, created_at
		from users where id=$1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, is_superuser, created_at
		from users where email=$1
	`, email))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsSuperuser, &u.CreatedAt); err != nil {
		return nil, authErr(err)
	}
	return &u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	// Tokens go with the account via the FK cascade.
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return authErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) CreateToken(ctx context.Context, t *auth.Token) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into tokens(id, user_id, permissions, app_id, redirect_url, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, t.ID, t.UserID, t.Permissions.String(), t.AppID, t.RedirectURL, t.CreatedAt)
	return authErr(err)
}

func (s *Store) FindToken(ctx context.Context, id string) (*auth.Token, error) {
	return s.scanToken(s.db.QueryRowContext(ctx, `
		select id, user_id, permissions, app_id, redirect_url, created_at
		from tokens where id=$1
	`, id))
}

func (s *Store) scanToken(row rowScanner) (*auth.Token, error) {
	var t auth.Token
	var perms string
	if err := row.Scan(&t.ID, &t.UserID, &perms, &t.AppID, &t.RedirectURL, &t.CreatedAt); err != nil {
		return nil, authErr(err)
	}
	t.Permissions = auth.ParseScopes(perms)
	return &t, nil
}

func (s *Store) UpdateToken(ctx context.Context, t *auth.Token) error {
	res, err := s.db.ExecContext(ctx, `
		update tokens set app_id=$2, redirect_url=$3 where id=$1
	`, t.ID, t.AppID, t.RedirectURL)
	if err != nil {
		return authErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tokens where id=$1`, id)
	if err != nil {
		return authErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) ListTokens(ctx context.Context, userID int64, f auth.TokenFilter) ([]*auth.Token, error) {
	// The permissions filter is applied in Go; the column is a space
	// separated scope list and a LIKE against it would match substrings.
	query := `
		select id, user_id, permissions, app_id, redirect_url, created_at
		from tokens where user_id=$1`
	args := []any{userID}
	if f.AppID != "" {
		args = append(args, f.AppID)
		query += ` and app_id=$2`
	}
	if f.RedirectURL != "" {
		args = append(args, f.RedirectURL)
		query += ` and redirect_url=$` + strconv.Itoa(len(args))
	}
	query += ` order by id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, authErr(err)
	}
	defer rows.Close()

	var out []*auth.Token
	for rows.Next() {
		t, err := s.scanToken(rows)
		if err != nil {
			return nil, err
		}
		if !hasAllScopes(t, f.Permissions) {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func hasAllScopes(t *auth.Token, required []string) bool {
	for _, scope := range required {
		if !t.Permissions.Has(scope) {
			return false
		}
	}
	return true
}
