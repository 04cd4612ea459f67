package auth

import "context"

// TokenFilter narrows ListTokens. Zero values mean "any".
type TokenFilter struct {
	AppID       string
	RedirectURL string
	Permissions []string // every listed scope must be present
}

// UserStore manages user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id int64) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	// DeleteUser removes the account and cascades to its tokens.
	DeleteUser(ctx context.Context, id int64) error
}

// TokenStore manages capability token records. Create and Delete must be
// durable before returning.
type TokenStore interface {
	CreateToken(ctx context.Context, t *Token) error
	FindToken(ctx context.Context, id string) (*Token, error)
	UpdateToken(ctx context.Context, t *Token) error
	DeleteToken(ctx context.Context, id string) error
	ListTokens(ctx context.Context, userID int64, f TokenFilter) ([]*Token, error)
}

// Store describes the persistence required by the auth subsystem.
type Store interface {
	UserStore
	TokenStore
}
