package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"paygate/internal/ids"
)

// Service is the authorization evaluator. Both the conventional request
// handlers and the live session manager go through the same instance, so the
// policy cannot drift between the two entry points.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the evaluator on top of a token/user store.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Authenticate resolves a presented credential (a capability token id) to
// the acting principal. Any failure collapses into ErrUnauthenticated so the
// caller cannot distinguish a missing token from a revoked one.
func (s *Service) Authenticate(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrUnauthenticated
	}
	token, err := s.store.FindToken(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	user, err := s.store.FindUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	return Principal{User: user, Token: token}, nil
}

// Authorize succeeds iff the principal covers every required scope (see
// Principal.HasScope for the full_control and superuser bypasses).
func (s *Service) Authorize(p Principal, required ...string) error {
	if p.User == nil {
		return ErrUnauthenticated
	}
	if !p.HasScope(required...) {
		return ErrForbidden
	}
	return nil
}

// Login verifies email/password credentials and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Register creates a new user account with a hashed password.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the user. The store cascades to the user's tokens,
// which invalidates every credential the account ever issued at once.
func (s *Service) DeleteAccount(ctx context.Context, owner *User) error {
	if owner == nil {
		return ErrInvalidInput
	}
	return s.store.DeleteUser(ctx, owner.ID)
}

// IssueRequest describes a token issuance. Grantor is the token used to
// request it, or nil when the request came from a fresh password login.
type IssueRequest struct {
	User        *User
	Grantor     *Token
	Scopes      ScopeSet
	AppID       string
	RedirectURL string
	Strict      bool
}

// IssueToken applies the escalation policy and durably creates the token.
func (s *Service) IssueToken(ctx context.Context, req IssueRequest) (*Token, error) {
	if req.User == nil {
		return nil, ErrInvalidInput
	}
	var grantorScopes ScopeSet
	if req.Grantor != nil {
		grantorScopes = req.Grantor.Permissions
	}
	final, err := Escalate(grantorScopes, req.Scopes, req.User.IsSuperuser, req.Strict)
	if err != nil {
		return nil, err
	}
	token := &Token{
		ID:          ids.New(),
		UserID:      req.User.ID,
		Permissions: final,
		AppID:       req.AppID,
		RedirectURL: req.RedirectURL,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// RevokeToken deletes one of the owner's tokens. Deleting somebody else's
// token reports ErrNotFound rather than ErrForbidden to avoid leaking which
// token ids exist.
func (s *Service) RevokeToken(ctx context.Context, owner *User, tokenID string) (*Token, error) {
	token, err := s.findOwnedToken(ctx, owner, tokenID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteToken(ctx, token.ID); err != nil {
		return nil, err
	}
	return token, nil
}

// EditToken updates mutable token metadata (app id, redirect url). Scopes
// are immutable after issuance; widening them would bypass Escalate.
func (s *Service) EditToken(ctx context.Context, owner *User, tokenID, appID, redirectURL string) (*Token, error) {
	token, err := s.findOwnedToken(ctx, owner, tokenID)
	if err != nil {
		return nil, err
	}
	token.AppID = appID
	token.RedirectURL = redirectURL
	if err := s.store.UpdateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ListTokens returns the owner's tokens matching the filter.
func (s *Service) ListTokens(ctx context.Context, owner *User, f TokenFilter) ([]*Token, error) {
	if owner == nil {
		return nil, ErrInvalidInput
	}
	return s.store.ListTokens(ctx, owner.ID, f)
}

func (s *Service) findOwnedToken(ctx context.Context, owner *User, tokenID string) (*Token, error) {
	if owner == nil {
		return nil, ErrInvalidInput
	}
	token, err := s.store.FindToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.UserID != owner.ID {
		return nil, ErrNotFound
	}
	return token, nil
}
