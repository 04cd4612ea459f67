package auth

import "time"

// User is an account owning wallets, stores and capability tokens.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is a capability credential: an opaque id bound to an owner and a
// bounded scope set. The id itself is the bearer secret, which is what makes
// owner-deletion cascade and explicit revocation possible (unlike a signed
// stateless token).
type Token struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Permissions ScopeSet  `json:"permissions"`
	AppID       string    `json:"app_id,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Principal is the result of authentication: the acting user plus the token
// that was presented. Token is nil only for principals constructed from a
// fresh password login before a token is issued.
type Principal struct {
	User  *User
	Token *Token
}

// HasScope reports whether the principal may perform operations gated by the
// given scopes. A token carrying full_control, or a superuser, passes every
// check. This is the single authorization predicate for both the plain HTTP
// surface and the live notification sessions.
func (p Principal) HasScope(required ...string) bool {
	if p.User == nil {
		return false
	}
	if p.User.IsSuperuser {
		return true
	}
	if p.Token == nil {
		return false
	}
	if p.Token.Permissions.Has(ScopeFullControl) {
		return true
	}
	for _, scope := range required {
		if !p.Token.Permissions.Has(scope) {
			return false
		}
	}
	return true
}
