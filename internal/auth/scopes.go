package auth

import (
	"encoding/json"
	"sort"
	"strings"
)

// Permission scopes understood by the API. Scope names travel inside
// capability tokens, so renaming one is a breaking change.
const (
	ScopeFullControl       = "full_control"
	ScopeServerManagement  = "server_management"
	ScopeTokenManagement   = "token_management"
	ScopeWalletManagement  = "wallet_management"
	ScopeStoreManagement   = "store_management"
	ScopeInvoiceManagement = "invoice_management"
)

// ScopeSet is a value type holding a set of permission scopes.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set from the given scope names, dropping empties.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

// ParseScopes parses a space-separated scope string (OAuth style, also the
// storage encoding).
func ParseScopes(raw string) ScopeSet {
	return NewScopeSet(strings.Fields(raw)...)
}

// Has reports whether the set contains the scope.
func (s ScopeSet) Has(scope string) bool {
	_, ok := s[scope]
	return ok
}

// SubsetOf reports whether every scope in s is present in other.
func (s ScopeSet) SubsetOf(other ScopeSet) bool {
	for scope := range s {
		if !other.Has(scope) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s ScopeSet) Clone() ScopeSet {
	out := make(ScopeSet, len(s))
	for scope := range s {
		out[scope] = struct{}{}
	}
	return out
}

// Without returns a copy with the given scope removed.
func (s ScopeSet) Without(scope string) ScopeSet {
	out := s.Clone()
	delete(out, scope)
	return out
}

// List returns the scopes sorted, for stable serialization.
func (s ScopeSet) List() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// String renders the storage encoding (space-separated, sorted).
func (s ScopeSet) String() string {
	return strings.Join(s.List(), " ")
}

// MarshalJSON encodes the set as a sorted array of scope names.
func (s ScopeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON accepts an array of scope names.
func (s *ScopeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewScopeSet(names...)
	return nil
}

// Escalate decides the final scope set for a new capability token. The
// policy is pure data-in data-out, independent of persistence:
//
//   - grantor is the scope set of the token used to request issuance, or nil
//     for a fresh password login (a login is unconstrained).
//   - A non-superuser may never receive the reserved server_management scope:
//     with strict the request fails with ErrInvalidScope, otherwise the scope
//     is silently stripped.
//   - Unless the grantor token carries full_control, the requested scopes
//     must be a subset of the grantor's. Superusers bypass this subset rule.
func Escalate(grantor, requested ScopeSet, superuser, strict bool) (ScopeSet, error) {
	final := requested.Clone()

	if final.Has(ScopeServerManagement) && !superuser {
		if strict {
			return nil, ErrInvalidScope
		}
		final = final.Without(ScopeServerManagement)
	}

	if grantor != nil && !grantor.Has(ScopeFullControl) && !superuser {
		if !final.SubsetOf(grantor) {
			return nil, ErrForbidden
		}
	}

	return final, nil
}
