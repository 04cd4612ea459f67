package auth

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore implements Store with in-process concurrency safety. Used in
// tests and for running the API without postgres.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*User
	emails map[string]int64
	tokens map[string]*Token
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:  make(map[int64]*User),
		emails: make(map[string]int64),
		tokens: make(map[string]*Token),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[u.Email]; ok {
		return ErrConflict
	}
	s.nextID++
	u.ID = s.nextID
	cp := *u
	s.users[u.ID] = &cp
	s.emails[u.Email] = u.ID
	return nil
}

func (s *InMemoryStore) FindUser(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// DeleteUser removes the account and cascades to its tokens, mirroring the
// foreign-key cascade of the postgres store.
func (s *InMemoryStore) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.emails, u.Email)
	delete(s.users, id)
	for tid, t := range s.tokens {
		if t.UserID == id {
			delete(s.tokens, tid)
		}
	}
	return nil
}

// SetSuperuser flips the superuser flag; test helper matching the manual
// SQL update an operator would run in production.
func (s *InMemoryStore) SetSuperuser(id int64, super bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.IsSuperuser = super
	}
}

func (s *InMemoryStore) CreateToken(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.users[t.UserID]; !ok {
		return ErrConflict
	}
	cp := *t
	cp.Permissions = t.Permissions.Clone()
	s.tokens[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindToken(ctx context.Context, id string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Permissions = t.Permissions.Clone()
	return &cp, nil
}

func (s *InMemoryStore) UpdateToken(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tokens[t.ID]
	if !ok {
		return ErrNotFound
	}
	cur.AppID = t.AppID
	cur.RedirectURL = t.RedirectURL
	return nil
}

func (s *InMemoryStore) DeleteToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[id]; !ok {
		return ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *InMemoryStore) ListTokens(ctx context.Context, userID int64, f TokenFilter) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Token
	for _, t := range s.tokens {
		if t.UserID != userID {
			continue
		}
		if f.AppID != "" && t.AppID != f.AppID {
			continue
		}
		if f.RedirectURL != "" && t.RedirectURL != f.RedirectURL {
			continue
		}
		if !NewScopeSet(f.Permissions...).SubsetOf(t.Permissions) {
			continue
		}
		cp := *t
		cp.Permissions = t.Permissions.Clone()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
