// Package storagetest provides an in-memory fake implementing
// storage.Store, used across package tests instead of a mocking
// framework — the teacher's own tests use no mock library either.
package storagetest

import (
	"context"
	"sync"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// FakeStore is a mutex-guarded in-memory implementation of
// storage.Store.
type FakeStore struct {
	mu sync.Mutex

	users         map[string]*types.User
	usersByEmail  map[string]string // email -> id
	projects      map[string]*types.Project
	refreshTokens map[string]*types.RefreshToken // hash -> token
	tenants       map[string]*types.TenantCredentials
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		users:         make(map[string]*types.User),
		usersByEmail:  make(map[string]string),
		projects:      make(map[string]*types.Project),
		refreshTokens: make(map[string]*types.RefreshToken),
		tenants:       make(map[string]*types.TenantCredentials),
	}
}

func (s *FakeStore) Close() error { return nil }

func (s *FakeStore) CreateUser(_ context.Context, u *types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	s.usersByEmail[u.Email] = u.ID
	return nil
}

func (s *FakeStore) GetUser(_ context.Context, id string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sandboxerr.New(sandboxerr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *FakeStore) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, sandboxerr.New(sandboxerr.NotFound, "user not found")
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *FakeStore) CreateProject(_ context.Context, p *types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return sandboxerr.New(sandboxerr.Conflict, "project already exists")
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *FakeStore) GetProject(_ context.Context, id string) (*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, sandboxerr.New(sandboxerr.NotFound, "project not found")
	}
	cp := *p
	return &cp, nil
}

func (s *FakeStore) ListProjectsByUser(_ context.Context, userID string) ([]*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FakeStore) ListProjectsByStatus(_ context.Context, statuses []types.ProjectStatus) ([]*types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[types.ProjectStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*types.Project
	for _, p := range s.projects {
		if want[p.Status] {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *FakeStore) UpdateProject(_ context.Context, p *types.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return sandboxerr.New(sandboxerr.NotFound, "project not found")
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *FakeStore) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	return nil
}

func (s *FakeStore) CreateRefreshToken(_ context.Context, t *types.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.refreshTokens[t.TokenHash] = &cp
	return nil
}

func (s *FakeStore) GetRefreshTokenByHash(_ context.Context, hash string) (*types.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[hash]
	if !ok {
		return nil, sandboxerr.New(sandboxerr.NotFound, "refresh token not found")
	}
	cp := *t
	return &cp, nil
}

func (s *FakeStore) RotateRefreshToken(_ context.Context, oldHash string, newToken *types.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refreshTokens[oldHash]
	if !ok || old.Revoked {
		return sandboxerr.New(sandboxerr.Conflict, "refresh token already used or unknown")
	}
	old.Revoked = true
	cp := *newToken
	s.refreshTokens[newToken.TokenHash] = &cp
	return nil
}

func (s *FakeStore) RevokeRefreshTokensForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *FakeStore) GetTenantCredentials(_ context.Context, userID string) (*types.TenantCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.tenants[userID]
	if !ok {
		return nil, sandboxerr.New(sandboxerr.NotFound, "tenant credentials not found")
	}
	cp := *c
	return &cp, nil
}

func (s *FakeStore) UpsertTenantCredentials(_ context.Context, c *types.TenantCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.tenants[c.UserID] = &cp
	return nil
}
