// Package storage defines the persistence interface for users,
// projects, refresh tokens, and tenant credentials.
package storage

import (
	"context"

	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// Store is the persistence interface for the sandbox orchestrator's
// relational state. The concrete implementation is Postgres-backed
// (see storage/postgres), but callers depend only on this interface.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)

	// Projects
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]*types.Project, error)
	ListProjectsByStatus(ctx context.Context, statuses []types.ProjectStatus) ([]*types.Project, error)
	UpdateProject(ctx context.Context, project *types.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, token *types.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*types.RefreshToken, error)
	// RotateRefreshToken atomically revokes oldHash and inserts newToken
	// in a single transaction. Returns sandboxerr.Conflict if oldHash was
	// already revoked or doesn't exist (replay/reuse).
	RotateRefreshToken(ctx context.Context, oldHash string, newToken *types.RefreshToken) error
	RevokeRefreshTokensForUser(ctx context.Context, userID string) error

	// Tenant credentials
	GetTenantCredentials(ctx context.Context, userID string) (*types.TenantCredentials, error)
	UpsertTenantCredentials(ctx context.Context, creds *types.TenantCredentials) error

	Close() error
}
