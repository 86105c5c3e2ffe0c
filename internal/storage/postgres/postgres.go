// Package postgres implements storage.Store on top of a Postgres
// connection pool, with one block of methods per entity over a
// relational schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// Store implements storage.Store using pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against databaseURL and verifies
// connectivity with a ping before returning.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email))
}

func (s *Store) scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sandboxerr.New(sandboxerr.NotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// --- Projects ---

func (s *Store) CreateProject(ctx context.Context, p *types.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, name, status, image, ssh_port, ssh_public_key, ssh_private_key, snapshot_image,
			last_active_at, last_connection_at, last_snapshot_at, last_backup_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.UserID, p.Name, p.Status, p.Image, p.SSHPort, p.SSHPublicKey, p.SSHPrivateKey, p.SnapshotImage,
		p.LastActiveAt, p.LastConnectionAt, p.LastSnapshotAt, p.LastBackupAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.pool.QueryRow(ctx, projectSelectCols+`FROM projects WHERE id = $1`, id)
	return s.scanProject(row)
}

func (s *Store) ListProjectsByUser(ctx context.Context, userID string) ([]*types.Project, error) {
	rows, err := s.pool.Query(ctx, projectSelectCols+`FROM projects WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()
	return s.scanProjects(rows)
}

func (s *Store) ListProjectsByStatus(ctx context.Context, statuses []types.ProjectStatus) ([]*types.Project, error) {
	rows, err := s.pool.Query(ctx, projectSelectCols+`FROM projects WHERE status = ANY($1)`, statuses)
	if err != nil {
		return nil, fmt.Errorf("listing projects by status: %w", err)
	}
	defer rows.Close()
	return s.scanProjects(rows)
}

func (s *Store) UpdateProject(ctx context.Context, p *types.Project) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name=$2, status=$3, image=$4, ssh_port=$5, ssh_public_key=$6, ssh_private_key=$7, snapshot_image=$8,
			last_active_at=$9, last_connection_at=$10, last_snapshot_at=$11, last_backup_at=$12, updated_at=$13
		WHERE id=$1`,
		p.ID, p.Name, p.Status, p.Image, p.SSHPort, p.SSHPublicKey, p.SSHPrivateKey, p.SnapshotImage,
		p.LastActiveAt, p.LastConnectionAt, p.LastSnapshotAt, p.LastBackupAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sandboxerr.New(sandboxerr.NotFound, "project not found")
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return nil
}

const projectSelectCols = `SELECT id, user_id, name, status, image, ssh_port, ssh_public_key, ssh_private_key, snapshot_image,
	last_active_at, last_connection_at, last_snapshot_at, last_backup_at, created_at, updated_at `

func (s *Store) scanProject(row pgx.Row) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Status, &p.Image, &p.SSHPort, &p.SSHPublicKey, &p.SSHPrivateKey, &p.SnapshotImage,
		&p.LastActiveAt, &p.LastConnectionAt, &p.LastSnapshotAt, &p.LastBackupAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sandboxerr.New(sandboxerr.NotFound, "project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	return &p, nil
}

func (s *Store) scanProjects(rows pgx.Rows) ([]*types.Project, error) {
	var out []*types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Status, &p.Image, &p.SSHPort, &p.SSHPublicKey, &p.SSHPrivateKey, &p.SnapshotImage,
			&p.LastActiveAt, &p.LastConnectionAt, &p.LastSnapshotAt, &p.LastBackupAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Refresh tokens ---

func (s *Store) CreateRefreshToken(ctx context.Context, t *types.RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*types.RefreshToken, error) {
	var t types.RefreshToken
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sandboxerr.New(sandboxerr.NotFound, "refresh token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}
	return &t, nil
}

// RotateRefreshToken revokes oldHash and inserts newToken atomically.
// The UPDATE predicate requires revoked = false, so a concurrent or
// repeated presentation of an already-used token affects zero rows —
// that is treated as reuse and reported as a Conflict.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, newToken *types.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning rotation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1 AND revoked = false`,
		oldHash,
	)
	if err != nil {
		return fmt.Errorf("revoking old refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sandboxerr.New(sandboxerr.Conflict, "refresh token already used or unknown")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		newToken.ID, newToken.UserID, newToken.TokenHash, newToken.ExpiresAt, newToken.Revoked, newToken.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting rotated refresh token: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) RevokeRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`, userID)
	if err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

// --- Tenant credentials ---

func (s *Store) GetTenantCredentials(ctx context.Context, userID string) (*types.TenantCredentials, error) {
	var c types.TenantCredentials
	var provisionedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, bucket_name, service_account_email, credential_material, provisioned_at
		FROM tenant_credentials WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.BucketName, &c.ServiceAccountEmail, &c.CredentialMaterial, &provisionedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sandboxerr.New(sandboxerr.NotFound, "tenant credentials not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant credentials: %w", err)
	}
	c.ProvisionedAt = provisionedAt
	return &c, nil
}

func (s *Store) UpsertTenantCredentials(ctx context.Context, c *types.TenantCredentials) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_credentials (user_id, bucket_name, service_account_email, credential_material, provisioned_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			bucket_name = EXCLUDED.bucket_name,
			service_account_email = EXCLUDED.service_account_email,
			credential_material = EXCLUDED.credential_material,
			provisioned_at = EXCLUDED.provisioned_at`,
		c.UserID, c.BucketName, c.ServiceAccountEmail, c.CredentialMaterial, c.ProvisionedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting tenant credentials: %w", err)
	}
	return nil
}
