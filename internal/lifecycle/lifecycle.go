// Package lifecycle implements the project state machine: create,
// stop (snapshot), start (restore), and delete. It is the Lifecycle
// Controller. The container runtime and the store are reached through
// interfaces; the tenant provisioner, snapshot engine and object-store
// client are held as concrete types.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/objectstore"
	"github.com/Bitsy-Chuck/pomodex/internal/runtime"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/snapshot"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
	"github.com/Bitsy-Chuck/pomodex/internal/tenant"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// Controller owns the project state machine. Operations on the same
// project are serialized through a per-project mutex; operations on
// different projects run concurrently.
type Controller struct {
	store     storage.Store
	runtime   runtime.ContainerRuntime
	tenant    *tenant.Provisioner
	snapshots *snapshot.Engine
	objects   *objectstore.Client

	sandboxImage string

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

func New(store storage.Store, rt runtime.ContainerRuntime, tn *tenant.Provisioner, se *snapshot.Engine, objects *objectstore.Client, sandboxImage string) *Controller {
	return &Controller{
		store:        store,
		runtime:      rt,
		tenant:       tn,
		snapshots:    se,
		objects:      objects,
		sandboxImage: sandboxImage,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (c *Controller) lockFor(projectID string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[projectID] = l
	}
	return l
}

// ownedProject fetches a project, scoped to userID, surfacing a
// foreign or absent project identically as NotFound so callers can
// never distinguish "doesn't exist" from "not yours".
func (c *Controller) ownedProject(ctx context.Context, projectID, userID string) (*types.Project, error) {
	p, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, sandboxerr.New(sandboxerr.NotFound, "project not found")
	}
	return p, nil
}

// Create provisions a brand new project for userID: tenant resources,
// an SSH keypair, and a fresh sandbox container. The keypair is
// persisted alongside the project and re-served on every response
// while the project is running, not just on this initial create.
func (c *Controller) Create(ctx context.Context, userID, name string) (project *types.Project, sshPrivateKey string, err error) {
	if _, err := c.tenant.Ensure(ctx, userID); err != nil {
		return nil, "", fmt.Errorf("ensuring tenant resources: %w", err)
	}

	pubKey, privKey, err := generateSSHKeypair()
	if err != nil {
		return nil, "", fmt.Errorf("generating ssh keypair: %w", err)
	}

	now := time.Now().UTC()
	p := &types.Project{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		Status:        types.ProjectStatusCreating,
		Image:         c.sandboxImage,
		SSHPublicKey:  pubKey,
		SSHPrivateKey: privKey,
		LastActiveAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateProject(ctx, p); err != nil {
		return nil, "", fmt.Errorf("persisting project: %w", err)
	}

	lock := c.lockFor(p.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.doCreateContainer(ctx, p); err != nil {
		log.WithProject(p.ID, userID).Error().Err(err).Msg("project creation failed, cleaning up")
		_ = c.runtime.DisconnectGatewayFromNetwork(ctx, p.ID)
		_ = c.runtime.RemoveContainer(ctx, p.ID)
		_ = c.runtime.DeleteVolume(ctx, p.ID)
		_ = c.runtime.DeleteNetwork(ctx, p.ID)

		p.Status = types.ProjectStatusError
		p.UpdatedAt = time.Now().UTC()
		_ = c.store.UpdateProject(ctx, p)
		return nil, "", err
	}

	return p, privKey, nil
}

func (c *Controller) doCreateContainer(ctx context.Context, p *types.Project) error {
	creds, err := c.store.GetTenantCredentials(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("loading tenant credentials: %w", err)
	}
	keyJSON, err := c.tenant.DecryptKey(creds)
	if err != nil {
		return fmt.Errorf("decrypting tenant key: %w", err)
	}

	spec := types.ContainerSpec{
		ProjectID:    p.ID,
		Image:        p.Image,
		GCSBucket:    creds.BucketName,
		GCSSAKeyJSON: string(keyJSON),
		SSHPublicKey: p.SSHPublicKey,
	}

	containerID, sshPort, err := c.runtime.CreateContainer(ctx, spec)
	if err != nil {
		return fmt.Errorf("creating container: %w", err)
	}
	_ = containerID

	if err := c.runtime.ConnectGatewayToNetwork(ctx, p.ID); err != nil {
		return fmt.Errorf("connecting terminal gateway: %w", err)
	}

	p.SSHPort = sshPort
	p.Status = types.ProjectStatusRunning
	p.LastActiveAt = time.Now().UTC()
	p.UpdatedAt = p.LastActiveAt
	if err := c.store.UpdateProject(ctx, p); err != nil {
		return fmt.Errorf("persisting running state: %w", err)
	}
	return nil
}

// Stop snapshots a running project's container and tears it down,
// preserving the workspace as a registry image. This is also the
// operation used for an explicit "snapshot" request; the spec treats
// the two as mechanically identical.
func (c *Controller) Stop(ctx context.Context, projectID, userID string) (*types.Project, error) {
	lock := c.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.ownedProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.ProjectStatusRunning {
		return nil, sandboxerr.New(sandboxerr.InvalidState, "project is not running")
	}

	p.Status = types.ProjectStatusSnapshotting
	p.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}

	creds, err := c.store.GetTenantCredentials(ctx, p.UserID)
	if err != nil {
		return c.failProject(ctx, p, fmt.Errorf("loading tenant credentials: %w", err))
	}
	keyJSON, err := c.tenant.DecryptKey(creds)
	if err != nil {
		return c.failProject(ctx, p, fmt.Errorf("decrypting tenant key: %w", err))
	}

	result, err := c.snapshots.Snapshot(ctx, p.ID, creds.BucketName, string(keyJSON))
	if err != nil {
		return c.failProject(ctx, p, err)
	}

	now := time.Now().UTC()
	p.SnapshotImage = result.SnapshotImage
	p.LastSnapshotAt = &now
	p.LastBackupAt = &now
	p.Status = types.ProjectStatusStopped
	p.SSHPort = 0
	p.UpdatedAt = now
	if err := c.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshot is an alias for Stop: the spec draws an explicit-snapshot
// request and an implicit stop-via-snapshot as the same transition.
func (c *Controller) Snapshot(ctx context.Context, projectID, userID string) (*types.Project, error) {
	return c.Stop(ctx, projectID, userID)
}

// Start restores a stopped project to a running container, preferring
// the fast path of the last snapshot image and falling back to a
// fresh GCS restore when none exists.
func (c *Controller) Start(ctx context.Context, projectID, userID string) (*types.Project, error) {
	lock := c.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.ownedProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.ProjectStatusStopped {
		return nil, sandboxerr.New(sandboxerr.InvalidState, "project is not stopped")
	}

	p.Status = types.ProjectStatusRestoring
	p.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}

	creds, err := c.store.GetTenantCredentials(ctx, p.UserID)
	if err != nil {
		return c.failProject(ctx, p, fmt.Errorf("loading tenant credentials: %w", err))
	}
	keyJSON, err := c.tenant.DecryptKey(creds)
	if err != nil {
		return c.failProject(ctx, p, fmt.Errorf("decrypting tenant key: %w", err))
	}

	spec := types.ContainerSpec{
		ProjectID:    p.ID,
		Image:        p.Image,
		GCSBucket:    creds.BucketName,
		GCSSAKeyJSON: string(keyJSON),
		SSHPublicKey: p.SSHPublicKey,
	}

	var containerID string
	var sshPort int
	if p.SnapshotImage != "" {
		containerID, sshPort, err = c.snapshots.RestoreFromSnapshot(ctx, spec, p.SnapshotImage, string(keyJSON))
	} else {
		containerID, sshPort, err = c.snapshots.RestoreFromGCS(ctx, spec, p.Image)
	}
	if err != nil {
		return c.failProject(ctx, p, err)
	}
	_ = containerID

	if err := c.runtime.ConnectGatewayToNetwork(ctx, p.ID); err != nil {
		return c.failProject(ctx, p, fmt.Errorf("reconnecting terminal gateway: %w", err))
	}

	now := time.Now().UTC()
	p.SSHPort = sshPort
	p.Status = types.ProjectStatusRunning
	p.LastActiveAt = now
	p.UpdatedAt = now
	if err := c.store.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete tears down every resource owned by a project and removes its
// row. Every external step is best-effort: failures are logged, not
// returned, so a retried delete on the same id still converges.
func (c *Controller) Delete(ctx context.Context, projectID, userID string) error {
	lock := c.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	p, err := c.ownedProject(ctx, projectID, userID)
	if err != nil {
		return err
	}

	logger := log.WithProject(p.ID, p.UserID)

	if err := c.runtime.DisconnectGatewayFromNetwork(ctx, p.ID); err != nil {
		logger.Warn().Err(err).Msg("disconnecting gateway during delete")
	}
	if err := c.runtime.RemoveContainer(ctx, p.ID); err != nil {
		logger.Warn().Err(err).Msg("removing container during delete")
	}
	if err := c.runtime.DeleteVolume(ctx, p.ID); err != nil {
		logger.Warn().Err(err).Msg("deleting volume during delete")
	}
	if err := c.runtime.DeleteNetwork(ctx, p.ID); err != nil {
		logger.Warn().Err(err).Msg("deleting network during delete")
	}

	if creds, err := c.store.GetTenantCredentials(ctx, p.UserID); err == nil {
		if err := c.objects.DeleteObjectsWithPrefix(ctx, creds.BucketName, p.ID+"/"); err != nil {
			logger.Warn().Err(err).Msg("deleting object storage prefix during delete")
		}
	}

	if err := c.snapshots.DeleteAllSnapshots(ctx, p.ID); err != nil {
		logger.Warn().Err(err).Msg("deleting registry versions during delete")
	}

	if err := c.store.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("removing project record: %w", err)
	}
	return nil
}

func (c *Controller) failProject(ctx context.Context, p *types.Project, cause error) (*types.Project, error) {
	p.Status = types.ProjectStatusError
	p.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateProject(ctx, p); err != nil {
		log.WithProject(p.ID, p.UserID).Error().Err(err).Msg("failed to persist error state")
	}
	return nil, cause
}
