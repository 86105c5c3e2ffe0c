// Package snapshot orchestrates the stop-to-image and image-to-start
// halves of the project lifecycle: the Snapshot Engine.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/runtime"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

const stopTimeout = 30 * time.Second

// Registry is the slice of the Image Registry Adapter the snapshot
// engine needs: naming a project's image references and pruning them
// on delete. Depending on this instead of *registry.Client keeps the
// engine free of the Artifact Registry SDK, same as it never imports
// the Docker SDK directly.
type Registry interface {
	RepoTag(projectID, tag string) string
	DeleteAllVersions(ctx context.Context, projectID string) error
}

// Engine drives the rclone-flush -> commit -> push -> stop sequence
// on snapshot, and the pull/reuse-volume -> run sequence on restore.
type Engine struct {
	runtime runtime.ContainerRuntime
	reg     Registry
}

func New(rt runtime.ContainerRuntime, reg Registry) *Engine {
	return &Engine{runtime: rt, reg: reg}
}

// Result carries the outcome of a successful snapshot.
type Result struct {
	SnapshotImage string // {registry}/{project_id}:latest
	SnapshottedAt time.Time
}

// Snapshot flushes the workspace to GCS, commits the project's running
// container to a timestamp-tagged and floating-latest image, pushes
// both to the registry, then stops and removes the container. The
// named volume is left in place.
func (e *Engine) Snapshot(ctx context.Context, projectID, gcsBucket, saKeyJSON string) (*Result, error) {
	exitCode, output, err := e.runtime.ExecRclone(ctx, projectID, gcsBucket)
	if err != nil {
		return nil, sandboxerr.Wrap(sandboxerr.External, "final workspace sync", err)
	}
	if exitCode != 0 {
		// Non-fatal: fall through and snapshot whatever made it to disk
		// rather than losing the container state entirely.
		log.WithProjectID(projectID).Warn().Int("exit_code", exitCode).Str("output", output).Msg("final workspace sync exited non-zero")
	}

	tag := time.Now().UTC().Format("20060102-150405")
	timestampRef := e.reg.RepoTag(projectID, tag)
	latestRef := e.reg.RepoTag(projectID, "latest")

	if err := e.runtime.CommitContainer(ctx, projectID, timestampRef); err != nil {
		return nil, err
	}

	if err := e.runtime.PushImage(ctx, timestampRef, saKeyJSON); err != nil {
		return nil, sandboxerr.Wrap(sandboxerr.External, "pushing snapshot image", err)
	}
	if err := e.runtime.PushImage(ctx, latestRef, saKeyJSON); err != nil {
		return nil, sandboxerr.Wrap(sandboxerr.External, "pushing latest tag", err)
	}

	if err := e.runtime.StopContainer(ctx, projectID, stopTimeout); err != nil {
		return nil, err
	}
	if err := e.runtime.RemoveContainer(ctx, projectID); err != nil {
		return nil, err
	}

	return &Result{SnapshotImage: latestRef, SnapshottedAt: time.Now().UTC()}, nil
}

// RestoreImageFor picks the snapshot image when one is recorded,
// falling back to the project's base image for a project that was
// never snapshotted.
func RestoreImageFor(snapshotImage, baseImage string) string {
	if snapshotImage != "" {
		return snapshotImage
	}
	return baseImage
}

// RestoreFromSnapshot pulls snapshotImage if not already cached
// locally and starts a new container reusing the project's existing
// named volume. This is the fast path: it skips the GCS restore the
// base image's entrypoint would otherwise perform.
func (e *Engine) RestoreFromSnapshot(ctx context.Context, spec types.ContainerSpec, snapshotImage, saKeyJSON string) (containerID string, sshPort int, err error) {
	if err := e.runtime.PullImage(ctx, snapshotImage, saKeyJSON); err != nil {
		return "", 0, sandboxerr.Wrap(sandboxerr.External, "pulling snapshot image", err)
	}
	return e.runtime.CreateContainerFromImage(ctx, spec, snapshotImage, true)
}

// RestoreFromGCS is the fallback path used when no snapshot image
// exists: the network and named volume are created if absent and the
// base image's entrypoint is relied on to restore the workspace from
// the project's GCS bucket on first boot. A volume that already exists
// is mounted as is; it is not checked, emptied or replaced.
func (e *Engine) RestoreFromGCS(ctx context.Context, spec types.ContainerSpec, baseImage string) (containerID string, sshPort int, err error) {
	return e.runtime.CreateContainerFromImage(ctx, spec, baseImage, false)
}

// DeleteAllSnapshots removes every image version recorded for a
// project, used when a project is permanently deleted.
func (e *Engine) DeleteAllSnapshots(ctx context.Context, projectID string) error {
	if err := e.reg.DeleteAllVersions(ctx, projectID); err != nil {
		return fmt.Errorf("deleting snapshot images: %w", err)
	}
	return nil
}
