// Package runtime defines the container runtime adapter interface.
// The concrete implementation talks to a Docker daemon (see
// runtime/docker); callers depend only on this interface so the
// lifecycle controller and snapshot engine never import the Docker
// SDK directly.
package runtime

import (
	"context"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// ContainerRuntime provisions and tears down the per-project bridge
// network, named volume, and sandbox container, and answers status
// and bridge-IP queries for the terminal gateway.
type ContainerRuntime interface {
	// CreateContainer orchestrates: create network -> create volume ->
	// find a free host port -> run the container. On failure it rolls
	// back any resource it created before the failure point. Returns
	// the Docker container ID and the chosen host SSH/terminal port.
	CreateContainer(ctx context.Context, spec types.ContainerSpec) (containerID string, sshPort int, err error)

	// CreateContainerFromImage is like CreateContainer but starts from
	// an existing image (a snapshot or the base image during restore).
	// With reuseVolume set it mounts the existing named volume without
	// creating one; otherwise the volume is created if absent.
	CreateContainerFromImage(ctx context.Context, spec types.ContainerSpec, image string, reuseVolume bool) (containerID string, sshPort int, err error)

	StopContainer(ctx context.Context, projectID string, timeout time.Duration) error
	RemoveContainer(ctx context.Context, projectID string) error

	DeleteNetwork(ctx context.Context, projectID string) error
	DeleteVolume(ctx context.Context, projectID string) error
	EnsureNetwork(ctx context.Context, projectID string) error
	EnsureVolume(ctx context.Context, projectID string) error

	GetContainerStatus(ctx context.Context, projectID string) (types.ContainerStatus, error)

	// GetContainerIP returns the sandbox container's bridge-network IP
	// on net-{projectID}, ensuring the terminal gateway container is
	// itself attached to that network first.
	GetContainerIP(ctx context.Context, projectID string) (string, error)

	// CommitContainer creates a new image from the project's running
	// container, tagged with both repoTag and "latest".
	CommitContainer(ctx context.Context, projectID string, repoTag string) error

	// ExecRclone runs the workspace flush command inside the project's
	// container as root, returning the exit code and combined output.
	ExecRclone(ctx context.Context, projectID string, gcsBucket string) (exitCode int, output string, err error)

	// PushImage pushes ref (repo:tag) to the registry, authenticating
	// with the given service-account key JSON.
	PushImage(ctx context.Context, ref string, saKeyJSON string) error

	// PullImage pulls ref if it is not already present locally.
	PullImage(ctx context.Context, ref string, saKeyJSON string) error

	// ConnectGatewayToNetwork / DisconnectGatewayFromNetwork attach or
	// detach the terminal gateway container from a project's bridge
	// network. Both are idempotent.
	ConnectGatewayToNetwork(ctx context.Context, projectID string) error
	DisconnectGatewayFromNetwork(ctx context.Context, projectID string) error

	// Ping verifies connectivity to the underlying container daemon,
	// for use by health checks.
	Ping(ctx context.Context) error

	Close() error
}
