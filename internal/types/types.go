// Package types defines the core entities shared across the sandbox
// orchestrator: users, projects, and refresh tokens.
package types

import "time"

// User is an account that owns zero or more projects.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Project is a single isolated development sandbox belonging to a user.
type Project struct {
	ID        string
	UserID    string
	Name      string
	Status    ProjectStatus
	Image     string // base container image
	SSHPort   int    // host-published port for the current container, 0 if none

	SSHPublicKey  string // Ed25519, authorized in the container on create and restore
	SSHPrivateKey string // Ed25519, persisted and re-served on every response while running

	SnapshotImage string // registry ref of the last snapshot, empty if never snapshotted

	LastActiveAt     time.Time // set on create and whenever the project enters running
	LastConnectionAt *time.Time // updated on terminal connect; nil means never connected
	LastSnapshotAt   *time.Time
	LastBackupAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectStatus is the project lifecycle state. See the state machine
// in the lifecycle package: creating -> running -> {snapshotting ->
// stopped, error}; stopped -> restoring -> {running, error}; any state
// can transition to a terminal delete.
type ProjectStatus string

const (
	ProjectStatusCreating     ProjectStatus = "creating"
	ProjectStatusRunning      ProjectStatus = "running"
	ProjectStatusSnapshotting ProjectStatus = "snapshotting"
	ProjectStatusStopped      ProjectStatus = "stopped"
	ProjectStatusRestoring    ProjectStatus = "restoring"
	ProjectStatusError        ProjectStatus = "error"
	ProjectStatusDeleting     ProjectStatus = "deleting"
)

// TransitionalStates are statuses the reconciler considers "in flight";
// a project stuck in one of these past the stuck threshold is reset to
// error.
var TransitionalStates = []ProjectStatus{
	ProjectStatusCreating,
	ProjectStatusSnapshotting,
	ProjectStatusRestoring,
}

// RefreshToken is an opaque, single-use, rotating credential used to
// mint new access tokens without re-authenticating with a password.
// Only the SHA-256 digest of the raw token is ever persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // hex-encoded sha256 of the raw token
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// TenantCredentials hold the per-user GCP provisioning state: a bucket
// for object storage plus a service account scoped to only that
// bucket. CredentialMaterial is the service account's JSON key,
// encrypted at rest (see internal/security).
type TenantCredentials struct {
	UserID              string
	BucketName          string
	ServiceAccountEmail string
	CredentialMaterial  []byte // encrypted SA key JSON, empty until provisioned
	ProvisionedAt       *time.Time
}

// SnapshotInfo describes one tagged image in a project's registry
// history, excluding the floating "latest" alias.
type SnapshotInfo struct {
	Tag       string
	CreatedAt time.Time
}

// ContainerStatus mirrors the subset of Docker container state this
// service cares about.
type ContainerStatus string

const (
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusNotFound   ContainerStatus = "not_found"
	ContainerStatusRestarting ContainerStatus = "restarting"
)

// ContainerSpec is the input to creating a sandbox container.
type ContainerSpec struct {
	ProjectID     string
	Image         string
	VolumeName    string
	NetworkName   string
	GCSBucket     string
	GCSSAKeyJSON  string // decrypted, never logged
	SSHPublicKey  string
}
