// Package docker implements runtime.ContainerRuntime against a local
// Docker daemon. Chosen over the containerd client because this
// component needs Docker's higher-level bridge-network, named-volume,
// and published-port primitives directly — containerd's bare API
// would require reimplementing all three.
package docker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/network"
	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

const (
	// GatewayContainerName is the well-known name of the terminal
	// gateway container, which must be attached to every project's
	// bridge network to reach ttyd by bridge IP.
	GatewayContainerName = "terminal-proxy"

	sandboxMountPath = "/home/agent"
	sshContainerPort = "22/tcp"

	containerMemoryLimitBytes = 1 << 30 // 1g
	containerNanoCPUs         = 1_000_000_000
)

// Runtime implements runtime.ContainerRuntime using the Docker SDK.
type Runtime struct {
	cli      *dockerclient.Client
	log      zerolog.Logger
	portPool *network.Allocator
}

// New connects to the Docker daemon using the standard DOCKER_HOST /
// DOCKER_CERT_PATH environment conventions.
func New() (*Runtime, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Runtime{
		cli:      cli,
		log:      log.WithComponent("runtime.docker"),
		portPool: network.NewAllocator(),
	}, nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func (r *Runtime) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "pinging docker daemon", err)
	}
	return nil
}

func networkName(projectID string) string   { return "net-" + projectID }
func volumeName(projectID string) string     { return "vol-" + projectID }
func containerName(projectID string) string  { return "sandbox-" + projectID }

func (r *Runtime) EnsureNetwork(ctx context.Context, projectID string) error {
	name := networkName(projectID)
	_, err := r.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "inspecting network", err)
	}
	enableIPv6 := false
	_, err = r.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:     "bridge",
		EnableIPv6: &enableIPv6,
	})
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "creating network "+name, err)
	}
	return nil
}

func (r *Runtime) DeleteNetwork(ctx context.Context, projectID string) error {
	name := networkName(projectID)
	err := r.cli.NetworkRemove(ctx, name)
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "removing network "+name, err)
	}
	return nil
}

func (r *Runtime) EnsureVolume(ctx context.Context, projectID string) error {
	name := volumeName(projectID)
	_, err := r.cli.VolumeInspect(ctx, name)
	if err == nil {
		return nil
	}
	if !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "inspecting volume", err)
	}
	_, err = r.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "creating volume "+name, err)
	}
	return nil
}

func (r *Runtime) DeleteVolume(ctx context.Context, projectID string) error {
	name := volumeName(projectID)
	err := r.cli.VolumeRemove(ctx, name, true)
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "removing volume "+name, err)
	}
	return nil
}

const maxPortRetries = 3

func (r *Runtime) CreateContainer(ctx context.Context, spec types.ContainerSpec) (string, int, error) {
	return r.createContainer(ctx, spec, spec.Image, false)
}

func (r *Runtime) CreateContainerFromImage(ctx context.Context, spec types.ContainerSpec, image string, reuseVolume bool) (string, int, error) {
	return r.createContainer(ctx, spec, image, reuseVolume)
}

func (r *Runtime) createContainer(ctx context.Context, spec types.ContainerSpec, image string, reuseVolume bool) (string, int, error) {
	name := containerName(spec.ProjectID)

	if _, err := r.cli.ContainerInspect(ctx, name); err == nil {
		return "", 0, sandboxerr.New(sandboxerr.Conflict, fmt.Sprintf("container %s already exists", name))
	}

	networkCreated := false
	volumeCreated := false
	cleanup := func() {
		if volumeCreated && !reuseVolume {
			_ = r.DeleteVolume(ctx, spec.ProjectID)
		}
		if networkCreated {
			_ = r.DeleteNetwork(ctx, spec.ProjectID)
		}
	}

	_, netErr := r.cli.NetworkInspect(ctx, networkName(spec.ProjectID), network.InspectOptions{})
	if err := r.EnsureNetwork(ctx, spec.ProjectID); err != nil {
		return "", 0, err
	}
	networkCreated = netErr != nil

	if !reuseVolume {
		_, volErr := r.cli.VolumeInspect(ctx, volumeName(spec.ProjectID))
		if err := r.EnsureVolume(ctx, spec.ProjectID); err != nil {
			cleanup()
			return "", 0, err
		}
		volumeCreated = volErr != nil
	}

	cfg := &container.Config{
		Image: image,
		Env: []string{
			"PROJECT_ID=" + spec.ProjectID,
			"GCS_BUCKET=" + spec.GCSBucket,
			"GCS_PREFIX=" + spec.ProjectID,
			"GCS_SA_KEY=" + spec.GCSSAKeyJSON,
			"SSH_PUBLIC_KEY=" + spec.SSHPublicKey,
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxPortRetries; attempt++ {
		port, err := r.portPool.Allocate()
		if err != nil {
			cleanup()
			return "", 0, sandboxerr.Wrap(sandboxerr.External, "allocating host port", err)
		}

		hostCfg := &container.HostConfig{
			Binds:       []string{volumeName(spec.ProjectID) + ":" + sandboxMountPath},
			NetworkMode: container.NetworkMode(networkName(spec.ProjectID)),
			CapAdd:      []string{"SYS_ADMIN"},
			Resources: container.Resources{
				Devices:    []container.DeviceMapping{{PathOnHost: "/dev/fuse", PathInContainer: "/dev/fuse", CgroupPermissions: "rwm"}},
				Memory:     containerMemoryLimitBytes,
				NanoCPUs:   containerNanoCPUs,
			},
			SecurityOpt: []string{"apparmor:unconfined"},
			PortBindings: nat.PortMap{
				nat.Port(sshContainerPort): []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(port)}},
			},
		}
		cfg.ExposedPorts = nat.PortSet{nat.Port(sshContainerPort): struct{}{}}

		resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
		if err != nil {
			if isPortAllocatedError(err) && attempt < maxPortRetries-1 {
				lastErr = err
				continue
			}
			cleanup()
			return "", 0, sandboxerr.Wrap(sandboxerr.External, "creating container "+name, err)
		}

		if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
			_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
			cleanup()
			return "", 0, sandboxerr.Wrap(sandboxerr.External, "starting container "+name, err)
		}

		return resp.ID, port, nil
	}

	cleanup()
	return "", 0, sandboxerr.Wrap(sandboxerr.External, "exhausted port retries creating "+name, lastErr)
}

func isPortAllocatedError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "port is already allocated")
}

func (r *Runtime) StopContainer(ctx context.Context, projectID string, timeout time.Duration) error {
	name := containerName(projectID)
	secs := int(timeout.Seconds())
	err := r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "stopping container "+name, err)
	}
	return nil
}

func (r *Runtime) RemoveContainer(ctx context.Context, projectID string) error {
	name := containerName(projectID)
	err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return sandboxerr.Wrap(sandboxerr.External, "removing container "+name, err)
	}
	return nil
}

func (r *Runtime) GetContainerStatus(ctx context.Context, projectID string) (types.ContainerStatus, error) {
	name := containerName(projectID)
	info, err := r.cli.ContainerInspect(ctx, name)
	if dockerclient.IsErrNotFound(err) {
		return types.ContainerStatusNotFound, nil
	}
	if err != nil {
		return "", sandboxerr.Wrap(sandboxerr.External, "inspecting container "+name, err)
	}
	switch info.State.Status {
	case "running":
		return types.ContainerStatusRunning, nil
	case "restarting":
		return types.ContainerStatusRestarting, nil
	default:
		return types.ContainerStatusExited, nil
	}
}

func (r *Runtime) GetContainerIP(ctx context.Context, projectID string) (string, error) {
	name := containerName(projectID)
	netName := networkName(projectID)

	info, err := r.cli.ContainerInspect(ctx, name)
	if dockerclient.IsErrNotFound(err) {
		return "", sandboxerr.New(sandboxerr.NotFound, fmt.Sprintf("container %s not found", name))
	}
	if err != nil {
		return "", sandboxerr.Wrap(sandboxerr.External, "inspecting container "+name, err)
	}
	if info.State == nil || !info.State.Running {
		status := "not running"
		if info.State != nil {
			status = info.State.Status
		}
		return "", sandboxerr.New(sandboxerr.InvalidState, fmt.Sprintf("container %s is %s", name, status))
	}

	settings, ok := info.NetworkSettings.Networks[netName]
	if !ok || settings.IPAddress == "" {
		return "", sandboxerr.New(sandboxerr.InvalidState, fmt.Sprintf("container %s has no address on %s", name, netName))
	}

	if err := r.ConnectGatewayToNetwork(ctx, projectID); err != nil {
		return "", err
	}

	return settings.IPAddress, nil
}

func (r *Runtime) ConnectGatewayToNetwork(ctx context.Context, projectID string) error {
	netName := networkName(projectID)
	netInfo, err := r.cli.NetworkInspect(ctx, netName, network.InspectOptions{})
	if dockerclient.IsErrNotFound(err) {
		return sandboxerr.New(sandboxerr.NotFound, "network "+netName+" not found")
	}
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "inspecting network "+netName, err)
	}
	for _, c := range netInfo.Containers {
		if c.Name == GatewayContainerName {
			return nil
		}
	}
	err = r.cli.NetworkConnect(ctx, netName, GatewayContainerName, &network.EndpointSettings{})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return sandboxerr.Wrap(sandboxerr.External, "connecting gateway to "+netName, err)
	}
	return nil
}

func (r *Runtime) DisconnectGatewayFromNetwork(ctx context.Context, projectID string) error {
	netName := networkName(projectID)
	err := r.cli.NetworkDisconnect(ctx, netName, GatewayContainerName, true)
	if err != nil && !dockerclient.IsErrNotFound(err) && !strings.Contains(strings.ToLower(err.Error()), "is not connected") {
		return sandboxerr.Wrap(sandboxerr.External, "disconnecting gateway from "+netName, err)
	}
	return nil
}

func (r *Runtime) CommitContainer(ctx context.Context, projectID string, repoTag string) error {
	name := containerName(projectID)
	parts := strings.SplitN(repoTag, ":", 2)
	repo := parts[0]
	tag := "latest"
	if len(parts) == 2 {
		tag = parts[1]
	}

	if _, err := r.cli.ContainerCommit(ctx, name, container.CommitOptions{Reference: repo + ":" + tag}); err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "committing container "+name, err)
	}
	if tag != "latest" {
		if _, err := r.cli.ContainerCommit(ctx, name, container.CommitOptions{Reference: repo + ":latest"}); err != nil {
			return sandboxerr.Wrap(sandboxerr.External, "tagging latest for "+name, err)
		}
	}
	return nil
}

// PushImage pushes a tagged image to the registry using the given
// service-account JSON key as Artifact Registry auth (username
// "_json_key").
func (r *Runtime) PushImage(ctx context.Context, ref string, saKeyJSON string) error {
	authStr := registryAuth(saKeyJSON)
	rc, err := r.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: authStr})
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "pushing image "+ref, err)
	}
	defer rc.Close()
	return drainPushPullOutput(rc, ref)
}

// PullImage pulls ref, using saKeyJSON as registry auth. Skips the
// pull if the image already exists locally.
func (r *Runtime) PullImage(ctx context.Context, ref string, saKeyJSON string) error {
	if _, err := r.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	authStr := registryAuth(saKeyJSON)
	rc, err := r.cli.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: authStr})
	if err != nil {
		return sandboxerr.Wrap(sandboxerr.External, "pulling image "+ref, err)
	}
	defer rc.Close()
	return drainPushPullOutput(rc, ref)
}

func registryAuth(saKeyJSON string) string {
	cfg := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: "_json_key", Password: saKeyJSON}
	b, _ := json.Marshal(cfg)
	return base64.URLEncoding.EncodeToString(b)
}

// drainPushPullOutput reads the newline-delimited JSON progress stream
// the Docker daemon returns from push/pull and surfaces the first
// "error" field it finds as a Go error.
func drainPushPullOutput(r io.Reader, ref string) error {
	dec := json.NewDecoder(r)
	for {
		var msg struct {
			Error string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return nil // malformed progress line, not fatal
		}
		if msg.Error != "" {
			return fmt.Errorf("push/pull failed for %s: %s", ref, msg.Error)
		}
	}
}

func (r *Runtime) ExecRclone(ctx context.Context, projectID string, gcsBucket string) (int, string, error) {
	name := containerName(projectID)
	cmd := []string{
		"rclone", "sync", sandboxMountPath,
		fmt.Sprintf(":gcs:%s/%s/workspace", gcsBucket, projectID),
		"--transfers=8", "--checksum",
		"--gcs-service-account-file=/tmp/gcs-key.json",
		"--gcs-bucket-policy-only",
	}

	execResp, err := r.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		User:         "root",
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, "", sandboxerr.Wrap(sandboxerr.External, "creating rclone exec", err)
	}

	attachResp, err := r.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, "", sandboxerr.Wrap(sandboxerr.External, "attaching rclone exec", err)
	}
	defer attachResp.Close()

	var out bytes.Buffer
	_, _ = io.Copy(&out, attachResp.Reader)

	inspect, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return -1, out.String(), sandboxerr.Wrap(sandboxerr.External, "inspecting rclone exec", err)
	}

	return inspect.ExitCode, out.String(), nil
}
