// Package runtimetest provides an in-memory fake implementing
// runtime.ContainerRuntime, used across package tests instead of a
// mocking framework — the teacher's own tests use no mock library
// either.
package runtimetest

import (
	"context"
	"sync"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/sandboxerr"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// FakeRuntime is a mutex-guarded in-memory stand-in for a Docker
// daemon. Call counts and last-seen arguments are exposed directly so
// tests can assert on them without a mocking framework.
type FakeRuntime struct {
	mu sync.Mutex

	Statuses map[string]types.ContainerStatus
	IPs      map[string]string

	NextSSHPort int

	PingErr            error
	CreateContainerErr error
	CommitErr          error
	PushErr            error
	PullErr            error
	ExecRcloneExitCode int
	ExecRcloneErr      error

	ConnectedNetworks    map[string]bool
	DisconnectedNetworks map[string]bool
	RemovedContainers    map[string]bool
	DeletedVolumes       map[string]bool
	DeletedNetworks      map[string]bool
	PushedRefs           []string
	PulledRefs           []string
}

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		Statuses:             make(map[string]types.ContainerStatus),
		IPs:                  make(map[string]string),
		NextSSHPort:          2200,
		ConnectedNetworks:    make(map[string]bool),
		DisconnectedNetworks: make(map[string]bool),
		RemovedContainers:    make(map[string]bool),
		DeletedVolumes:       make(map[string]bool),
		DeletedNetworks:      make(map[string]bool),
	}
}

func (f *FakeRuntime) CreateContainer(_ context.Context, spec types.ContainerSpec) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateContainerErr != nil {
		return "", 0, f.CreateContainerErr
	}
	f.Statuses[spec.ProjectID] = types.ContainerStatusRunning
	f.IPs[spec.ProjectID] = "172.17.0.2"
	port := f.NextSSHPort
	f.NextSSHPort++
	return "container-" + spec.ProjectID, port, nil
}

func (f *FakeRuntime) CreateContainerFromImage(_ context.Context, spec types.ContainerSpec, _ string, _ bool) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateContainerErr != nil {
		return "", 0, f.CreateContainerErr
	}
	f.Statuses[spec.ProjectID] = types.ContainerStatusRunning
	f.IPs[spec.ProjectID] = "172.17.0.2"
	port := f.NextSSHPort
	f.NextSSHPort++
	return "container-" + spec.ProjectID, port, nil
}

func (f *FakeRuntime) StopContainer(_ context.Context, projectID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[projectID] = types.ContainerStatusExited
	return nil
}

func (f *FakeRuntime) RemoveContainer(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemovedContainers[projectID] = true
	delete(f.Statuses, projectID)
	return nil
}

func (f *FakeRuntime) DeleteNetwork(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedNetworks[projectID] = true
	return nil
}

func (f *FakeRuntime) DeleteVolume(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedVolumes[projectID] = true
	return nil
}

func (f *FakeRuntime) EnsureNetwork(_ context.Context, _ string) error { return nil }
func (f *FakeRuntime) EnsureVolume(_ context.Context, _ string) error  { return nil }

func (f *FakeRuntime) GetContainerStatus(_ context.Context, projectID string) (types.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.Statuses[projectID]
	if !ok {
		return types.ContainerStatusNotFound, nil
	}
	return st, nil
}

func (f *FakeRuntime) GetContainerIP(_ context.Context, projectID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip, ok := f.IPs[projectID]
	if !ok {
		return "", sandboxerr.New(sandboxerr.NotFound, "container not found")
	}
	return ip, nil
}

func (f *FakeRuntime) CommitContainer(_ context.Context, _ string, _ string) error {
	return f.CommitErr
}

func (f *FakeRuntime) ExecRclone(_ context.Context, _ string, _ string) (int, string, error) {
	return f.ExecRcloneExitCode, "rclone sync complete", f.ExecRcloneErr
}

func (f *FakeRuntime) PushImage(_ context.Context, ref string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PushedRefs = append(f.PushedRefs, ref)
	return f.PushErr
}

func (f *FakeRuntime) PullImage(_ context.Context, ref string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PulledRefs = append(f.PulledRefs, ref)
	return f.PullErr
}

func (f *FakeRuntime) ConnectGatewayToNetwork(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectedNetworks[projectID] = true
	return nil
}

func (f *FakeRuntime) DisconnectGatewayFromNetwork(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisconnectedNetworks[projectID] = true
	return nil
}

func (f *FakeRuntime) Ping(_ context.Context) error { return f.PingErr }

func (f *FakeRuntime) Close() error { return nil }
