package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bitsy-Chuck/pomodex/internal/runtime/runtimetest"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

type fakeRegistry struct {
	deleteAllErr error
	deletedFor   []string
}

func (f *fakeRegistry) RepoTag(projectID, tag string) string {
	return "registry.test/" + projectID + ":" + tag
}

func (f *fakeRegistry) DeleteAllVersions(_ context.Context, projectID string) error {
	f.deletedFor = append(f.deletedFor, projectID)
	return f.deleteAllErr
}

func TestRestoreImageFor(t *testing.T) {
	assert.Equal(t, "snap:latest", RestoreImageFor("snap:latest", "base:latest"))
	assert.Equal(t, "base:latest", RestoreImageFor("", "base:latest"))
}

func TestEngine_Snapshot_PushesTimestampAndLatestThenStops(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	reg := &fakeRegistry{}
	e := New(rt, reg)

	result, err := e.Snapshot(context.Background(), "proj-1", "bucket-1", "key-json")
	require.NoError(t, err)
	assert.Equal(t, "registry.test/proj-1:latest", result.SnapshotImage)
	assert.Len(t, rt.PushedRefs, 2)
	assert.Contains(t, rt.PushedRefs[0], ":20")
	assert.Equal(t, "registry.test/proj-1:latest", rt.PushedRefs[1])
	assert.True(t, rt.RemovedContainers["proj-1"])
}

func TestEngine_Snapshot_NonZeroRcloneExitIsNonFatal(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	rt.ExecRcloneExitCode = 1
	e := New(rt, &fakeRegistry{})

	_, err := e.Snapshot(context.Background(), "proj-1", "bucket-1", "key-json")
	require.NoError(t, err)
}

func TestEngine_Snapshot_PropagatesPushFailure(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	rt.PushErr = assert.AnError
	e := New(rt, &fakeRegistry{})

	_, err := e.Snapshot(context.Background(), "proj-1", "bucket-1", "key-json")
	assert.Error(t, err)
}

func TestEngine_RestoreFromSnapshot_PullsThenReusesVolume(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	e := New(rt, &fakeRegistry{})
	spec := types.ContainerSpec{ProjectID: "proj-1", Image: "base:latest"}

	_, port, err := e.RestoreFromSnapshot(context.Background(), spec, "registry.test/proj-1:latest", "key-json")
	require.NoError(t, err)
	assert.NotZero(t, port)
	assert.Equal(t, []string{"registry.test/proj-1:latest"}, rt.PulledRefs)
}

func TestEngine_RestoreFromGCS_SkipsPull(t *testing.T) {
	rt := runtimetest.NewFakeRuntime()
	e := New(rt, &fakeRegistry{})
	spec := types.ContainerSpec{ProjectID: "proj-1", Image: "base:latest"}

	_, _, err := e.RestoreFromGCS(context.Background(), spec, "base:latest")
	require.NoError(t, err)
	assert.Empty(t, rt.PulledRefs)
}

func TestEngine_DeleteAllSnapshots_DelegatesToRegistry(t *testing.T) {
	reg := &fakeRegistry{}
	e := New(runtimetest.NewFakeRuntime(), reg)

	require.NoError(t, e.DeleteAllSnapshots(context.Background(), "proj-1"))
	assert.Equal(t, []string{"proj-1"}, reg.deletedFor)
}
