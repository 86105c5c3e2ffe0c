package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/storage/storagetest"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

func newTestReconciler(store *storagetest.FakeStore, cfg Config) *Reconciler {
	return &Reconciler{
		store:  store,
		cfg:    cfg,
		logger: log.WithComponent("reconciler_test"),
		stopCh: make(chan struct{}),
	}
}

func TestRecoverStuck_MarksProjectsPastThresholdAsError(t *testing.T) {
	store := storagetest.NewFakeStore()
	stuck := &types.Project{ID: "p-stuck", Status: types.ProjectStatusCreating, LastActiveAt: time.Now().Add(-time.Hour)}
	fresh := &types.Project{ID: "p-fresh", Status: types.ProjectStatusCreating, LastActiveAt: time.Now()}
	require.NoError(t, store.CreateProject(context.Background(), stuck))
	require.NoError(t, store.CreateProject(context.Background(), fresh))

	r := newTestReconciler(store, Config{StuckThreshold: 10 * time.Minute})
	r.recoverStuck(context.Background())

	got, err := store.GetProject(context.Background(), "p-stuck")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusError, got.Status)

	stillFresh, err := store.GetProject(context.Background(), "p-fresh")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusCreating, stillFresh.Status)
}

func TestRecoverStuck_NoTransitionalProjectsIsNoop(t *testing.T) {
	store := storagetest.NewFakeStore()
	running := &types.Project{ID: "p-running", Status: types.ProjectStatusRunning, LastActiveAt: time.Now().Add(-time.Hour)}
	require.NoError(t, store.CreateProject(context.Background(), running))

	r := newTestReconciler(store, Config{StuckThreshold: time.Minute})
	r.recoverStuck(context.Background())

	got, err := store.GetProject(context.Background(), "p-running")
	require.NoError(t, err)
	assert.Equal(t, types.ProjectStatusRunning, got.Status)
}
