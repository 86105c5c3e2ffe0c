// Package reconciler runs the single background loop that recovers
// stuck transitional projects and auto-snapshots idle ones.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bitsy-Chuck/pomodex/internal/lifecycle"
	"github.com/Bitsy-Chuck/pomodex/internal/log"
	"github.com/Bitsy-Chuck/pomodex/internal/metrics"
	"github.com/Bitsy-Chuck/pomodex/internal/storage"
	"github.com/Bitsy-Chuck/pomodex/internal/types"
)

// Config controls tick cadence and the stuck/idle thresholds.
type Config struct {
	Interval       time.Duration
	StuckThreshold time.Duration
	IdleThreshold  time.Duration
}

// Reconciler ensures no project is left stuck in a transitional state
// past StuckThreshold, and auto-snapshots projects idle past
// IdleThreshold.
type Reconciler struct {
	store      storage.Store
	lifecycle  *lifecycle.Controller
	cfg        Config
	logger     zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

func New(store storage.Store, lc *lifecycle.Controller, cfg Config) *Reconciler {
	return &Reconciler{
		store:     store,
		lifecycle: lc,
		cfg:       cfg,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the reconciliation loop in the background.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop cancels the pending sleep and exits the loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.cfg.Interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.reconcile(context.Background())
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile performs one cycle. Errors on one project never stop
// reconciliation of others.
func (r *Reconciler) reconcile(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.recoverStuck(ctx)
	r.snapshotIdle(ctx)
}

// recoverStuck resets projects that have sat in a transitional state
// past the stuck threshold straight to error; on a crash mid-operation
// these would otherwise leak forever.
func (r *Reconciler) recoverStuck(ctx context.Context) {
	projects, err := r.store.ListProjectsByStatus(ctx, types.TransitionalStates)
	if err != nil {
		r.logger.Error().Err(err).Msg("listing transitional projects")
		return
	}

	cutoff := time.Now().Add(-r.cfg.StuckThreshold)
	for _, p := range projects {
		if p.LastActiveAt.After(cutoff) {
			continue
		}
		r.logger.Warn().
			Str("project_id", p.ID).
			Str("status", string(p.Status)).
			Dur("stuck_for", time.Since(p.LastActiveAt)).
			Msg("project stuck in transitional state, marking error")

		p.Status = types.ProjectStatusError
		p.UpdatedAt = time.Now().UTC()
		if err := r.store.UpdateProject(ctx, p); err != nil {
			r.logger.Error().Err(err).Str("project_id", p.ID).Msg("failed to mark stuck project as error")
		}
		metrics.StuckProjectsRecoveredTotal.Inc()
	}
}

// snapshotIdle invokes the same transition as an explicit stop for
// every running project whose terminal has been quiet past the idle
// threshold. A NULL last_connection_at counts as idle immediately.
func (r *Reconciler) snapshotIdle(ctx context.Context) {
	projects, err := r.store.ListProjectsByStatus(ctx, []types.ProjectStatus{types.ProjectStatusRunning})
	if err != nil {
		r.logger.Error().Err(err).Msg("listing running projects")
		return
	}

	cutoff := time.Now().Add(-r.cfg.IdleThreshold)
	for _, p := range projects {
		idle := p.LastConnectionAt == nil || p.LastConnectionAt.Before(cutoff)
		if !idle {
			continue
		}

		r.logger.Info().Str("project_id", p.ID).Msg("auto-snapshotting idle project")
		if _, err := r.lifecycle.Snapshot(ctx, p.ID, p.UserID); err != nil {
			r.logger.Error().Err(err).Str("project_id", p.ID).Msg("auto-snapshot failed")
			continue
		}
		metrics.IdleProjectsSnapshottedTotal.Inc()
	}
}
