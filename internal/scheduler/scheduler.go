// Package scheduler runs the pipeline's periodic jobs: the daily
// hierarchy sync and product scan, and the interval drain and apply
// passes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ecomstack/shelfsort/internal/server"
)

// Config holds the job schedule. Specs use standard five-field cron
// syntax, or @every intervals.
type Config struct {
	SyncSpec   string
	DrainSpec  string
	ApplySpec  string
	ScanWindow time.Duration
}

// DefaultConfig syncs and scans nightly at 02:00, drains every five
// minutes, and applies every ten.
func DefaultConfig() Config {
	return Config{
		SyncSpec:   "0 2 * * *",
		DrainSpec:  "@every 5m",
		ApplySpec:  "@every 10m",
		ScanWindow: 25 * time.Hour,
	}
}

// Scheduler owns the cron runner for the periodic pipeline jobs.
type Scheduler struct {
	cron     *cron.Cron
	pipeline server.Pipeline
	logger   *slog.Logger
	cfg      Config
}

// New creates a scheduler over the pipeline. Job panics are recovered
// and logged so one bad run never takes the process down.
func New(pipeline server.Pipeline, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	defaults := DefaultConfig()
	if cfg.SyncSpec == "" {
		cfg.SyncSpec = defaults.SyncSpec
	}
	if cfg.DrainSpec == "" {
		cfg.DrainSpec = defaults.DrainSpec
	}
	if cfg.ApplySpec == "" {
		cfg.ApplySpec = defaults.ApplySpec
	}
	if cfg.ScanWindow <= 0 {
		cfg.ScanWindow = defaults.ScanWindow
	}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		pipeline: pipeline,
		logger:   logger,
		cfg:      cfg,
	}

	if _, err := s.cron.AddFunc(cfg.SyncSpec, s.runSyncAndScan); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.SyncSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.DrainSpec, s.runDrain); err != nil {
		return nil, fmt.Errorf("invalid drain schedule %q: %w", cfg.DrainSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.ApplySpec, s.runApply); err != nil {
		return nil, fmt.Errorf("invalid apply schedule %q: %w", cfg.ApplySpec, err)
	}

	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		"sync", s.cfg.SyncSpec,
		"drain", s.cfg.DrainSpec,
		"apply", s.cfg.ApplySpec)
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// runSyncAndScan rebuilds the hierarchy snapshot and then queues
// recently updated products. Scan is skipped if the sync fails so
// products are never queued against a stale snapshot it just failed to
// refresh.
func (s *Scheduler) runSyncAndScan() {
	ctx := context.Background()

	collections, err := s.pipeline.SyncHierarchy(ctx)
	if err != nil {
		s.logger.Error("scheduled hierarchy sync failed", "error", err)
		return
	}

	queued, err := s.pipeline.ScanNewProducts(ctx, time.Now().Add(-s.cfg.ScanWindow))
	if err != nil {
		s.logger.Error("scheduled product scan failed", "error", err)
		return
	}

	s.logger.Info("scheduled sync and scan complete",
		"collections", collections,
		"queued", queued)
}

func (s *Scheduler) runDrain() {
	processed, err := s.pipeline.DrainQueue(context.Background(), 0)
	if err != nil {
		s.logger.Error("scheduled queue drain failed", "error", err)
		return
	}
	if processed > 0 {
		s.logger.Info("scheduled drain complete", "processed", processed)
	}
}

func (s *Scheduler) runApply() {
	applied, err := s.pipeline.ApplyAssignments(context.Background(), 0)
	if err != nil {
		s.logger.Error("scheduled apply failed", "error", err)
		return
	}
	if applied > 0 {
		s.logger.Info("scheduled apply complete", "applied", applied)
	}
}
