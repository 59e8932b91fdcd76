/*
scheduler.go - Scheduled commission resync

PURPOSE:
  Runs the nightly resync that recomputes every policy's commission record
  against the current rule set. Keeps records converged after rule loads
  that happen outside the API (bulk imports, manual SQL).

DESIGN:
  - robfig/cron drives the schedule; the expression is configurable
  - Each run delegates to Engine.ResyncAll, which fans out over a worker
    pool and never aborts on a single bad policy
  - Panics inside a run are recovered by the cron chain, not the process

CONFIGURATION:
  - Spec: cron expression (default: "0 2 * * *", 02:00 daily)

USAGE:
  scheduler := NewResyncScheduler(engine, "0 2 * * *", logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - commission/engine.go: ResyncAll implementation
  - handlers.go: Resync endpoint (manual trigger)
*/
package api

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/commission"
)

// DefaultResyncSpec runs the nightly resync at 02:00.
const DefaultResyncSpec = "0 2 * * *"

// ResyncScheduler triggers periodic full recomputation.
type ResyncScheduler struct {
	engine *commission.Engine
	spec   string
	log    *zap.Logger
	cron   *cron.Cron
}

// NewResyncScheduler creates a scheduler with the given cron spec.
// An empty spec falls back to DefaultResyncSpec.
func NewResyncScheduler(engine *commission.Engine, spec string, log *zap.Logger) *ResyncScheduler {
	if spec == "" {
		spec = DefaultResyncSpec
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ResyncScheduler{engine: engine, spec: spec, log: log}
}

// Start registers the resync job and begins the cron loop.
func (s *ResyncScheduler) Start() error {
	cronLog := zapCronLogger{s.log}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLog)))

	if _, err := s.cron.AddFunc(s.spec, s.runResync); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.log.Info("resync scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *ResyncScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("resync scheduler stopped")
}

func (s *ResyncScheduler) runResync() {
	report, err := s.engine.ResyncAll(context.Background(), "")
	if err != nil {
		s.log.Error("scheduled resync failed", zap.Error(err))
		return
	}
	s.log.Info("scheduled resync completed",
		zap.Int("total", report.Total),
		zap.Int("calculated", report.Calculated),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("failed", report.Failed))
}

// zapCronLogger adapts zap to the cron.Logger interface.
type zapCronLogger struct {
	log *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append([]any{"error", err}, keysAndValues...)...)
}
