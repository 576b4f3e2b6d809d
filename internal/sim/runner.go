// Package sim drives the engine from a scripted scenario and ships the
// committed events to storage as raw log records.
package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowswap/internal/events"
	"flowswap/internal/observability"
	"flowswap/internal/registry"
	"flowswap/internal/storage"
)

// ExpectAnyRevert accepts any failure of a step marked expect-revert.
const ExpectAnyRevert = "any"

// RunConfig holds runtime settings for a simulation.
type RunConfig struct {
	ChainID        uint64
	Registry       registry.Config
	BatchSize      uint64
	CheckpointPath string
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Runner applies scenario steps and writes their events to storage.
type Runner struct {
	cfg        RunConfig
	scenario   Scenario
	storage    storage.Storage
	metrics    *observability.Metrics
	logger     *zap.Logger
	checkpoint *CheckpointStore
	env        *Env
}

// NewRunner builds a Runner with its dependencies. metrics may be nil.
func NewRunner(cfg RunConfig, sc Scenario, storageSink storage.Storage, metrics *observability.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		scenario:   sc,
		storage:    storageSink,
		metrics:    metrics,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath),
	}
}

// Env returns the world of the last Run.
func (r *Runner) Env() *Env { return r.env }

// Run executes the scenario. Steps already covered by the checkpoint are
// replayed to rebuild state, but their events are not written again.
func (r *Runner) Run(ctx context.Context) error {
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if err := r.scenario.Validate(); err != nil {
		return err
	}

	env, err := NewEnv(r.scenario, r.cfg.ChainID, r.cfg.Registry, r.logger)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	r.env = env
	encoder, err := events.NewEncoder(r.cfg.ChainID)
	if err != nil {
		return err
	}

	from := uint64(0)
	to := uint64(len(r.scenario.Steps) - 1)

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	switch {
	case ok && cp.Scenario != r.scenario.ID:
		r.logger.Warn("checkpoint belongs to another scenario, starting over", zap.String("checkpoint_scenario", cp.Scenario))
	case ok:
		last := cp.LastAppliedStep
		if last > to {
			last = to
		}
		for i := uint64(0); i <= last; i++ {
			if err := r.apply(ctx, env, i, true); err != nil {
				return fmt.Errorf("replay: %w", err)
			}
		}
		env.World.Drain()
		from = last + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", cp.LastAppliedStep), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to apply", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, stepRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for i := stepRange.From; i <= stepRange.To; i++ {
			if err := r.apply(ctx, env, i, false); err != nil {
				return err
			}
		}

		logs := env.World.Drain()
		r.metrics.Observe(logs)
		records, err := encoder.EncodeAll(logs)
		if err != nil {
			return fmt.Errorf("encode logs: %w", err)
		}

		err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := r.storage.PutLogBatch(ctx, records)
			if err != nil {
				r.logger.Warn("store logs failed", zap.Error(err), zap.Uint64("from", stepRange.From), zap.Uint64("to", stepRange.To))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if err := r.checkpoint.Save(r.scenario.ID, stepRange.To); err != nil {
			return err
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(records)),
			zap.Uint64("from", stepRange.From),
			zap.Uint64("to", stepRange.To),
			zap.Uint64("block", env.World.BlockNumber()),
			zap.Uint64("timestamp", env.World.Now()),
		)
	}

	return nil
}

func (r *Runner) apply(ctx context.Context, env *Env, index uint64, replay bool) error {
	step := r.scenario.Steps[index]
	err := env.Apply(ctx, step)
	if !replay {
		r.metrics.ObserveStep(step.Kind, err)
	}

	if step.ExpectRevert == "" {
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", index, step.Kind, err)
		}
		return nil
	}
	if err == nil {
		return fmt.Errorf("step %d (%s): expected revert %q", index, step.Kind, step.ExpectRevert)
	}
	if step.ExpectRevert != ExpectAnyRevert && !strings.Contains(err.Error(), step.ExpectRevert) {
		return fmt.Errorf("step %d (%s): expected revert %q, got: %w", index, step.Kind, step.ExpectRevert, err)
	}
	if !replay {
		r.logger.Info("step reverted as expected", zap.Uint64("step", index), zap.String("kind", step.Kind), zap.Error(err))
	}
	return nil
}
