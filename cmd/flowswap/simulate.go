package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowswap/internal/config"
	"flowswap/internal/observability"
	"flowswap/internal/sim"
	"flowswap/internal/storage"
	"flowswap/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return simulate(ctx, cfg, logger)
}

func simulate(ctx context.Context, cfg config.SimulateConfig, logger *zap.Logger) error {
	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	if cfg.Out == "" && cfg.PGDSN == "" {
		return fmt.Errorf("at least one of out or pg-dsn is required")
	}
	if err := cfg.RegistryConfig().Validate(); err != nil {
		return err
	}

	scenario, err := sim.LoadScenario(cfg.Scenario)
	if err != nil {
		return err
	}

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		sinks = append(sinks, store)
	}

	metrics := observability.NewMetrics()
	server := observability.NewServer(cfg.MetricsAddr, metrics)
	if server != nil {
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(shutdownCtx)
		}()
	}

	runner := sim.NewRunner(sim.RunConfig{
		ChainID:        cfg.ChainID,
		Registry:       cfg.RegistryConfig(),
		BatchSize:      cfg.BatchSize,
		CheckpointPath: cfg.Checkpoint,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
	}, scenario, sinks, metrics, logger)

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("scenario_id", scenario.ID),
		zap.Int("steps", len(scenario.Steps)),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("checkpoint", cfg.Checkpoint),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	if err := runner.Run(ctx); err != nil {
		return err
	}

	env := runner.Env()
	for _, p := range env.Registry.Pools() {
		r0, r1, _, err := p.GetRealTimeReserves()
		if err != nil {
			logger.Warn("read reserves", zap.String("pool", p.Address().Hex()), zap.Error(err))
			continue
		}
		logger.Info("pool state",
			zap.String("pool", p.Address().Hex()),
			zap.String("reserve0", r0.Dec()),
			zap.String("reserve1", r1.Dec()),
			zap.String("total_shares", p.TotalSupply().Dec()),
		)
	}
	logger.Info("simulate complete",
		zap.Uint64("block", env.World.BlockNumber()),
		zap.Uint64("timestamp", env.World.Now()),
	)
	return nil
}
