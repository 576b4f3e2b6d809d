package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowswap/internal/config"
	"flowswap/internal/events"
	"flowswap/internal/model"
	"flowswap/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
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

	_, err = decode(ctx, cfg, logger)
	return err
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

func decode(ctx context.Context, cfg config.DecodeConfig, logger *zap.Logger) (decodeStats, error) {
	var stats decodeStats
	if cfg.In == "" {
		return stats, fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return stats, fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return stats, fmt.Errorf("errors path is required")
	}

	decoder, err := events.NewLogDecoder(events.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return stats, err
	}

	decodeCtx := events.DecodeContext{
		PoolMetaCache: events.NewPoolMetaCache(),
		Logger:        logger,
	}

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return stats, err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return stats, err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Int("topic0_aliases", len(cfg.Topic0Map)),
	)

	err = storage.ScanJSONL(cfg.In, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()}, logger)
			return nil
		}
		if len(record.Topics) == 0 {
			stats.failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, fmt.Errorf("missing topic0")), logger)
			return nil
		}

		if !decoder.CanDecode(record.Topics[0]) {
			stats.skipped++
			return nil
		}

		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			stats.failed++
			writeDecodeError(errWriter, decodeErrorFromRecord(record, err), logger)
			return nil
		}

		if err := outWriter.Write(event); err != nil {
			return err
		}
		stats.decoded++
		return nil
	})
	if err != nil {
		return stats, err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
		zap.Int("pools", decodeCtx.PoolMetaCache.Len()),
	)

	return stats, nil
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}

func writeDecodeError(writer *storage.JSONLWriter, errRecord model.DecodeError, logger *zap.Logger) {
	if writer == nil {
		return
	}
	if err := writer.Write(errRecord); err != nil {
		logger.Warn("write decode error failed",
			zap.Uint64("block", errRecord.BlockNumber),
			zap.Uint64("log_index", errRecord.LogIndex),
			zap.Error(err),
		)
	}
}
