package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowswap/internal/model"
	"flowswap/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives pool records and window metrics.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates typed events into pool window metrics.
type Aggregator struct {
	cfg          Config
	store        Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

type runStats struct {
	total, windows, skipped, failed int
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 16)
	maxTs := startTs
	var stats runStats

	err = storage.ScanJSONL(inputPath, func(line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}
		if record.Timestamp <= startTs {
			stats.skipped++
			return nil
		}

		data, err := record.DecodeData()
		if err != nil {
			if isUnknownEvent(err) {
				stats.skipped++
				return nil
			}
			stats.failed++
			a.logger.Warn("decode event payload", zap.Error(err), zap.String("event", record.EventName))
			return nil
		}

		if created, ok := data.(*model.PairCreatedEventData); ok {
			if pool := a.registerPool(record, created); pool != nil {
				pools = append(pools, *pool)
			}
			return nil
		}

		poolAddr := eventPool(record, data)
		if poolAddr == "" {
			stats.skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(poolAddr)
		acc := a.accumulators[accKey]
		if acc != nil && acc.WindowStart != windowStart {
			if metrics := a.flushAccumulator(acc); metrics != nil {
				batch = append(batch, *metrics)
				stats.windows++
			}
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record.ChainID, poolAddr, a.metaFor(accKey, record), windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record, data); err != nil {
			stats.failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", poolAddr), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		if metrics := a.flushAccumulator(acc); metrics != nil {
			batch = append(batch, *metrics)
			stats.windows++
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.total),
		zap.Int("windows", stats.windows),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) *model.PoolWindowMetrics {
	if acc == nil {
		return nil
	}
	if acc.PoolMeta.Token0 == "" || acc.PoolMeta.Token1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil
	}

	var price *string
	if acc.SwapCount > 0 {
		price = averagePrice(acc)
	} else {
		price = ratio(acc.Reserve1, acc.Reserve0)
	}

	return &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		Volume0In:      formatAmount(acc.Volume0In),
		Volume1In:      formatAmount(acc.Volume1In),
		Volume0Out:     formatAmount(acc.Volume0Out),
		Volume1Out:     formatAmount(acc.Volume1Out),
		BidCount:       acc.BidCount,
		RefundCount:    acc.RefundCount,
		SettledCount:   acc.SettledCount,
		BidVolume0:     formatAmount(acc.BidVolume0),
		BidVolume1:     formatAmount(acc.BidVolume1),
		Retrieved0:     formatAmount(acc.Retrieved0),
		Retrieved1:     formatAmount(acc.Retrieved1),
		Reserve0:       optionalAmount(acc.Reserve0),
		Reserve1:       optionalAmount(acc.Reserve1),
		Price:          price,
		BidFeeRate:     bidFeeRate(acc),
	}
}

func (a *Aggregator) registerPool(record model.TypedEventRecord, created *model.PairCreatedEventData) *model.Pool {
	key := poolKey(created.Pair)
	pool := model.Pool{
		ChainID:      record.ChainID,
		Address:      created.Pair,
		Token0:       created.Token0,
		Token1:       created.Token1,
		Index:        created.Index,
		CreatedBlock: record.BlockNumber,
	}

	if existing, ok := a.poolSeen[key]; ok && existing.CreatedBlock <= pool.CreatedBlock {
		return nil
	}
	a.poolSeen[key] = pool
	return &pool
}

func (a *Aggregator) metaFor(key string, record model.TypedEventRecord) model.PoolMeta {
	if record.PoolMeta != nil {
		return *record.PoolMeta
	}
	if pool, ok := a.poolSeen[key]; ok {
		return model.PoolMeta{Token0: pool.Token0, Token1: pool.Token1}
	}
	return model.PoolMeta{}
}

// eventPool returns the pool an event belongs to, or "" for events outside any pool.
func eventPool(record model.TypedEventRecord, data model.EventData) string {
	switch d := data.(type) {
	case *model.PlaceBidEventData:
		return d.Pool
	case *model.ExecuteWinningBidEventData:
		return d.Pool
	case *model.RefundBidEventData:
		return d.Pool
	case *model.FlowUpdatedEventData:
		return ""
	default:
		return record.Address
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

func isUnknownEvent(err error) bool {
	var unknown *model.UnknownEventError
	return errors.As(err, &unknown)
}
