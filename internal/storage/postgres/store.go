package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowswap/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS raw_logs (
	chain_id     BIGINT      NOT NULL,
	block_number BIGINT      NOT NULL,
	log_index    BIGINT      NOT NULL,
	block_hash   TEXT        NOT NULL,
	tx_hash      TEXT        NOT NULL,
	tx_index     BIGINT      NOT NULL,
	address      TEXT        NOT NULL,
	topics       TEXT[]      NOT NULL,
	data         TEXT        NOT NULL,
	block_ts     BIGINT      NOT NULL,
	ingested_at  TEXT        NOT NULL,
	PRIMARY KEY (chain_id, block_number, log_index)
);
CREATE TABLE IF NOT EXISTS pools (
	chain_id      BIGINT      NOT NULL,
	pool_address  TEXT        NOT NULL,
	token0        TEXT        NOT NULL,
	token1        TEXT        NOT NULL,
	pair_index    BIGINT      NOT NULL,
	created_block BIGINT      NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id            BIGINT      NOT NULL,
	pool_address        TEXT        NOT NULL,
	window_size_seconds BIGINT      NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT      NOT NULL,
	volume0_in          NUMERIC     NOT NULL,
	volume1_in          NUMERIC     NOT NULL,
	volume0_out         NUMERIC     NOT NULL,
	volume1_out         NUMERIC     NOT NULL,
	bid_count           BIGINT      NOT NULL,
	refund_count        BIGINT      NOT NULL,
	settled_count       BIGINT      NOT NULL,
	bid_volume0         NUMERIC     NOT NULL,
	bid_volume1         NUMERIC     NOT NULL,
	retrieved0          NUMERIC     NOT NULL,
	retrieved1          NUMERIC     NOT NULL,
	reserve0            NUMERIC,
	reserve1            NUMERIC,
	price               NUMERIC,
	bid_fee_rate        NUMERIC,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS flowswap_state (
	name              TEXT        PRIMARY KEY,
	last_processed_ts BIGINT      NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
`

// querier is the subset of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store provides Postgres persistence for raw logs, pools and window metrics.
type Store struct {
	db    querier
	close func()
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: pool, close: pool.Close}, nil
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts raw log records, ignoring ones already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(`
			INSERT INTO raw_logs (
				chain_id, block_number, log_index, block_hash, tx_hash, tx_index,
				address, topics, data, block_ts, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (chain_id, block_number, log_index) DO NOTHING
		`,
			int64(log.ChainID),
			int64(log.BlockNumber),
			int64(log.LogIndex),
			log.BlockHash,
			log.TxHash,
			int64(log.TxIndex),
			log.Address,
			log.Topics,
			log.Data,
			int64(log.Timestamp),
			log.IngestedAt,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, pair_index, created_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				pair_index = GREATEST(pools.pair_index, EXCLUDED.pair_index),
				created_block = LEAST(pools.created_block, EXCLUDED.created_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token0,
			pool.Token1,
			int64(pool.Index),
			int64(pool.CreatedBlock),
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume0_in, volume1_in, volume0_out, volume1_out,
				bid_count, refund_count, settled_count, bid_volume0, bid_volume1,
				retrieved0, retrieved1, reserve0, reserve1, price, bid_fee_rate,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume0_in = EXCLUDED.volume0_in,
				volume1_in = EXCLUDED.volume1_in,
				volume0_out = EXCLUDED.volume0_out,
				volume1_out = EXCLUDED.volume1_out,
				bid_count = EXCLUDED.bid_count,
				refund_count = EXCLUDED.refund_count,
				settled_count = EXCLUDED.settled_count,
				bid_volume0 = EXCLUDED.bid_volume0,
				bid_volume1 = EXCLUDED.bid_volume1,
				retrieved0 = EXCLUDED.retrieved0,
				retrieved1 = EXCLUDED.retrieved1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				price = EXCLUDED.price,
				bid_fee_rate = EXCLUDED.bid_fee_rate,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.Volume0In,
			m.Volume1In,
			m.Volume0Out,
			m.Volume1Out,
			int64(m.BidCount),
			int64(m.RefundCount),
			int64(m.SettledCount),
			m.BidVolume0,
			m.BidVolume1,
			m.Retrieved0,
			m.Retrieved1,
			m.Reserve0,
			m.Reserve1,
			m.Price,
			m.BidFeeRate,
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.db.QueryRow(ctx, `SELECT last_processed_ts FROM flowswap_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO flowswap_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
