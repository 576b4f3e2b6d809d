// Package chain hosts pools, tokens and the auction in one process. It keeps
// the block clock and runs every state change as an all-or-nothing transaction
// over the registered components.
package chain

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"flowswap/internal/model"
)

// Journaled is implemented by every component whose state must roll back with
// a failed transaction. Restore receives a value previously returned by Snapshot.
type Journaled interface {
	Snapshot() any
	Restore(snapshot any)
}

// Log is an event emitted by a committed transaction.
type Log struct {
	Address     common.Address
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   uint64
	TxHash      common.Hash
	TxIndex     uint64
	LogIndex    uint64
	Data        model.EventData
}

type txKey struct{}

// World owns the clock, the journaled components and the committed event log.
// Transactions are serialised; components are not safe for reads concurrent
// with a running transaction.
type World struct {
	chainID uint64
	clock   *Clock
	logger  *zap.Logger

	mu      sync.Mutex
	parts   []Journaled
	txLogs  []Log
	pending []Log

	nonce     uint64
	txBlock   uint64
	txIndex   uint64
	blockLogs uint64
}

// NewWorld creates an empty world.
func NewWorld(chainID uint64, clock *Clock, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewClock(1, 0)
	}
	return &World{chainID: chainID, clock: clock, logger: logger}
}

// ChainID returns the chain id stamped on emitted logs.
func (w *World) ChainID() uint64 { return w.chainID }

// Clock returns the block clock.
func (w *World) Clock() *Clock { return w.clock }

// Now returns the current block timestamp.
func (w *World) Now() uint64 { return w.clock.Now() }

// BlockNumber returns the current block.
func (w *World) BlockNumber() uint64 { return w.clock.BlockNumber() }

// Register adds a component to the journal. It is called during setup or from
// inside a transaction; a registration made by a reverted transaction is undone.
func (w *World) Register(part Journaled) {
	w.parts = append(w.parts, part)
}

// InTx reports whether ctx belongs to a running transaction.
func InTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// Atomic runs fn as a transaction. Nested calls open a nested frame that
// rolls back on its own error; the outer frame decides what is committed.
func (w *World) Atomic(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return w.frame(ctx, fn)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.txLogs = w.txLogs[:0]
	err = w.frame(context.WithValue(ctx, txKey{}, name), fn)
	if err != nil {
		w.logger.Warn("transaction reverted",
			zap.String("tx", name),
			zap.Uint64("block", w.clock.BlockNumber()),
			zap.Error(err),
		)
		return err
	}
	w.commit(name)
	return nil
}

func (w *World) frame(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	snaps := make([]any, len(w.parts))
	for i, part := range w.parts {
		snaps[i] = part.Snapshot()
	}
	mark := len(w.txLogs)
	restore := func() {
		w.parts = w.parts[:len(snaps)]
		for i, part := range w.parts {
			part.Restore(snaps[i])
		}
		w.txLogs = w.txLogs[:mark]
	}

	defer func() {
		if r := recover(); r != nil {
			restore()
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		restore()
	}
	return err
}

// Emit records an event for the running transaction.
func (w *World) Emit(ctx context.Context, address common.Address, data model.EventData) error {
	if !InTx(ctx) {
		return ErrNoTransaction
	}
	w.txLogs = append(w.txLogs, Log{Address: address, Data: data})
	return nil
}

func (w *World) commit(name string) {
	block := w.clock.BlockNumber()
	if block != w.txBlock {
		w.txBlock = block
		w.txIndex = 0
		w.blockLogs = 0
	}

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], w.chainID)
	binary.BigEndian.PutUint64(buf[8:], w.nonce)
	txHash := crypto.Keccak256Hash(buf[:])
	blockHash := BlockHash(w.chainID, block)
	now := w.clock.Now()

	for _, l := range w.txLogs {
		l.BlockNumber = block
		l.BlockHash = blockHash
		l.Timestamp = now
		l.TxHash = txHash
		l.TxIndex = w.txIndex
		l.LogIndex = w.blockLogs
		w.blockLogs++
		w.pending = append(w.pending, l)
	}
	w.logger.Debug("transaction committed",
		zap.String("tx", name),
		zap.String("hash", txHash.Hex()),
		zap.Uint64("block", block),
		zap.Int("logs", len(w.txLogs)),
	)
	w.txLogs = w.txLogs[:0]
	w.nonce++
	w.txIndex++
}

// Drain returns committed logs and clears the buffer.
func (w *World) Drain() []Log {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

// BlockHash derives a deterministic hash for a block number.
func BlockHash(chainID, block uint64) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], chainID)
	binary.BigEndian.PutUint64(buf[8:], block)
	return crypto.Keccak256Hash([]byte("block"), buf[:])
}
