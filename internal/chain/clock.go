package chain

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
)

// Clock tracks the current block (settlement window) and block timestamp.
type Clock struct {
	mu    sync.RWMutex
	block uint64
	time  uint64
}

// NewClock starts a clock at the given block and unix timestamp.
func NewClock(block, timestamp uint64) *Clock {
	return &Clock{block: block, time: timestamp}
}

// BlockNumber returns the current block.
func (c *Clock) BlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.block
}

// Now returns the current block timestamp.
func (c *Clock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.time
}

// Mine opens the next block and moves time forward by seconds.
func (c *Clock) Mine(seconds uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	c.time += seconds
	return c.block
}

// Advance moves time forward without opening a block.
func (c *Clock) Advance(seconds uint64) {
	c.mu.Lock()
	c.time += seconds
	c.mu.Unlock()
}

// SetTime jumps to an absolute timestamp.
func (c *Clock) SetTime(timestamp uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timestamp < c.time {
		return errorsmod.Wrapf(ErrTimeTravel, "%d < %d", timestamp, c.time)
	}
	c.time = timestamp
	return nil
}
