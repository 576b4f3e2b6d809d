package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	Volume0In      string
	Volume1In      string
	Volume0Out     string
	Volume1Out     string
	BidCount       uint64
	RefundCount    uint64
	SettledCount   uint64
	BidVolume0     string
	BidVolume1     string
	Retrieved0     string
	Retrieved1     string
	Reserve0       *string
	Reserve1       *string
	Price          *string
	BidFeeRate     *string
}
