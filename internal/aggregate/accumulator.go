package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"flowswap/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID      uint64
	PoolAddress  string
	PoolMeta     model.PoolMeta
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	Volume0In    *big.Int
	Volume1In    *big.Int
	Volume0Out   *big.Int
	Volume1Out   *big.Int
	BidCount     uint64
	RefundCount  uint64
	SettledCount uint64
	BidVolume0   *big.Int
	BidVolume1   *big.Int
	Retrieved0   *big.Int
	Retrieved1   *big.Int
	Reserve0     *big.Int
	Reserve1     *big.Int
	BidRatioSum  decimal.Decimal
	LastBlock    uint64
	LastTS       uint64
	FirstBlock   uint64
}

func NewAccumulator(chainID uint64, pool string, meta model.PoolMeta, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     chainID,
		PoolAddress: pool,
		PoolMeta:    meta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0In:   big.NewInt(0),
		Volume1In:   big.NewInt(0),
		Volume0Out:  big.NewInt(0),
		Volume1Out:  big.NewInt(0),
		BidVolume0:  big.NewInt(0),
		BidVolume1:  big.NewInt(0),
		Retrieved0:  big.NewInt(0),
		Retrieved1:  big.NewInt(0),
		BidRatioSum: decimal.Zero,
	}
}

// AddEvent folds one decoded event into the window.
func (a *Accumulator) AddEvent(record model.TypedEventRecord, data model.EventData) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if a.PoolMeta.Token0 == "" && record.PoolMeta != nil {
		a.PoolMeta = *record.PoolMeta
	}

	switch d := data.(type) {
	case *model.SwapEventData:
		return a.applySwap(d)
	case *model.SyncEventData:
		return a.applySync(d)
	case *model.RetrieveFundsEventData:
		return addAll(
			addTo(a.Retrieved0, d.Amount0),
			addTo(a.Retrieved1, d.Amount1),
		)
	case *model.PlaceBidEventData:
		return a.applyPlaceBid(d)
	case *model.RefundBidEventData:
		a.RefundCount++
		return nil
	case *model.ExecuteWinningBidEventData:
		return a.applySettlement(d)
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap *model.SwapEventData) error {
	if err := addAll(
		addTo(a.Volume0In, swap.Amount0In),
		addTo(a.Volume1In, swap.Amount1In),
		addTo(a.Volume0Out, swap.Amount0Out),
		addTo(a.Volume1Out, swap.Amount1Out),
	); err != nil {
		return err
	}
	a.SwapCount++
	return nil
}

func (a *Accumulator) applySync(sync *model.SyncEventData) error {
	reserve0, err := parseBigInt(sync.Reserve0)
	if err != nil {
		return err
	}
	reserve1, err := parseBigInt(sync.Reserve1)
	if err != nil {
		return err
	}
	a.Reserve0, a.Reserve1 = reserve0, reserve1
	return nil
}

func (a *Accumulator) applyPlaceBid(bid *model.PlaceBidEventData) error {
	amount, err := parseBigInt(bid.BidAmount)
	if err != nil {
		return err
	}
	swap, err := parseBigInt(bid.SwapAmount)
	if err != nil {
		return err
	}
	a.BidCount++
	if swap.Sign() > 0 {
		ratio := decimal.NewFromBigInt(amount, 0).DivRound(decimal.NewFromBigInt(swap, 0), ratioScale)
		a.BidRatioSum = a.BidRatioSum.Add(ratio)
	}
	return nil
}

func (a *Accumulator) applySettlement(exec *model.ExecuteWinningBidEventData) error {
	target, err := a.tokenSide(exec.Token, a.BidVolume0, a.BidVolume1)
	if err != nil {
		return err
	}
	if err := addTo(target, exec.BidAmount); err != nil {
		return err
	}
	a.SettledCount++
	return nil
}

func (a *Accumulator) tokenSide(token string, side0, side1 *big.Int) (*big.Int, error) {
	switch {
	case strings.EqualFold(token, a.PoolMeta.Token0):
		return side0, nil
	case strings.EqualFold(token, a.PoolMeta.Token1):
		return side1, nil
	default:
		return nil, fmt.Errorf("token %s not in pool %s", token, a.PoolAddress)
	}
}

func addTo(target *big.Int, value string) error {
	parsed, err := parseBigInt(value)
	if err != nil {
		return err
	}
	target.Add(target, parsed)
	return nil
}

func addAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
