package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const ratioScale = 18

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func optionalAmount(value *big.Int) *string {
	if value == nil {
		return nil
	}
	text := value.String()
	return &text
}

// ratio returns num/den rounded to ratioScale places, or nil when den is zero.
func ratio(num, den *big.Int) *string {
	if num == nil || den == nil || den.Sign() == 0 {
		return nil
	}
	q := decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), ratioScale)
	text := q.String()
	return &text
}

// averagePrice is the token1-per-token0 price over every swap leg of the window.
func averagePrice(acc *Accumulator) *string {
	token0 := new(big.Int).Add(acc.Volume0In, acc.Volume0Out)
	token1 := new(big.Int).Add(acc.Volume1In, acc.Volume1Out)
	if token0.Sign() == 0 {
		return nil
	}
	return ratio(token1, token0)
}

// bidFeeRate is the mean bid-to-swap ratio of the bids placed in the window.
func bidFeeRate(acc *Accumulator) *string {
	if acc.BidCount == 0 {
		return nil
	}
	mean := acc.BidRatioSum.DivRound(decimal.NewFromInt(int64(acc.BidCount)), ratioScale)
	text := mean.String()
	return &text
}
