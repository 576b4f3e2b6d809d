// Package fixedpoint holds the 256-bit arithmetic used by pools and the auction:
// checked helpers with a 512-bit intermediate for products, the Q96 scale of the
// price accumulators, and wrap-aware accumulator and timestamp types.
package fixedpoint

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// BasisPointScale is the denominator of every fee expressed in basis points.
const BasisPointScale = 10_000

// Q96 returns 2^96, the scale of the price accumulators.
func Q96() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 96)
}

// MaxUint112 returns the largest value a reserve may hold.
func MaxUint112() *uint256.Int {
	one := uint256.NewInt(1)
	return new(uint256.Int).Sub(new(uint256.Int).Lsh(one, 112), one)
}

// MaxUint256 returns 2^256-1.
func MaxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// MulDiv computes floor(x*y/d) with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, errorsmod.Wrapf(ErrOverflow, "%s * %s / %s", x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, errorsmod.Wrapf(ErrOverflow, "%s + %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// Sub returns x-y or ErrUnderflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, errorsmod.Wrapf(ErrUnderflow, "%s - %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// Mul returns x*y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, errorsmod.Wrapf(ErrOverflow, "%s * %s", x.Dec(), y.Dec())
	}
	return z, nil
}

// SubFloor returns x-y, or zero when y > x.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if y.Gt(x) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x.Clone()
	}
	return y.Clone()
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// AfterFee returns floor(x * (10000-bps) / 10000).
func AfterFee(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps > BasisPointScale {
		return nil, errorsmod.Wrapf(ErrInvalidNumber, "fee %d bps", bps)
	}
	return MulDiv(x, uint256.NewInt(BasisPointScale-bps), uint256.NewInt(BasisPointScale))
}

// Bps returns floor(x * bps / 10000).
func Bps(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(x, uint256.NewInt(bps), uint256.NewInt(BasisPointScale))
}

// Parse reads a base-10 amount.
func Parse(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, errorsmod.Wrapf(ErrInvalidNumber, "%q", s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, errorsmod.Wrapf(ErrOverflow, "%q", s)
	}
	return z, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) *uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// Ether returns n * 10^18.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}
