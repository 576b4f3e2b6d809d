package fixedpoint

import "github.com/holiman/uint256"

// Accumulator is a running sum kept modulo 2^256. Add never fails; it wraps.
// Since returns the wrapped difference between two samples, which is exact as
// long as the accumulator wrapped at most once between them.
type Accumulator struct {
	v uint256.Int
}

// NewAccumulator starts an accumulator at v.
func NewAccumulator(v *uint256.Int) Accumulator {
	var a Accumulator
	a.v.Set(v)
	return a
}

// Add returns a+delta mod 2^256.
func (a Accumulator) Add(delta *uint256.Int) Accumulator {
	var out Accumulator
	out.v.Add(&a.v, delta)
	return out
}

// Since returns a-earlier mod 2^256.
func (a Accumulator) Since(earlier Accumulator) *uint256.Int {
	return new(uint256.Int).Sub(&a.v, &earlier.v)
}

// Value returns a copy of the raw accumulator.
func (a Accumulator) Value() *uint256.Int {
	return a.v.Clone()
}

// WrappedSince reports whether the accumulator passed 2^256 after earlier.
func (a Accumulator) WrappedSince(earlier Accumulator) bool {
	return a.v.Lt(&earlier.v)
}

func (a Accumulator) String() string {
	return a.v.Dec()
}
