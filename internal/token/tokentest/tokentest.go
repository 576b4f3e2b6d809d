// Package tokentest provides misbehaving token wrappers for tests.
package tokentest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flowswap/internal/token"
)

// Hooked runs OnTransfer before every transfer of the wrapped token. A hook
// error fails the transfer, the way a reverting callback would.
type Hooked struct {
	token.Token
	OnTransfer func(ctx context.Context, from, to common.Address) error
}

func (h *Hooked) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if h.OnTransfer != nil {
		if err := h.OnTransfer(ctx, from, to); err != nil {
			return false, err
		}
	}
	return h.Token.Transfer(ctx, from, to, amount)
}

func (h *Hooked) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	if h.OnTransfer != nil {
		if err := h.OnTransfer(ctx, from, to); err != nil {
			return false, err
		}
	}
	return h.Token.TransferFrom(ctx, spender, from, to, amount)
}

// FalseReturning reports false without moving funds while the matching flag is set.
type FalseReturning struct {
	token.Token
	FailTransfer     bool
	FailTransferFrom bool
}

func (f *FalseReturning) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if f.FailTransfer {
		return false, nil
	}
	return f.Token.Transfer(ctx, from, to, amount)
}

func (f *FalseReturning) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	if f.FailTransferFrom {
		return false, nil
	}
	return f.Token.TransferFrom(ctx, spender, from, to, amount)
}

// Short delivers Shortfall less than requested on every transfer while
// still reporting success.
type Short struct {
	token.Token
	Shortfall *uint256.Int
}

func (s *Short) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	return s.Token.Transfer(ctx, from, to, s.reduce(amount))
}

func (s *Short) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	return s.Token.TransferFrom(ctx, spender, from, to, s.reduce(amount))
}

func (s *Short) reduce(amount *uint256.Int) *uint256.Int {
	if s.Shortfall == nil || amount.Lt(s.Shortfall) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(amount, s.Shortfall)
}
