// Package token defines the capability interface pools and the auction use to
// move assets, with an ERC20-style ledger and a streaming token whose balances
// change every second.
package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the capability set the core needs from an asset. Implementations
// may misbehave; callers go through SafeTransfer and SafeTransferFrom.
type Token interface {
	Address() common.Address
	BalanceOf(account common.Address) *uint256.Int
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error)
}

// SafeTransfer moves amount and turns a false return into ErrReturnedFalse.
func SafeTransfer(ctx context.Context, t Token, from, to common.Address, amount *uint256.Int) error {
	ok, err := t.Transfer(ctx, from, to, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReturnedFalse
	}
	return nil
}

// SafeTransferFrom is SafeTransfer for allowance-based pulls.
func SafeTransferFrom(ctx context.Context, t Token, spender, from, to common.Address, amount *uint256.Int) error {
	ok, err := t.TransferFrom(ctx, spender, from, to, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReturnedFalse
	}
	return nil
}

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}
