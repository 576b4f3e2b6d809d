package pool

import (
	"context"
	"maps"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// shareLedger is the pool's liquidity-share accounting.
type shareLedger struct {
	supply   uint256.Int
	balances map[common.Address]uint256.Int
}

func newShareLedger() shareLedger {
	return shareLedger{balances: make(map[common.Address]uint256.Int)}
}

func (l shareLedger) clone() shareLedger {
	return shareLedger{supply: l.supply, balances: maps.Clone(l.balances)}
}

func (l *shareLedger) mint(to common.Address, amount *uint256.Int) {
	b := l.balances[to]
	b.Add(&b, amount)
	l.balances[to] = b
	l.supply.Add(&l.supply, amount)
}

func (l *shareLedger) burn(from common.Address, amount *uint256.Int) error {
	b := l.balances[from]
	if b.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientShares, "%s holds %s", from.Hex(), b.Dec())
	}
	b.Sub(&b, amount)
	l.balances[from] = b
	l.supply.Sub(&l.supply, amount)
	return nil
}

func (l *shareLedger) move(from, to common.Address, amount *uint256.Int) error {
	if err := l.burn(from, amount); err != nil {
		return err
	}
	l.mint(to, amount)
	return nil
}

// TotalSupply returns the outstanding liquidity shares.
func (p *Pool) TotalSupply() *uint256.Int { return p.st.shares.supply.Clone() }

// SharesOf returns an account's liquidity shares.
func (p *Pool) SharesOf(account common.Address) *uint256.Int {
	b := p.st.shares.balances[account]
	return b.Clone()
}

// TransferShares moves liquidity shares. Burning starts by moving shares to
// the pool's own address.
func (p *Pool) TransferShares(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return p.world.Atomic(ctx, "transferShares", func(ctx context.Context) error {
		return p.st.shares.move(from, to, amount)
	})
}
