package token

import (
	"context"
	"maps"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"flowswap/internal/chain"
	"flowswap/internal/model"
)

// Ledger is a plain ERC20-style token.
type Ledger struct {
	address    common.Address
	meta       model.TokenMeta
	supply     uint256.Int
	balances   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
}

type ledgerState struct {
	supply     uint256.Int
	balances   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
}

// NewLedger creates a token and registers it with the world's journal.
func NewLedger(world *chain.World, address common.Address, symbol string, decimals uint8) *Ledger {
	l := &Ledger{
		address: address,
		meta: model.TokenMeta{
			Address:  address.Hex(),
			Symbol:   symbol,
			Decimals: decimals,
		},
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
	}
	if world != nil {
		world.Register(l)
	}
	return l
}

func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) Meta() model.TokenMeta { return l.meta }

func (l *Ledger) TotalSupply() *uint256.Int { return l.supply.Clone() }

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	b := l.balances[account]
	return b.Clone()
}

// Mint credits new tokens to an account.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) {
	b := l.balances[to]
	b.Add(&b, amount)
	l.balances[to] = b
	l.supply.Add(&l.supply, amount)
}

// Approve sets the spender's allowance over owner's balance. An all-ones
// allowance is never decreased.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) {
	l.allowances[allowanceKey{owner, spender}] = *amount
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	a := l.allowances[allowanceKey{owner, spender}]
	return a.Clone()
}

func (l *Ledger) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := l.move(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) TransferFrom(_ context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := spendAllowance(l.allowances, from, spender, amount); err != nil {
		return false, err
	}
	if err := l.move(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fb := l.balances[from]
	if fb.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "%s has %s, needs %s", from.Hex(), fb.Dec(), amount.Dec())
	}
	fb.Sub(&fb, amount)
	l.balances[from] = fb
	tb := l.balances[to]
	tb.Add(&tb, amount)
	l.balances[to] = tb
	return nil
}

func spendAllowance(allowances map[allowanceKey]uint256.Int, owner, spender common.Address, amount *uint256.Int) error {
	key := allowanceKey{owner, spender}
	a := allowances[key]
	if a.Eq(new(uint256.Int).SetAllOne()) {
		return nil
	}
	if a.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientAllowance, "%s allows %s %s, needs %s", owner.Hex(), spender.Hex(), a.Dec(), amount.Dec())
	}
	a.Sub(&a, amount)
	allowances[key] = a
	return nil
}

func (l *Ledger) Snapshot() any {
	return ledgerState{
		supply:     l.supply,
		balances:   maps.Clone(l.balances),
		allowances: maps.Clone(l.allowances),
	}
}

func (l *Ledger) Restore(snapshot any) {
	s := snapshot.(ledgerState)
	l.supply = s.supply
	l.balances = s.balances
	l.allowances = s.allowances
}
