package pool

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
	"flowswap/internal/token"
)

// accrue returns what a depositor has earned between its snapshots and the
// given accumulators. The wrapped difference is exact across one wrap.
func accrue(d depositor, twap0, twap1 fixedpoint.Accumulator) (*uint256.Int, *uint256.Int, error) {
	q96 := fixedpoint.Q96()
	earned0 := new(uint256.Int)
	earned1 := new(uint256.Int)
	var err error
	if !d.rate1.IsZero() {
		if earned0, err = fixedpoint.MulDiv(&d.rate1, twap0.Since(d.snap0), q96); err != nil {
			return nil, nil, err
		}
	}
	if !d.rate0.IsZero() {
		if earned1, err = fixedpoint.MulDiv(&d.rate0, twap1.Since(d.snap1), q96); err != nil {
			return nil, nil, err
		}
	}
	return earned0, earned1, nil
}

// GetUserBalancesAtTime returns what the depositor could retrieve at t: token0
// earned by streaming token1 and token1 earned by streaming token0.
func (p *Pool) GetUserBalancesAtTime(user common.Address, t uint64) (*uint256.Int, *uint256.Int, uint32, error) {
	proj, err := p.project(t)
	if err != nil {
		return nil, nil, 0, err
	}
	d := p.st.depositors[user]
	earned0, earned1, err := accrue(d, proj.twap0, proj.twap1)
	if err != nil {
		return nil, nil, 0, err
	}
	return earned0.Add(earned0, &d.owed0), earned1.Add(earned1, &d.owed1), uint32(proj.at), nil
}

// GetRealTimeUserBalances is GetUserBalancesAtTime at the current block.
func (p *Pool) GetRealTimeUserBalances(user common.Address) (*uint256.Int, *uint256.Int, uint32, error) {
	return p.GetUserBalancesAtTime(user, p.world.Now())
}

// checkpoint folds a depositor's accrual into its owed balances and moves its
// snapshots to the synced accumulators. Call after settle.
func (p *Pool) checkpoint(user common.Address) (depositor, error) {
	d := p.st.depositors[user]
	earned0, earned1, err := accrue(d, p.st.twap0, p.st.twap1)
	if err != nil {
		return depositor{}, err
	}
	d.owed0.Add(&d.owed0, earned0)
	d.owed1.Add(&d.owed1, earned1)
	d.snap0 = p.st.twap0
	d.snap1 = p.st.twap1
	return d, nil
}

func (p *Pool) store(user common.Address, d depositor) {
	if d.empty() {
		delete(p.st.depositors, user)
		return
	}
	p.st.depositors[user] = d
}

// RetrieveFunds pays out everything the caller has earned from streaming. A
// caller with nothing owed gets a no-op.
func (p *Pool) RetrieveFunds(ctx context.Context, caller common.Address) (*uint256.Int, *uint256.Int, error) {
	amount0 := new(uint256.Int)
	amount1 := new(uint256.Int)
	err := p.locked(ctx, "retrieveFunds", func(ctx context.Context) error {
		if err := p.settle(); err != nil {
			return err
		}
		d, err := p.checkpoint(caller)
		if err != nil {
			return err
		}
		amount0.Set(&d.owed0)
		amount1.Set(&d.owed1)
		if amount0.IsZero() && amount1.IsZero() {
			p.store(caller, d)
			return nil
		}

		if p.st.swapped0.Lt(amount0) || p.st.swapped1.Lt(amount1) {
			return errorsmod.Wrapf(ErrUnderfunded, "owed %s/%s, tracked %s/%s",
				amount0.Dec(), amount1.Dec(), p.st.swapped0.Dec(), p.st.swapped1.Dec())
		}
		p.st.swapped0.Sub(&p.st.swapped0, amount0)
		p.st.swapped1.Sub(&p.st.swapped1, amount1)
		d.owed0.Clear()
		d.owed1.Clear()
		p.store(caller, d)

		if !amount0.IsZero() {
			if err := p.transfer(ctx, p.token0, caller, amount0); err != nil {
				return err
			}
		}
		if !amount1.IsZero() {
			if err := p.transfer(ctx, p.token1, caller, amount1); err != nil {
				return err
			}
		}
		p.logger.Debug("funds retrieved",
			zap.String("recipient", caller.Hex()),
			zap.String("amount0", amount0.Dec()),
			zap.String("amount1", amount1.Dec()),
		)
		return p.world.Emit(ctx, p.address, model.RetrieveFundsEventData{
			Recipient: caller.Hex(),
			Amount0:   amount0.Dec(),
			Amount1:   amount1.Dec(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// OnFlowUpdated is called by a streaming token when a depositor changes its
// stream into the pool. The pool is synced with the old rates and the
// depositor's accrual up to now is settled before the new rate applies.
func (p *Pool) OnFlowUpdated(ctx context.Context, u token.FlowUpdate) error {
	return p.locked(ctx, "flowUpdated", func(ctx context.Context) error {
		if u.Receiver != p.address {
			return errorsmod.Wrapf(ErrInvalidFlow, "receiver %s", u.Receiver.Hex())
		}
		if u.NewRate == nil {
			return errorsmod.Wrap(ErrInvalidFlow, "missing rate")
		}
		if err := p.settle(); err != nil {
			return err
		}
		d, err := p.checkpoint(u.Sender)
		if err != nil {
			return err
		}

		rate := u.NewRate
		switch u.Token {
		case p.token0.Address():
			if err := replaceRate(&p.st.flow0, &d.rate0, rate); err != nil {
				return err
			}
		case p.token1.Address():
			if err := replaceRate(&p.st.flow1, &d.rate1, rate); err != nil {
				return err
			}
		default:
			return errorsmod.Wrapf(ErrTokenNotInPair, "%s", u.Token.Hex())
		}
		p.store(u.Sender, d)

		p.logger.Debug("stream updated",
			zap.String("sender", u.Sender.Hex()),
			zap.String("token", u.Token.Hex()),
			zap.String("rate", rate.Dec()),
			zap.String("flow0", p.st.flow0.Dec()),
			zap.String("flow1", p.st.flow1.Dec()),
		)
		return p.emitSync(ctx)
	})
}

// replaceRate swaps a depositor's rate inside the pool's aggregate.
func replaceRate(total, user, rate *uint256.Int) error {
	rest, err := fixedpoint.Sub(total, user)
	if err != nil {
		return errorsmod.Wrapf(ErrInvalidFlow, "aggregate %s below depositor rate %s", total.Dec(), user.Dec())
	}
	sum, err := fixedpoint.Add(rest, rate)
	if err != nil {
		return err
	}
	total.Set(sum)
	user.Set(rate)
	return nil
}
