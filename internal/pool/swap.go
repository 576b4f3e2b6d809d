package pool

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
)

// Swap sends the requested outputs to the recipient and checks that the
// input already delivered keeps the fee-adjusted constant product from
// decreasing. Only the registry's auction may call it.
func (p *Pool) Swap(ctx context.Context, sender common.Address, amount0Out, amount1Out *uint256.Int, to common.Address) error {
	if sender != p.ctrl.Auction() {
		return errorsmod.Wrapf(ErrForbidden, "swap from %s", sender.Hex())
	}
	return p.locked(ctx, "swap", func(ctx context.Context) error {
		if amount0Out.IsZero() && amount1Out.IsZero() {
			return ErrInsufficientOutputAmount
		}
		if err := p.settle(); err != nil {
			return err
		}
		reserve0 := p.st.reserve0.Clone()
		reserve1 := p.st.reserve1.Clone()
		if !amount0Out.Lt(reserve0) || !amount1Out.Lt(reserve1) {
			return errorsmod.Wrapf(ErrInsufficientLiquidity, "out %s/%s, reserves %s/%s",
				amount0Out.Dec(), amount1Out.Dec(), reserve0.Dec(), reserve1.Dec())
		}
		if to == p.token0.Address() || to == p.token1.Address() {
			return errorsmod.Wrapf(ErrInvalidTo, "%s", to.Hex())
		}

		if !amount0Out.IsZero() {
			if err := p.transfer(ctx, p.token0, to, amount0Out); err != nil {
				return err
			}
		}
		if !amount1Out.IsZero() {
			if err := p.transfer(ctx, p.token1, to, amount1Out); err != nil {
				return err
			}
		}

		bal0, bal1, err := p.holdings()
		if err != nil {
			return err
		}
		amount0In := fixedpoint.SubFloor(bal0, new(uint256.Int).Sub(reserve0, amount0Out))
		amount1In := fixedpoint.SubFloor(bal1, new(uint256.Int).Sub(reserve1, amount1Out))
		if amount0In.IsZero() && amount1In.IsZero() {
			return ErrInsufficientInputAmount
		}
		if err := checkInvariant(bal0, bal1, amount0In, amount1In, reserve0, reserve1, p.cfg.SwapFeeBps); err != nil {
			return err
		}

		if err := p.update(ctx, bal0, bal1); err != nil {
			return err
		}
		feeOn, err := p.mintFee(&p.st.reserve0, &p.st.reserve1)
		if err != nil {
			return err
		}
		p.recordKLast(feeOn)

		p.logger.Debug("swap",
			zap.String("sender", sender.Hex()),
			zap.String("to", to.Hex()),
			zap.String("amount0_in", amount0In.Dec()),
			zap.String("amount1_in", amount1In.Dec()),
			zap.String("amount0_out", amount0Out.Dec()),
			zap.String("amount1_out", amount1Out.Dec()),
		)
		return p.world.Emit(ctx, p.address, model.SwapEventData{
			Sender:     sender.Hex(),
			Recipient:  to.Hex(),
			Amount0In:  amount0In.Dec(),
			Amount1In:  amount1In.Dec(),
			Amount0Out: amount0Out.Dec(),
			Amount1Out: amount1Out.Dec(),
		})
	})
}

// checkInvariant requires
// (bal0*10000 - in0*fee) * (bal1*10000 - in1*fee) >= r0*r1*10000^2.
func checkInvariant(bal0, bal1, in0, in1, reserve0, reserve1 *uint256.Int, feeBps uint64) error {
	scale := uint256.NewInt(fixedpoint.BasisPointScale)
	fee := uint256.NewInt(feeBps)

	adjusted := func(bal, in *uint256.Int) (*uint256.Int, error) {
		scaled, err := fixedpoint.Mul(bal, scale)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Sub(scaled, new(uint256.Int).Mul(in, fee))
	}
	adj0, err := adjusted(bal0, in0)
	if err != nil {
		return errorsmod.Wrap(ErrInvariantViolation, err.Error())
	}
	adj1, err := adjusted(bal1, in1)
	if err != nil {
		return errorsmod.Wrap(ErrInvariantViolation, err.Error())
	}
	after, err := fixedpoint.Mul(adj0, adj1)
	if err != nil {
		return err
	}
	before, err := fixedpoint.Mul(reserve0, reserve1)
	if err != nil {
		return err
	}
	if before, err = fixedpoint.Mul(before, new(uint256.Int).Mul(scale, scale)); err != nil {
		return err
	}
	if after.Lt(before) {
		return errorsmod.Wrapf(ErrInvariantViolation, "k %s < %s", after.Dec(), before.Dec())
	}
	return nil
}
