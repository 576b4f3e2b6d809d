package pool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
)

// mintFee mints the protocol's share of fee growth since kLast to the fee
// recipient: one sixth of the growth in sqrt(k).
func (p *Pool) mintFee(reserve0, reserve1 *uint256.Int) (bool, error) {
	feeTo := p.ctrl.FeeTo()
	feeOn := feeTo != (common.Address{})
	if !feeOn {
		p.st.kLast.Clear()
		return false, nil
	}
	if p.st.kLast.IsZero() {
		return true, nil
	}
	k, err := fixedpoint.Mul(reserve0, reserve1)
	if err != nil {
		return true, err
	}
	rootK := fixedpoint.Sqrt(k)
	rootKLast := fixedpoint.Sqrt(&p.st.kLast)
	if !rootK.Gt(rootKLast) {
		return true, nil
	}
	denominator := new(uint256.Int).Mul(rootK, uint256.NewInt(5))
	denominator.Add(denominator, rootKLast)
	liquidity, err := fixedpoint.MulDiv(&p.st.shares.supply, new(uint256.Int).Sub(rootK, rootKLast), denominator)
	if err != nil {
		return true, err
	}
	if !liquidity.IsZero() {
		p.st.shares.mint(feeTo, liquidity)
	}
	return true, nil
}

func (p *Pool) recordKLast(feeOn bool) {
	if feeOn {
		p.st.kLast.Mul(&p.st.reserve0, &p.st.reserve1)
	}
}

// Mint credits liquidity shares for tokens transferred to the pool since the
// last update.
func (p *Pool) Mint(ctx context.Context, sender, to common.Address) (*uint256.Int, error) {
	liquidity := new(uint256.Int)
	err := p.locked(ctx, "mint", func(ctx context.Context) error {
		if err := p.settle(); err != nil {
			return err
		}
		bal0, bal1, err := p.holdings()
		if err != nil {
			return err
		}
		amount0, err := fixedpoint.Sub(bal0, &p.st.reserve0)
		if err != nil {
			return ErrInsufficientInputAmount
		}
		amount1, err := fixedpoint.Sub(bal1, &p.st.reserve1)
		if err != nil {
			return ErrInsufficientInputAmount
		}

		feeOn, err := p.mintFee(&p.st.reserve0, &p.st.reserve1)
		if err != nil {
			return err
		}
		supply := &p.st.shares.supply
		if supply.IsZero() {
			product, err := fixedpoint.Mul(amount0, amount1)
			if err != nil {
				return err
			}
			root := fixedpoint.Sqrt(product)
			minimum := uint256.NewInt(MinimumLiquidity)
			if !root.Gt(minimum) {
				return ErrInsufficientLiquidityMinted
			}
			liquidity.Sub(root, minimum)
			p.st.shares.mint(common.Address{}, minimum)
		} else {
			l0, err := fixedpoint.MulDiv(amount0, supply, &p.st.reserve0)
			if err != nil {
				return err
			}
			l1, err := fixedpoint.MulDiv(amount1, supply, &p.st.reserve1)
			if err != nil {
				return err
			}
			liquidity.Set(fixedpoint.Min(l0, l1))
		}
		if liquidity.IsZero() {
			return ErrInsufficientLiquidityMinted
		}
		p.st.shares.mint(to, liquidity)

		if err := p.update(ctx, bal0, bal1); err != nil {
			return err
		}
		p.recordKLast(feeOn)
		p.logger.Debug("liquidity minted",
			zap.String("to", to.Hex()),
			zap.String("liquidity", liquidity.Dec()),
		)
		return p.world.Emit(ctx, p.address, model.MintEventData{
			Sender:  sender.Hex(),
			Amount0: amount0.Dec(),
			Amount1: amount1.Dec(),
		})
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the shares held by the pool itself for a pro-rata part of the
// real-time reserves.
func (p *Pool) Burn(ctx context.Context, sender, to common.Address) (*uint256.Int, *uint256.Int, error) {
	var amount0, amount1 *uint256.Int
	err := p.locked(ctx, "burn", func(ctx context.Context) error {
		if err := p.settle(); err != nil {
			return err
		}
		bal0, bal1, err := p.holdings()
		if err != nil {
			return err
		}
		liquidity := p.SharesOf(p.address)

		feeOn, err := p.mintFee(&p.st.reserve0, &p.st.reserve1)
		if err != nil {
			return err
		}
		supply := &p.st.shares.supply
		if supply.IsZero() {
			return ErrInsufficientLiquidityBurned
		}
		if amount0, err = fixedpoint.MulDiv(liquidity, bal0, supply); err != nil {
			return err
		}
		if amount1, err = fixedpoint.MulDiv(liquidity, bal1, supply); err != nil {
			return err
		}
		if amount0.IsZero() || amount1.IsZero() {
			return ErrInsufficientLiquidityBurned
		}
		if err := p.st.shares.burn(p.address, liquidity); err != nil {
			return err
		}
		if err := p.transfer(ctx, p.token0, to, amount0); err != nil {
			return err
		}
		if err := p.transfer(ctx, p.token1, to, amount1); err != nil {
			return err
		}

		if bal0, bal1, err = p.holdings(); err != nil {
			return err
		}
		if err := p.update(ctx, bal0, bal1); err != nil {
			return err
		}
		p.recordKLast(feeOn)
		p.logger.Debug("liquidity burned",
			zap.String("to", to.Hex()),
			zap.String("liquidity", liquidity.Dec()),
		)
		return p.world.Emit(ctx, p.address, model.BurnEventData{
			Sender:    sender.Hex(),
			Recipient: to.Hex(),
			Amount0:   amount0.Dec(),
			Amount1:   amount1.Dec(),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
