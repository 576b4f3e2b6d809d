// Package auction sells the right to swap against a pool once per block. Each
// bid swaps immediately with the auction as recipient; a higher bid in the
// same block reverses and refunds the incumbent, and the window's winner is
// paid out when the window is settled.
package auction

import (
	"context"
	"errors"
	"maps"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/chain"
	"flowswap/internal/fixedpoint"
	"flowswap/internal/guard"
	"flowswap/internal/model"
	"flowswap/internal/pool"
	"flowswap/internal/token"
)

// Registry resolves the pools the auction may trade on.
type Registry interface {
	Pool(address common.Address) (*pool.Pool, bool)
	MinBidBps() uint64
}

// BidRequest is a bid as submitted. BidAmount is paid to liquidity providers;
// SwapAmount is traded. Both are denominated in Token.
type BidRequest struct {
	Token        common.Address
	Pool         common.Address
	BidAmount    *uint256.Int
	SwapAmount   *uint256.Int
	MinAmountOut *uint256.Int
	Deadline     uint64
}

// Bid is the incumbent of a pool's window.
type Bid struct {
	Bidder       common.Address
	Token        common.Address
	BidAmount    *uint256.Int
	SwapAmount   *uint256.Int
	AmountOut    *uint256.Int
	MinAmountOut *uint256.Int
	Deadline     uint64
	Block        uint64
	Executed     bool
}

// Auction holds swap proceeds between a bid and the window's settlement.
type Auction struct {
	world    *chain.World
	address  common.Address
	registry Registry
	logger   *zap.Logger

	mu     sync.Mutex
	guards map[common.Address]*guard.Guard

	bids map[common.Address]Bid
}

// New creates an auction and registers its state with the world's journal.
func New(world *chain.World, address common.Address, registry Registry, logger *zap.Logger) *Auction {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Auction{
		world:    world,
		address:  address,
		registry: registry,
		logger:   logger.With(zap.String("auction", address.Hex())),
		guards:   make(map[common.Address]*guard.Guard),
		bids:     make(map[common.Address]Bid),
	}
	world.Register(a)
	return a
}

func (a *Auction) Snapshot() any { return maps.Clone(a.bids) }

func (a *Auction) Restore(snapshot any) { a.bids = snapshot.(map[common.Address]Bid) }

func (a *Auction) Address() common.Address { return a.address }

// Bid returns the current or last winning bid of a pool.
func (a *Auction) Bid(poolAddress common.Address) (Bid, bool) {
	b, ok := a.bids[poolAddress]
	return b, ok
}

func (a *Auction) guardFor(poolAddress common.Address) *guard.Guard {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.guards[poolAddress]
	if !ok {
		g = guard.New("auction " + poolAddress.Hex())
		a.guards[poolAddress] = g
	}
	return g
}

func (a *Auction) locked(ctx context.Context, name string, poolAddress common.Address, fn func(ctx context.Context) error) error {
	return a.world.Atomic(ctx, name, func(ctx context.Context) error {
		g := a.guardFor(poolAddress)
		if err := g.Enter(); err != nil {
			return errorsmod.Wrap(ErrLocked, err.Error())
		}
		defer g.Exit()
		return fn(ctx)
	})
}

// PlaceBid submits a bid for the current window of req.Pool.
func (a *Auction) PlaceBid(ctx context.Context, sender common.Address, req BidRequest) error {
	bidAmount := orZero(req.BidAmount)
	swapAmount := orZero(req.SwapAmount)
	minAmountOut := orZero(req.MinAmountOut)

	return a.locked(ctx, "placeBid", req.Pool, func(ctx context.Context) error {
		if req.Deadline < a.world.Now() {
			return errorsmod.Wrapf(ErrExpired, "deadline %d, now %d", req.Deadline, a.world.Now())
		}
		p, ok := a.registry.Pool(req.Pool)
		if !ok {
			return errorsmod.Wrapf(ErrInvalidPair, "%s", req.Pool.Hex())
		}
		zeroForOne, err := direction(p, req.Token)
		if err != nil {
			return err
		}
		if swapAmount.IsZero() {
			return ErrInvalidAmount
		}
		minBid, err := fixedpoint.Bps(swapAmount, a.registry.MinBidBps())
		if err != nil {
			return err
		}
		if bidAmount.Lt(minBid) {
			return errorsmod.Wrapf(ErrInsufficientBid, "bid %s below minimum %s", bidAmount.Dec(), minBid.Dec())
		}

		block := a.world.BlockNumber()
		if inc, ok := a.bids[req.Pool]; ok {
			switch {
			case inc.Executed && inc.Block >= block:
				// one winner per window
				return errorsmod.Wrapf(ErrAlreadyExecuted, "block %d", inc.Block)
			case inc.Executed:
			case inc.Block < block:
				if err := a.settle(ctx, p, inc); err != nil {
					return err
				}
			default:
				if err := a.reverse(ctx, p, inc); err != nil {
					return err
				}
				threshold, err := convertBid(p, inc, req.Token)
				if err != nil {
					return err
				}
				if !bidAmount.Gt(threshold) {
					return errorsmod.Wrapf(ErrInsufficientBid, "bid %s does not beat %s", bidAmount.Dec(), threshold.Dec())
				}
			}
		}

		in, _ := tokens(p, zeroForOne)
		total, err := fixedpoint.Add(bidAmount, swapAmount)
		if err != nil {
			return err
		}
		if err := token.SafeTransferFrom(ctx, in, a.address, sender, a.address, total); err != nil {
			return errorsmod.Wrap(ErrTransferFromFailed, err.Error())
		}
		amountOut, err := a.swap(ctx, p, zeroForOne, swapAmount)
		if err != nil {
			return err
		}
		if amountOut.Lt(minAmountOut) {
			return errorsmod.Wrapf(ErrUnderMinimumAmountOut, "%s < %s", amountOut.Dec(), minAmountOut.Dec())
		}

		a.bids[req.Pool] = Bid{
			Bidder:       sender,
			Token:        req.Token,
			BidAmount:    bidAmount.Clone(),
			SwapAmount:   swapAmount.Clone(),
			AmountOut:    amountOut,
			MinAmountOut: minAmountOut.Clone(),
			Deadline:     req.Deadline,
			Block:        block,
		}
		a.logger.Info("bid placed",
			zap.String("pool", req.Pool.Hex()),
			zap.String("bidder", sender.Hex()),
			zap.String("token", req.Token.Hex()),
			zap.String("bid", bidAmount.Dec()),
			zap.String("swap", swapAmount.Dec()),
			zap.String("amount_out", amountOut.Dec()),
			zap.Uint64("block", block),
		)
		return a.world.Emit(ctx, a.address, model.PlaceBidEventData{
			Bidder:       sender.Hex(),
			Pool:         req.Pool.Hex(),
			Token:        req.Token.Hex(),
			BidAmount:    bidAmount.Dec(),
			SwapAmount:   swapAmount.Dec(),
			MinAmountOut: minAmountOut.Dec(),
			Deadline:     req.Deadline,
		})
	})
}

// ExecuteWinningBid settles the window of a pool: the bid goes to the pool's
// liquidity providers and the swap proceeds to the winner.
func (a *Auction) ExecuteWinningBid(ctx context.Context, poolAddress common.Address) error {
	return a.locked(ctx, "executeWinningBid", poolAddress, func(ctx context.Context) error {
		p, ok := a.registry.Pool(poolAddress)
		if !ok {
			return errorsmod.Wrapf(ErrInvalidPair, "%s", poolAddress.Hex())
		}
		inc, ok := a.bids[poolAddress]
		if !ok {
			return ErrNoBid
		}
		if inc.Executed {
			return errorsmod.Wrapf(ErrAlreadyExecuted, "block %d", inc.Block)
		}
		return a.settle(ctx, p, inc)
	})
}

func (a *Auction) settle(ctx context.Context, p *pool.Pool, inc Bid) error {
	zeroForOne, err := direction(p, inc.Token)
	if err != nil {
		return err
	}
	in, out := tokens(p, zeroForOne)
	if !inc.BidAmount.IsZero() {
		if err := a.transfer(ctx, in, p.Address(), inc.BidAmount); err != nil {
			return err
		}
	}
	if err := p.Sync(ctx); err != nil {
		return a.poolErr(err)
	}
	if inc.AmountOut.Lt(inc.MinAmountOut) {
		return errorsmod.Wrapf(ErrUnderMinimumAmountOut, "%s < %s", inc.AmountOut.Dec(), inc.MinAmountOut.Dec())
	}
	if err := a.transfer(ctx, out, inc.Bidder, inc.AmountOut); err != nil {
		return err
	}

	inc.Executed = true
	a.bids[p.Address()] = inc
	a.logger.Info("winning bid executed",
		zap.String("pool", p.Address().Hex()),
		zap.String("bidder", inc.Bidder.Hex()),
		zap.String("bid", inc.BidAmount.Dec()),
		zap.String("amount_out", inc.AmountOut.Dec()),
		zap.Uint64("block", inc.Block),
	)
	return a.world.Emit(ctx, a.address, model.ExecuteWinningBidEventData{
		Bidder:    inc.Bidder.Hex(),
		Pool:      p.Address().Hex(),
		Token:     inc.Token.Hex(),
		BidAmount: inc.BidAmount.Dec(),
		AmountOut: inc.AmountOut.Dec(),
	})
}

// reverse swaps the incumbent's proceeds back through the pool and refunds
// its bid plus whatever the reverse swap returned.
func (a *Auction) reverse(ctx context.Context, p *pool.Pool, inc Bid) error {
	zeroForOne, err := direction(p, inc.Token)
	if err != nil {
		return err
	}
	in, _ := tokens(p, zeroForOne)
	back, err := a.swap(ctx, p, !zeroForOne, inc.AmountOut)
	if err != nil {
		return err
	}
	refund := new(uint256.Int).Add(inc.BidAmount, back)
	if err := a.transfer(ctx, in, inc.Bidder, refund); err != nil {
		return err
	}
	delete(a.bids, p.Address())

	a.logger.Debug("bid refunded",
		zap.String("pool", p.Address().Hex()),
		zap.String("bidder", inc.Bidder.Hex()),
		zap.String("refund", refund.Dec()),
	)
	return a.world.Emit(ctx, a.address, model.RefundBidEventData{
		Bidder: inc.Bidder.Hex(),
		Pool:   p.Address().Hex(),
		Token:  inc.Token.Hex(),
		Amount: refund.Dec(),
	})
}

// swap trades amountIn held by the auction through the pool and returns what
// the auction received.
func (a *Auction) swap(ctx context.Context, p *pool.Pool, zeroForOne bool, amountIn *uint256.Int) (*uint256.Int, error) {
	in, out := tokens(p, zeroForOne)
	reserveIn, reserveOut, err := reserves(p, zeroForOne)
	if err != nil {
		return nil, err
	}
	quote, err := pool.GetAmountOut(amountIn, reserveIn, reserveOut, p.Config().SwapFeeBps)
	if err != nil {
		return nil, err
	}
	if quote.IsZero() {
		return nil, errorsmod.Wrapf(ErrUnderMinimumAmountOut, "%s in yields nothing", amountIn.Dec())
	}
	if err := a.transfer(ctx, in, p.Address(), amountIn); err != nil {
		return nil, err
	}

	before := out.BalanceOf(a.address)
	amount0Out, amount1Out := new(uint256.Int), quote
	if !zeroForOne {
		amount0Out, amount1Out = quote, new(uint256.Int)
	}
	if err := p.Swap(ctx, a.address, amount0Out, amount1Out, a.address); err != nil {
		return nil, a.poolErr(err)
	}
	return fixedpoint.SubFloor(out.BalanceOf(a.address), before), nil
}

func (a *Auction) transfer(ctx context.Context, t token.Token, to common.Address, amount *uint256.Int) error {
	if err := token.SafeTransfer(ctx, t, a.address, to, amount); err != nil {
		return errorsmod.Wrap(ErrTransferFailed, err.Error())
	}
	return nil
}

func (a *Auction) poolErr(err error) error {
	if errors.Is(err, pool.ErrTransferFailed) {
		return errorsmod.Wrap(ErrTransferFailed, err.Error())
	}
	return err
}

// convertBid prices the incumbent's bid in the new bid's token at the pool's
// current reserves.
func convertBid(p *pool.Pool, inc Bid, tok common.Address) (*uint256.Int, error) {
	if inc.Token == tok {
		return inc.BidAmount, nil
	}
	zeroForOne, err := direction(p, inc.Token)
	if err != nil {
		return nil, err
	}
	reserveInc, reserveNew, err := reserves(p, zeroForOne)
	if err != nil {
		return nil, err
	}
	if reserveInc.IsZero() {
		return nil, pool.ErrInsufficientLiquidity
	}
	return fixedpoint.MulDiv(inc.BidAmount, reserveNew, reserveInc)
}

func direction(p *pool.Pool, tok common.Address) (bool, error) {
	switch tok {
	case p.Token0().Address():
		return true, nil
	case p.Token1().Address():
		return false, nil
	}
	return false, errorsmod.Wrapf(ErrTokenNotInPair, "%s", tok.Hex())
}

func tokens(p *pool.Pool, zeroForOne bool) (token.Token, token.Token) {
	if zeroForOne {
		return p.Token0(), p.Token1()
	}
	return p.Token1(), p.Token0()
}

func reserves(p *pool.Pool, zeroForOne bool) (*uint256.Int, *uint256.Int, error) {
	reserve0, reserve1, _, err := p.GetRealTimeReserves()
	if err != nil {
		return nil, nil, err
	}
	if zeroForOne {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
