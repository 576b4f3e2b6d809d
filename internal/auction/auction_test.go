package auction

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"flowswap/internal/chain"
	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
	"flowswap/internal/pool"
	"flowswap/internal/registry"
	"flowswap/internal/token"
	"flowswap/internal/token/tokentest"
)

var (
	factory     = common.HexToAddress("0xFAC7000000000000000000000000000000000001")
	auctionAddr = common.HexToAddress("0xA0C7000000000000000000000000000000000002")
	lp          = common.HexToAddress("0xDdDd000000000000000000000000000000000003")
	wallet      = common.HexToAddress("0xaAaA000000000000000000000000000000000004")
	other       = common.HexToAddress("0xBbBb000000000000000000000000000000000005")

	token0Addr = common.HexToAddress("0x1000000000000000000000000000000000000000")
	token1Addr = common.HexToAddress("0x2000000000000000000000000000000000000000")
)

type env struct {
	world   *chain.World
	reg     *registry.Registry
	auction *Auction
	pool    *pool.Pool
	l0      *token.Ledger
	l1      *token.Ledger
}

// newEnv builds a fee-free pool over t0 and t1, which wrap l0 and l1, and
// funds both bidders.
func newEnv(t require.TestingT, reserve0, reserve1 *uint256.Int, wrap func(l0, l1 *token.Ledger) (token.Token, token.Token)) *env {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	ctx := context.Background()
	w := chain.NewWorld(1, chain.NewClock(1, 1_000), nil)
	l0 := token.NewLedger(w, token0Addr, "TK0", 18)
	l1 := token.NewLedger(w, token1Addr, "TK1", 18)

	reg, err := registry.New(w, factory, common.Address{}, registry.DefaultConfig(), nil)
	require.NoError(t, err)
	a := New(w, auctionAddr, reg, nil)
	require.NoError(t, reg.SetAuction(a.Address()))

	var t0, t1 token.Token = l0, l1
	if wrap != nil {
		t0, t1 = wrap(l0, l1)
	}
	p, err := reg.CreatePair(ctx, t0, t1)
	require.NoError(t, err)
	l0.Mint(p.Address(), reserve0)
	l1.Mint(p.Address(), reserve1)
	_, err = p.Mint(ctx, lp, lp)
	require.NoError(t, err)

	for _, who := range []common.Address{wallet, other} {
		for _, l := range []*token.Ledger{l0, l1} {
			l.Mint(who, fixedpoint.Ether(100))
			l.Approve(who, a.Address(), new(uint256.Int).SetAllOne())
		}
	}
	w.Drain()
	return &env{world: w, reg: reg, auction: a, pool: p, l0: l0, l1: l1}
}

func (e *env) bid(sender, tok common.Address, bidAmount, swapAmount *uint256.Int) error {
	return e.auction.PlaceBid(context.Background(), sender, BidRequest{
		Token:      tok,
		Pool:       e.pool.Address(),
		BidAmount:  bidAmount,
		SwapAmount: swapAmount,
		Deadline:   math.MaxUint64,
	})
}

func (e *env) execute() error {
	return e.auction.ExecuteWinningBid(context.Background(), e.pool.Address())
}

func eth(n uint64) *uint256.Int { return fixedpoint.Ether(n) }

func milli(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e15))
}

func TestBidInToken0(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	bidAmount, swapAmount := milli(3), milli(997)

	require.NoError(t, e.bid(wallet, token0Addr, bidAmount, swapAmount))
	b, ok := e.auction.Bid(e.pool.Address())
	require.True(t, ok)
	require.Equal(t, "1662497915624478906", b.AmountOut.Dec())
	require.True(t, e.l1.BalanceOf(e.auction.Address()).Eq(b.AmountOut))

	logs := e.world.Drain()
	var swap model.SwapEventData
	var placed bool
	for _, l := range logs {
		switch d := l.Data.(type) {
		case model.SwapEventData:
			swap = d
		case model.PlaceBidEventData:
			placed = true
			require.Equal(t, bidAmount.Dec(), d.BidAmount)
		}
	}
	require.True(t, placed)
	require.Equal(t, auctionAddr.Hex(), swap.Sender)
	require.Equal(t, auctionAddr.Hex(), swap.Recipient)
	require.Equal(t, swapAmount.Dec(), swap.Amount0In)
	require.Equal(t, "1662497915624478906", swap.Amount1Out)

	before := e.l1.BalanceOf(wallet)
	require.NoError(t, e.execute())
	require.Equal(t, "1662497915624478906", new(uint256.Int).Sub(e.l1.BalanceOf(wallet), before).Dec())
	require.True(t, e.l1.BalanceOf(e.auction.Address()).IsZero())
	require.True(t, e.l0.BalanceOf(e.auction.Address()).IsZero())

	r0, _, _ := e.pool.GetReserves()
	require.Equal(t, "6000000000000000000", r0.Dec())

	require.ErrorIs(t, e.execute(), ErrAlreadyExecuted)
}

func TestBidInToken1(t *testing.T) {
	e := newEnv(t, eth(10), eth(5), nil)
	require.NoError(t, e.bid(wallet, token1Addr, milli(3), milli(997)))

	before := e.l0.BalanceOf(wallet)
	require.NoError(t, e.execute())
	require.Equal(t, "1662497915624478906", new(uint256.Int).Sub(e.l0.BalanceOf(wallet), before).Dec())
}

func TestMinimumBid(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	swapAmount := eth(1)

	err := e.bid(wallet, token0Addr, new(uint256.Int).SubUint64(milli(3), 1), swapAmount)
	require.ErrorIs(t, err, ErrInsufficientBid)
	require.NoError(t, e.bid(wallet, token0Addr, milli(3), swapAmount))
}

func TestBidNeedsAllowance(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	bidAmount, swapAmount := milli(3), milli(997)

	e.l0.Approve(wallet, auctionAddr, new(uint256.Int).SubUint64(eth(1), 1))
	require.ErrorIs(t, e.bid(wallet, token0Addr, bidAmount, swapAmount), ErrTransferFromFailed)
	require.Equal(t, eth(100), e.l0.BalanceOf(wallet))

	e.l0.Approve(wallet, auctionAddr, eth(1))
	require.NoError(t, e.bid(wallet, token0Addr, bidAmount, swapAmount))
}

func TestSettledWindowTakesNoMoreBids(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, milli(3), milli(997)))
	require.NoError(t, e.execute())
	e.world.Drain()

	otherBefore := e.l0.BalanceOf(other)
	require.ErrorIs(t, e.bid(other, token0Addr, milli(3), milli(997)), ErrAlreadyExecuted)
	require.ErrorIs(t, e.bid(other, token0Addr, eth(1), eth(1)), ErrAlreadyExecuted)
	require.Equal(t, otherBefore, e.l0.BalanceOf(other))
	require.Empty(t, e.world.Drain())

	b, _ := e.auction.Bid(e.pool.Address())
	require.Equal(t, wallet, b.Bidder)
	require.True(t, b.Executed)
	require.ErrorIs(t, e.execute(), ErrAlreadyExecuted)

	// the next block opens a new window
	e.world.Clock().Mine(12)
	require.NoError(t, e.bid(other, token0Addr, milli(3), milli(997)))
	require.NoError(t, e.execute())

	settled := 0
	for _, l := range e.world.Drain() {
		if d, ok := l.Data.(model.ExecuteWinningBidEventData); ok {
			settled++
			require.Equal(t, other.Hex(), d.Bidder)
		}
	}
	require.Equal(t, 1, settled)
}

func TestBidValidation(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	ctx := context.Background()
	req := BidRequest{
		Token:      token0Addr,
		Pool:       e.pool.Address(),
		BidAmount:  eth(1),
		SwapAmount: eth(1),
		Deadline:   999,
	}
	require.ErrorIs(t, e.auction.PlaceBid(ctx, wallet, req), ErrExpired)

	req.Deadline = 1_000
	req.Pool = lp
	require.ErrorIs(t, e.auction.PlaceBid(ctx, wallet, req), ErrInvalidPair)

	req.Pool = e.pool.Address()
	req.Token = lp
	require.ErrorIs(t, e.auction.PlaceBid(ctx, wallet, req), ErrTokenNotInPair)

	req.Token = token0Addr
	req.SwapAmount = nil
	require.ErrorIs(t, e.auction.PlaceBid(ctx, wallet, req), ErrInvalidAmount)

	req.SwapAmount = eth(1)
	req.MinAmountOut = fixedpoint.MustParse("1666666666666666667")
	require.ErrorIs(t, e.auction.PlaceBid(ctx, wallet, req), ErrUnderMinimumAmountOut)
	require.Equal(t, eth(100), e.l0.BalanceOf(wallet))

	req.MinAmountOut = fixedpoint.MustParse("1666666666666666666")
	require.NoError(t, e.auction.PlaceBid(ctx, wallet, req))
}

func TestExecuteValidation(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.ErrorIs(t, e.execute(), ErrNoBid)
	require.ErrorIs(t, e.auction.ExecuteWinningBid(context.Background(), lp), ErrInvalidPair)
}

func TestBidsInSeparateBlocks(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, eth(1), eth(1)))
	b, _ := e.auction.Bid(e.pool.Address())
	require.Equal(t, "1666666666666666666", b.AmountOut.Dec())

	e.world.Clock().Mine(12)
	walletBefore := e.l1.BalanceOf(wallet)
	require.NoError(t, e.bid(other, token0Addr, eth(2), eth(2)))

	// the first window was settled by the second bid
	require.Equal(t, "1666666666666666666", new(uint256.Int).Sub(e.l1.BalanceOf(wallet), walletBefore).Dec())
	b, _ = e.auction.Bid(e.pool.Address())
	require.Equal(t, other, b.Bidder)
	require.Equal(t, "1851851851851851852", b.AmountOut.Dec())

	otherBefore := e.l1.BalanceOf(other)
	require.NoError(t, e.execute())
	require.Equal(t, "1851851851851851852", new(uint256.Int).Sub(e.l1.BalanceOf(other), otherBefore).Dec())
}

func TestLosingBidFirst(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, eth(1), eth(1)))
	require.NoError(t, e.bid(other, token0Addr, eth(2), eth(2)))

	// the outbid wallet loses one unit of dust to rounding
	require.Equal(t, "99999999999999999999", e.l0.BalanceOf(wallet).Dec())
	require.Equal(t, eth(100), e.l1.BalanceOf(wallet))

	refunded := false
	for _, l := range e.world.Drain() {
		if d, ok := l.Data.(model.RefundBidEventData); ok {
			refunded = true
			require.Equal(t, wallet.Hex(), d.Bidder)
			require.Equal(t, "1999999999999999999", d.Amount)
		}
	}
	require.True(t, refunded)

	before := e.l1.BalanceOf(other)
	require.NoError(t, e.execute())
	require.Equal(t, "2857142857142857142", new(uint256.Int).Sub(e.l1.BalanceOf(other), before).Dec())
}

func TestWinningBidFirst(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, eth(2), eth(2)))
	require.ErrorIs(t, e.bid(other, token0Addr, eth(1), eth(1)), ErrInsufficientBid)
	require.ErrorIs(t, e.bid(other, token0Addr, eth(2), eth(1)), ErrInsufficientBid)
	require.Equal(t, eth(100), e.l0.BalanceOf(other))

	before := e.l1.BalanceOf(wallet)
	require.NoError(t, e.execute())
	require.Equal(t, "2857142857142857142", new(uint256.Int).Sub(e.l1.BalanceOf(wallet), before).Dec())
}

func TestCrossTokenOutbid(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, eth(2), eth(2)))

	// 2 token0 is worth just under 4 token1 once the incumbent is reversed
	require.ErrorIs(t, e.bid(other, token1Addr, new(uint256.Int).SubUint64(eth(4), 1), eth(2)), ErrInsufficientBid)
	require.NoError(t, e.bid(other, token1Addr, eth(4), eth(2)))

	b, _ := e.auction.Bid(e.pool.Address())
	require.Equal(t, token1Addr, b.Token)
	require.Equal(t, "833333333333333333", b.AmountOut.Dec())
	require.Equal(t, "99999999999999999999", e.l0.BalanceOf(wallet).Dec())
}

func TestCrossTokenOutbidReverse(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token1Addr, eth(2), eth(2)))

	require.ErrorIs(t, e.bid(other, token0Addr, new(uint256.Int).SubUint64(eth(1), 1), eth(2)), ErrInsufficientBid)
	require.NoError(t, e.bid(other, token0Addr, eth(1), eth(2)))

	b, _ := e.auction.Bid(e.pool.Address())
	require.Equal(t, "2857142857142857143", b.AmountOut.Dec())
}

func TestCrossTokenBidsInSeparateBlocks(t *testing.T) {
	e := newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token0Addr, eth(2), eth(2)))
	e.world.Clock().Mine(12)
	require.NoError(t, e.bid(other, token1Addr, eth(4), eth(2)))

	before := e.l0.BalanceOf(other)
	require.NoError(t, e.execute())
	require.Equal(t, "1968749999999999999", new(uint256.Int).Sub(e.l0.BalanceOf(other), before).Dec())

	e = newEnv(t, eth(5), eth(10), nil)
	require.NoError(t, e.bid(wallet, token1Addr, eth(2), eth(2)))
	e.world.Clock().Mine(12)
	require.NoError(t, e.bid(other, token0Addr, eth(1), eth(2)))

	before = e.l1.BalanceOf(other)
	require.NoError(t, e.execute())
	require.Equal(t, "4540540540540540540", new(uint256.Int).Sub(e.l1.BalanceOf(other), before).Dec())
}

func TestReentrantSettlementFailsAsTransfer(t *testing.T) {
	var hooked *tokentest.Hooked
	e := newEnv(t, eth(5), eth(10), func(l0, l1 *token.Ledger) (token.Token, token.Token) {
		hooked = &tokentest.Hooked{Token: l1}
		return l0, hooked
	})
	require.NoError(t, e.bid(wallet, token0Addr, eth(1), eth(1)))

	var reentryErr error
	hooked.OnTransfer = func(ctx context.Context, from, _ common.Address) error {
		if from != auctionAddr {
			return nil
		}
		reentryErr = e.auction.ExecuteWinningBid(ctx, e.pool.Address())
		return reentryErr
	}
	err := e.execute()
	require.ErrorIs(t, err, ErrTransferFailed)
	require.False(t, errors.Is(err, ErrLocked))
	require.ErrorIs(t, reentryErr, ErrLocked)

	b, _ := e.auction.Bid(e.pool.Address())
	require.False(t, b.Executed)
	r0, _, _ := e.pool.GetReserves()
	require.Equal(t, "6000000000000000000", r0.Dec())

	hooked.OnTransfer = nil
	require.NoError(t, e.execute())
}

func TestFalseReturningTokenRejected(t *testing.T) {
	var broken *tokentest.FalseReturning
	e := newEnv(t, eth(5), eth(10), func(l0, l1 *token.Ledger) (token.Token, token.Token) {
		broken = &tokentest.FalseReturning{Token: l0}
		return broken, l1
	})
	broken.FailTransferFrom = true
	require.ErrorIs(t, e.bid(wallet, token0Addr, eth(1), eth(1)), ErrTransferFromFailed)

	broken.FailTransferFrom = false
	broken.FailTransfer = true
	require.ErrorIs(t, e.bid(wallet, token0Addr, eth(1), eth(1)), ErrTransferFailed)
	_, ok := e.auction.Bid(e.pool.Address())
	require.False(t, ok)
}

func TestShortTokenCannotSettle(t *testing.T) {
	var short *tokentest.Short
	e := newEnv(t, eth(5), eth(10), func(l0, l1 *token.Ledger) (token.Token, token.Token) {
		short = &tokentest.Short{Token: l1}
		return l0, short
	})
	short.Shortfall = uint256.NewInt(1)
	require.NoError(t, e.bid(wallet, token0Addr, eth(1), eth(1)))
	b, _ := e.auction.Bid(e.pool.Address())
	require.Equal(t, "1666666666666666665", b.AmountOut.Dec())
}

func TestIncumbentBidOnlyIncreases(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newEnv(rt, eth(5), eth(10), nil)
		var best *uint256.Int
		var bestBidder common.Address

		n := rapid.IntRange(1, 8).Draw(rt, "bids")
		for i := 0; i < n; i++ {
			bidder := common.BigToAddress(uint256.NewInt(uint64(0xB000 + i)).ToBig())
			e.l0.Mint(bidder, eth(10))
			e.l0.Approve(bidder, auctionAddr, new(uint256.Int).SetAllOne())

			swapAmount := milli(rapid.Uint64Range(1, 4_000).Draw(rt, "swap"))
			minBid, err := fixedpoint.Bps(swapAmount, registry.DefaultMinBidBps)
			require.NoError(rt, err)
			bidAmount := new(uint256.Int).AddUint64(minBid, rapid.Uint64Range(0, 3e18).Draw(rt, "extra"))

			err = e.bid(bidder, token0Addr, bidAmount, swapAmount)
			if best != nil && !bidAmount.Gt(best) {
				require.ErrorIs(rt, err, ErrInsufficientBid)
				continue
			}
			require.NoError(rt, err)
			if best != nil {
				// the outbid incumbent is made whole up to one unit
				refunded := e.l0.BalanceOf(bestBidder)
				require.False(rt, refunded.Gt(eth(10)))
				require.False(rt, refunded.Lt(new(uint256.Int).SubUint64(eth(10), 1)), "refund left %s", refunded.Dec())
			}
			best, bestBidder = bidAmount, bidder
		}

		b, ok := e.auction.Bid(e.pool.Address())
		require.True(rt, ok)
		require.Equal(rt, bestBidder, b.Bidder)
		require.NoError(rt, e.execute())
	})
}
