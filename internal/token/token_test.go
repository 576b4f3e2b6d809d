package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"flowswap/internal/chain"
)

var (
	alice = common.HexToAddress("0xaAaA000000000000000000000000000000000001")
	bob   = common.HexToAddress("0xBbBb000000000000000000000000000000000002")
	carol = common.HexToAddress("0xCcCc000000000000000000000000000000000003")
)

func newWorld() *chain.World {
	return chain.NewWorld(1, chain.NewClock(1, 1_000), nil)
}

func TestLedgerTransferAndAllowance(t *testing.T) {
	w := newWorld()
	l := NewLedger(w, common.HexToAddress("0x01"), "TK0", 18)
	l.Mint(alice, uint256.NewInt(100))
	ctx := context.Background()

	require.NoError(t, SafeTransfer(ctx, l, alice, bob, uint256.NewInt(40)))
	require.Equal(t, uint64(60), l.BalanceOf(alice).Uint64())
	require.Equal(t, uint64(40), l.BalanceOf(bob).Uint64())

	err := SafeTransfer(ctx, l, alice, bob, uint256.NewInt(61))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = SafeTransferFrom(ctx, l, carol, alice, bob, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	l.Approve(alice, carol, uint256.NewInt(10))
	require.NoError(t, SafeTransferFrom(ctx, l, carol, alice, bob, uint256.NewInt(10)))
	require.True(t, l.Allowance(alice, carol).IsZero())

	l.Approve(alice, carol, new(uint256.Int).SetAllOne())
	require.NoError(t, SafeTransferFrom(ctx, l, carol, alice, bob, uint256.NewInt(5)))
	require.True(t, l.Allowance(alice, carol).Eq(new(uint256.Int).SetAllOne()))
	require.Equal(t, uint64(100), l.TotalSupply().Uint64())
}

func TestLedgerRollsBackWithTransaction(t *testing.T) {
	w := newWorld()
	l := NewLedger(w, common.HexToAddress("0x01"), "TK0", 18)
	l.Mint(alice, uint256.NewInt(100))

	boom := errors.New("boom")
	err := w.Atomic(context.Background(), "t", func(ctx context.Context) error {
		require.NoError(t, SafeTransfer(ctx, l, alice, bob, uint256.NewInt(70)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, uint64(100), l.BalanceOf(alice).Uint64())
	require.True(t, l.BalanceOf(bob).IsZero())
}

type recordingReceiver struct {
	updates []FlowUpdate
	err     error
}

func (r *recordingReceiver) OnFlowUpdated(_ context.Context, u FlowUpdate) error {
	r.updates = append(r.updates, u)
	return r.err
}

func TestStreamingBalancesMoveWithTime(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(1_000_000))
	ctx := context.Background()

	require.NoError(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(10)))
	w.Clock().Advance(100)
	require.Equal(t, uint64(999_000), s.BalanceOf(alice).Uint64())
	require.Equal(t, uint64(1_000), s.BalanceOf(bob).Uint64())
	require.Equal(t, "-10", s.NetFlow(alice).String())
	require.Equal(t, "10", s.NetFlow(bob).String())

	require.NoError(t, s.UpdateFlow(ctx, alice, bob, uint256.NewInt(20)))
	w.Clock().Advance(10)
	require.Equal(t, uint64(1_200), s.BalanceOf(bob).Uint64())

	require.NoError(t, s.DeleteFlow(ctx, alice, bob))
	w.Clock().Advance(10)
	require.Equal(t, uint64(1_200), s.BalanceOf(bob).Uint64())
	require.Zero(t, s.NetFlow(alice).Sign())
	require.Equal(t, uint64(1_000_000), s.BalanceOf(alice).Uint64()+s.BalanceOf(bob).Uint64())
}

func TestStreamingTransferSettlesFirst(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(1_000))
	ctx := context.Background()

	require.NoError(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(1)))
	w.Clock().Advance(50)
	require.NoError(t, SafeTransfer(ctx, s, bob, carol, uint256.NewInt(50)))
	require.True(t, s.BalanceOf(bob).IsZero())
	require.ErrorIs(t, SafeTransfer(ctx, s, bob, carol, uint256.NewInt(1)), ErrInsufficientBalance)
}

func TestStreamingOverdrawnSenderReadsZero(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(10))
	require.NoError(t, s.CreateFlow(context.Background(), alice, bob, uint256.NewInt(1)))
	w.Clock().Advance(25)
	require.True(t, s.BalanceOf(alice).IsZero())
	require.Equal(t, uint64(25), s.BalanceOf(bob).Uint64())
}

func TestStreamingReceiverCallback(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(1_000))
	r := &recordingReceiver{}
	s.RegisterReceiver(bob, r)
	ctx := context.Background()

	require.NoError(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(3)))
	require.NoError(t, s.UpdateFlow(ctx, alice, bob, uint256.NewInt(5)))
	require.Len(t, r.updates, 2)
	require.Equal(t, uint64(3), r.updates[1].OldRate.Uint64())
	require.Equal(t, uint64(5), r.updates[1].NewRate.Uint64())

	r.err = errors.New("rejected")
	err := s.DeleteFlow(ctx, alice, bob)
	require.ErrorIs(t, err, r.err)
	require.Equal(t, uint64(5), s.Flow(alice, bob).Uint64())
	require.Equal(t, "5", s.NetFlow(bob).String())
}

func TestStreamingFlowValidation(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(1_000))
	ctx := context.Background()

	require.ErrorIs(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(0)), ErrInvalidFlowRate)
	require.ErrorIs(t, s.CreateFlow(ctx, alice, bob, new(uint256.Int).AddUint64(MaxFlowRate(), 1)), ErrInvalidFlowRate)
	require.ErrorIs(t, s.CreateFlow(ctx, alice, alice, uint256.NewInt(1)), ErrSelfFlow)
	require.ErrorIs(t, s.CreateFlow(ctx, carol, bob, uint256.NewInt(1)), ErrInsufficientBalance)
	require.ErrorIs(t, s.UpdateFlow(ctx, alice, bob, uint256.NewInt(1)), ErrFlowNotFound)
	require.ErrorIs(t, s.DeleteFlow(ctx, alice, bob), ErrFlowNotFound)
	require.NoError(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(1)))
	require.ErrorIs(t, s.CreateFlow(ctx, alice, bob, uint256.NewInt(2)), ErrFlowExists)
}

func TestStreamingMaxFlowRate(t *testing.T) {
	w := newWorld()
	s := NewStreaming(w, common.HexToAddress("0x02"), "STR", 18, nil)
	s.Mint(alice, uint256.NewInt(1))
	s.Mint(carol, uint256.NewInt(1))
	ctx := context.Background()

	limit := MaxFlowRate()
	require.Equal(t, "39614081257132168796771975167", limit.Dec())
	almost := new(uint256.Int).SubUint64(limit, 1)
	require.NoError(t, s.CreateFlow(ctx, alice, bob, almost))
	require.NoError(t, s.CreateFlow(ctx, carol, bob, uint256.NewInt(1)))
	require.Equal(t, limit.Dec(), s.NetFlow(bob).String())
	require.Equal(t, "-"+almost.Dec(), s.NetFlow(alice).String())

	w.Clock().Advance(1_000)
	want := new(uint256.Int).Mul(limit, uint256.NewInt(1_000))
	require.Equal(t, want.Dec(), s.BalanceOf(bob).Dec())
	require.True(t, s.BalanceOf(alice).IsZero())

	// bob's net flow is already at the bound
	dave := common.HexToAddress("0xDdDd000000000000000000000000000000000004")
	s.Mint(dave, uint256.NewInt(1))
	require.ErrorIs(t, s.CreateFlow(ctx, dave, bob, uint256.NewInt(1)), ErrInvalidFlowRate)
	require.Zero(t, s.Flow(dave, bob).Sign())
}

func TestAddRateOverflow(t *testing.T) {
	limit := MaxFlowRate()
	net := new(uint256.Int).SubUint64(limit, 1)
	require.ErrorIs(t, addRate(net, uint256.NewInt(2)), ErrInvalidFlowRate)
	require.Equal(t, new(uint256.Int).SubUint64(limit, 1), net)

	neg := new(uint256.Int).Neg(net)
	require.ErrorIs(t, addRate(neg, new(uint256.Int).Neg(uint256.NewInt(2))), ErrInvalidFlowRate)

	got := new(uint256.Int).Neg(uint256.NewInt(5))
	require.NoError(t, addRate(got, uint256.NewInt(3)))
	require.Equal(t, "-2", signedDec(got))
}
