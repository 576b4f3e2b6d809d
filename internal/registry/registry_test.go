package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"flowswap/internal/chain"
	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
	"flowswap/internal/token"
)

var (
	factory = common.HexToAddress("0xFAC7000000000000000000000000000000000001")
	feeSink = common.HexToAddress("0xFeE0000000000000000000000000000000000002")
	alice   = common.HexToAddress("0xaAaA000000000000000000000000000000000003")
)

func newRegistry(t *testing.T) (*chain.World, *Registry) {
	t.Helper()
	w := chain.NewWorld(1, chain.NewClock(1, 1_000), nil)
	r, err := New(w, factory, feeSink, DefaultConfig(), nil)
	require.NoError(t, err)
	return w, r
}

func TestCreatePairSortsTokens(t *testing.T) {
	w, r := newRegistry(t)
	high := token.NewLedger(w, common.HexToAddress("0x2000000000000000000000000000000000000000"), "B", 18)
	low := token.NewLedger(w, common.HexToAddress("0x1000000000000000000000000000000000000000"), "A", 18)

	p, err := r.CreatePair(context.Background(), high, low)
	require.NoError(t, err)
	require.Equal(t, low.Address(), p.Token0().Address())
	require.Equal(t, high.Address(), p.Token1().Address())

	want := crypto.CreateAddress2(factory, crypto.Keccak256Hash(low.Address().Bytes(), high.Address().Bytes()), poolInitCodeHash)
	require.Equal(t, want, p.Address())
	require.Equal(t, want, PairAddress(factory, low.Address(), high.Address()))

	got, ok := r.GetPair(high.Address(), low.Address())
	require.True(t, ok)
	require.Equal(t, want, got)
	got, ok = r.GetPair(low.Address(), high.Address())
	require.True(t, ok)
	require.Equal(t, want, got)
	require.True(t, r.IsPair(want))
	require.Equal(t, []common.Address{want}, r.AllPairs())

	logs := w.Drain()
	require.Len(t, logs, 1)
	require.Equal(t, factory, logs[0].Address)
	require.Equal(t, model.PairCreatedEventData{
		Token0: low.Address().Hex(),
		Token1: high.Address().Hex(),
		Pair:   want.Hex(),
		Index:  1,
	}, logs[0].Data)
}

func TestCreatePairValidation(t *testing.T) {
	w, r := newRegistry(t)
	ctx := context.Background()
	a := token.NewLedger(w, common.HexToAddress("0x1000000000000000000000000000000000000000"), "A", 18)
	b := token.NewLedger(w, common.HexToAddress("0x2000000000000000000000000000000000000000"), "B", 18)
	zero := token.NewLedger(w, common.Address{}, "Z", 18)

	_, err := r.CreatePair(ctx, a, a)
	require.ErrorIs(t, err, ErrIdenticalAddresses)
	_, err = r.CreatePair(ctx, zero, a)
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = r.CreatePair(ctx, a, b)
	require.NoError(t, err)
	_, err = r.CreatePair(ctx, b, a)
	require.ErrorIs(t, err, ErrPairExists)
	require.Len(t, r.AllPairs(), 1)
}

func TestCreatePairRevertsWithTransaction(t *testing.T) {
	w, r := newRegistry(t)
	a := token.NewLedger(w, common.HexToAddress("0x1000000000000000000000000000000000000000"), "A", 18)
	b := token.NewLedger(w, common.HexToAddress("0x2000000000000000000000000000000000000000"), "B", 18)

	boom := errors.New("boom")
	err := w.Atomic(context.Background(), "outer", func(ctx context.Context) error {
		_, err := r.CreatePair(ctx, a, b)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, ok := r.GetPair(a.Address(), b.Address())
	require.False(t, ok)
	require.Empty(t, r.AllPairs())
	require.Empty(t, w.Drain())
}

func TestStreamsReachCreatedPool(t *testing.T) {
	w, r := newRegistry(t)
	ctx := context.Background()
	s := token.NewStreaming(w, common.HexToAddress("0x1000000000000000000000000000000000000000"), "S", 18, nil)
	l := token.NewLedger(w, common.HexToAddress("0x2000000000000000000000000000000000000000"), "L", 18)
	p, err := r.CreatePair(ctx, s, l)
	require.NoError(t, err)

	s.Mint(alice, fixedpoint.Ether(1))
	require.NoError(t, s.CreateFlow(ctx, alice, p.Address(), uint256.NewInt(1_000)))
	rate0, rate1 := p.NetFlowRates()
	require.Equal(t, uint64(1_000), rate0.Uint64())
	require.True(t, rate1.IsZero())
}

func TestControllerWiring(t *testing.T) {
	_, r := newRegistry(t)
	require.Equal(t, feeSink, r.FeeTo())
	require.Equal(t, common.Address{}, r.Auction())

	require.ErrorIs(t, r.SetAuction(common.Address{}), ErrZeroAddress)
	require.NoError(t, r.SetAuction(alice))
	require.Equal(t, alice, r.Auction())
	require.ErrorIs(t, r.SetAuction(feeSink), ErrAuctionSet)
	require.Equal(t, uint64(DefaultMinBidBps), r.MinBidBps())

	bad := DefaultConfig()
	bad.MinBidBps = fixedpoint.BasisPointScale
	_, err := New(chain.NewWorld(1, nil, nil), factory, feeSink, bad, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
