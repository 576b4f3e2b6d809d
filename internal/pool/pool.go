// Package pool implements a constant-product pair that accepts continuous
// token streams as well as discrete deposits. Streamed input is swapped
// against the reserves as time passes; the converted output is tracked per
// streamer through two price accumulators and can be retrieved at any time.
package pool

import (
	"context"
	"maps"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/chain"
	"flowswap/internal/fixedpoint"
	"flowswap/internal/guard"
	"flowswap/internal/model"
	"flowswap/internal/token"
)

// MinimumLiquidity is locked at the zero address by the first mint.
const MinimumLiquidity = 1000

// Defaults for Config.
const (
	DefaultStreamFeeBps = 30
	DefaultSwapFeeBps   = 0
)

// Config holds per-pool fee parameters in basis points.
type Config struct {
	// StreamFeeBps is withheld from streamed input before it is swapped.
	StreamFeeBps uint64
	// SwapFeeBps is charged by the invariant check of discrete swaps. Pools
	// fronted by the auction run with zero: the winning bid is the fee.
	SwapFeeBps uint64
}

// DefaultConfig returns the default fee parameters.
func DefaultConfig() Config {
	return Config{StreamFeeBps: DefaultStreamFeeBps, SwapFeeBps: DefaultSwapFeeBps}
}

// Validate checks fee bounds.
func (c Config) Validate() error {
	if c.StreamFeeBps >= fixedpoint.BasisPointScale {
		return errorsmod.Wrapf(ErrInvalidConfig, "stream fee %d bps", c.StreamFeeBps)
	}
	if c.SwapFeeBps >= fixedpoint.BasisPointScale {
		return errorsmod.Wrapf(ErrInvalidConfig, "swap fee %d bps", c.SwapFeeBps)
	}
	return nil
}

// Controller is what a pool reads from its registry on every call.
type Controller interface {
	Auction() common.Address
	FeeTo() common.Address
}

type depositor struct {
	// rate0 streams token0 in and earns token1; rate1 the reverse
	rate0 uint256.Int
	rate1 uint256.Int
	snap0 fixedpoint.Accumulator
	snap1 fixedpoint.Accumulator
	owed0 uint256.Int
	owed1 uint256.Int
}

func (d depositor) empty() bool {
	return d.rate0.IsZero() && d.rate1.IsZero() && d.owed0.IsZero() && d.owed1.IsZero()
}

type state struct {
	reserve0 uint256.Int
	reserve1 uint256.Int
	lastSync fixedpoint.Timestamp32

	flow0 uint256.Int
	flow1 uint256.Int

	// twap0 sums token0 paid per unit of token1 streamed, scaled by Q96;
	// twap1 sums token1 paid per unit of token0 streamed
	twap0 fixedpoint.Accumulator
	twap1 fixedpoint.Accumulator

	swapped0 uint256.Int
	swapped1 uint256.Int

	kLast      uint256.Int
	depositors map[common.Address]depositor
	shares     shareLedger
}

func (s state) clone() state {
	out := s
	out.depositors = maps.Clone(s.depositors)
	out.shares = s.shares.clone()
	return out
}

// Pool is a streaming constant-product pair.
type Pool struct {
	world   *chain.World
	address common.Address
	token0  token.Token
	token1  token.Token
	ctrl    Controller
	cfg     Config
	guard   *guard.Guard
	logger  *zap.Logger

	st state
}

// New creates a pool and registers its state with the world's journal. The
// caller orders the tokens.
func New(world *chain.World, address common.Address, token0, token1 token.Token, ctrl Controller, cfg Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		world:   world,
		address: address,
		token0:  token0,
		token1:  token1,
		ctrl:    ctrl,
		cfg:     cfg,
		guard:   guard.New("pool " + address.Hex()),
		logger:  logger.With(zap.String("pool", address.Hex())),
		st: state{
			lastSync:   fixedpoint.TimestampFrom(world.Now()),
			depositors: make(map[common.Address]depositor),
			shares:     newShareLedger(),
		},
	}
	world.Register(p)
	return p, nil
}

func (p *Pool) Snapshot() any { return p.st.clone() }

func (p *Pool) Restore(snapshot any) { p.st = snapshot.(state) }

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Token0() token.Token { return p.token0 }

func (p *Pool) Token1() token.Token { return p.token1 }

func (p *Pool) Config() Config { return p.cfg }

// GetReserves returns the reserves as of the last sync.
func (p *Pool) GetReserves() (*uint256.Int, *uint256.Int, uint32) {
	return p.st.reserve0.Clone(), p.st.reserve1.Clone(), uint32(p.st.lastSync)
}

// GetReservesAtTime extrapolates the reserves to timestamp t, which must not
// precede the last sync by the pool's 32-bit clock.
func (p *Pool) GetReservesAtTime(t uint64) (*uint256.Int, *uint256.Int, uint32, error) {
	proj, err := p.project(t)
	if err != nil {
		return nil, nil, 0, err
	}
	return proj.reserve0, proj.reserve1, uint32(proj.at), nil
}

// GetRealTimeReserves extrapolates the reserves to the current block.
func (p *Pool) GetRealTimeReserves() (*uint256.Int, *uint256.Int, uint32, error) {
	return p.GetReservesAtTime(p.world.Now())
}

// NetFlowRates returns the aggregate stream rates into the pool.
func (p *Pool) NetFlowRates() (*uint256.Int, *uint256.Int) {
	return p.st.flow0.Clone(), p.st.flow1.Clone()
}

// TotalSwappedFunds returns the converted amounts owed to streamers as of the
// last sync.
func (p *Pool) TotalSwappedFunds() (*uint256.Int, *uint256.Int) {
	return p.st.swapped0.Clone(), p.st.swapped1.Clone()
}

// Accumulators returns the price accumulators as of the last sync.
func (p *Pool) Accumulators() (fixedpoint.Accumulator, fixedpoint.Accumulator) {
	return p.st.twap0, p.st.twap1
}

// KLast returns reserve0*reserve1 as of the last liquidity event while the
// protocol fee is on.
func (p *Pool) KLast() *uint256.Int { return p.st.kLast.Clone() }

// UserRates returns a depositor's stream rates into the pool.
func (p *Pool) UserRates(user common.Address) (*uint256.Int, *uint256.Int) {
	d := p.st.depositors[user]
	return d.rate0.Clone(), d.rate1.Clone()
}

type projection struct {
	at       fixedpoint.Timestamp32
	reserve0 *uint256.Int
	reserve1 *uint256.Int
	twap0    fixedpoint.Accumulator
	twap1    fixedpoint.Accumulator
	swapped0 *uint256.Int
	swapped1 *uint256.Int
}

// project computes the pool state at timestamp t without changing it.
func (p *Pool) project(t uint64) (projection, error) {
	at := fixedpoint.TimestampFrom(t)
	ext, err := Extrapolate(ReserveState{
		Reserve0:  &p.st.reserve0,
		Reserve1:  &p.st.reserve1,
		FlowRate0: &p.st.flow0,
		FlowRate1: &p.st.flow1,
	}, at.Elapsed(p.st.lastSync), p.cfg.StreamFeeBps)
	if err != nil {
		return projection{}, err
	}

	proj := projection{
		at:       at,
		reserve0: ext.Reserve0,
		reserve1: ext.Reserve1,
		twap0:    p.st.twap0,
		twap1:    p.st.twap1,
	}
	if proj.swapped0, err = fixedpoint.Add(&p.st.swapped0, ext.Surplus0); err != nil {
		return projection{}, err
	}
	if proj.swapped1, err = fixedpoint.Add(&p.st.swapped1, ext.Surplus1); err != nil {
		return projection{}, err
	}
	if !p.st.flow0.IsZero() && !ext.Surplus1.IsZero() {
		inc, err := fixedpoint.MulDiv(ext.Surplus1, fixedpoint.Q96(), &p.st.flow0)
		if err != nil {
			return projection{}, err
		}
		proj.twap1 = proj.twap1.Add(inc)
	}
	if !p.st.flow1.IsZero() && !ext.Surplus0.IsZero() {
		inc, err := fixedpoint.MulDiv(ext.Surplus0, fixedpoint.Q96(), &p.st.flow1)
		if err != nil {
			return projection{}, err
		}
		proj.twap0 = proj.twap0.Add(inc)
	}
	return proj, nil
}

// settle moves the synced state forward to the current block.
func (p *Pool) settle() error {
	proj, err := p.project(p.world.Now())
	if err != nil {
		return err
	}
	p.st.reserve0 = *proj.reserve0
	p.st.reserve1 = *proj.reserve1
	p.st.twap0 = proj.twap0
	p.st.twap1 = proj.twap1
	p.st.swapped0 = *proj.swapped0
	p.st.swapped1 = *proj.swapped1
	p.st.lastSync = proj.at
	return nil
}

// holdings returns the pool's token balances net of what streamers are owed.
func (p *Pool) holdings() (*uint256.Int, *uint256.Int, error) {
	bal0, err := fixedpoint.Sub(p.token0.BalanceOf(p.address), &p.st.swapped0)
	if err != nil {
		return nil, nil, errorsmod.Wrap(ErrUnderfunded, "token0")
	}
	bal1, err := fixedpoint.Sub(p.token1.BalanceOf(p.address), &p.st.swapped1)
	if err != nil {
		return nil, nil, errorsmod.Wrap(ErrUnderfunded, "token1")
	}
	return bal0, bal1, nil
}

// update stores new reserves after settle and emits Sync.
func (p *Pool) update(ctx context.Context, reserve0, reserve1 *uint256.Int) error {
	limit := fixedpoint.MaxUint112()
	if reserve0.Gt(limit) || reserve1.Gt(limit) {
		return errorsmod.Wrapf(ErrOverflow, "%s, %s", reserve0.Dec(), reserve1.Dec())
	}
	p.st.reserve0.Set(reserve0)
	p.st.reserve1.Set(reserve1)
	return p.emitSync(ctx)
}

func (p *Pool) emitSync(ctx context.Context) error {
	return p.world.Emit(ctx, p.address, model.SyncEventData{
		Reserve0: p.st.reserve0.Dec(),
		Reserve1: p.st.reserve1.Dec(),
	})
}

// locked runs fn as one transaction inside the pool's guard.
func (p *Pool) locked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return p.world.Atomic(ctx, name, func(ctx context.Context) error {
		if err := p.guard.Enter(); err != nil {
			return errorsmod.Wrap(ErrLocked, err.Error())
		}
		defer p.guard.Exit()
		return fn(ctx)
	})
}

func (p *Pool) transfer(ctx context.Context, t token.Token, to common.Address, amount *uint256.Int) error {
	if err := token.SafeTransfer(ctx, t, p.address, to, amount); err != nil {
		return errorsmod.Wrap(ErrTransferFailed, err.Error())
	}
	return nil
}

// Sync forces the reserves to match the pool's holdings.
func (p *Pool) Sync(ctx context.Context) error {
	return p.locked(ctx, "sync", func(ctx context.Context) error {
		if err := p.settle(); err != nil {
			return err
		}
		bal0, bal1, err := p.holdings()
		if err != nil {
			return err
		}
		return p.update(ctx, bal0, bal1)
	})
}

// Skim sends holdings above the reserves to the recipient.
func (p *Pool) Skim(ctx context.Context, to common.Address) error {
	return p.locked(ctx, "skim", func(ctx context.Context) error {
		if err := p.settle(); err != nil {
			return err
		}
		bal0, bal1, err := p.holdings()
		if err != nil {
			return err
		}
		if excess := fixedpoint.SubFloor(bal0, &p.st.reserve0); !excess.IsZero() {
			if err := p.transfer(ctx, p.token0, to, excess); err != nil {
				return err
			}
		}
		if excess := fixedpoint.SubFloor(bal1, &p.st.reserve1); !excess.IsZero() {
			if err := p.transfer(ctx, p.token1, to, excess); err != nil {
				return err
			}
		}
		return nil
	})
}
