// Package registry creates pools at deterministic addresses and answers which
// pools exist. Pools read the auction and fee recipient from it.
package registry

import (
	"bytes"
	"context"
	"maps"
	"slices"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"flowswap/internal/chain"
	"flowswap/internal/fixedpoint"
	"flowswap/internal/model"
	"flowswap/internal/pool"
	"flowswap/internal/token"
)

// DefaultMinBidBps is the smallest accepted bid relative to the swap amount.
const DefaultMinBidBps = 30

// poolInitCodeHash stands in for the pool bytecode hash in CREATE2 derivation.
var poolInitCodeHash = crypto.Keccak256([]byte("flowswap/pool/v1"))

// Config holds the parameters shared by every pool the registry creates.
type Config struct {
	Pool      pool.Config
	MinBidBps uint64
}

// DefaultConfig returns the default fees.
func DefaultConfig() Config {
	return Config{Pool: pool.DefaultConfig(), MinBidBps: DefaultMinBidBps}
}

// Validate checks fee bounds.
func (c Config) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.MinBidBps >= fixedpoint.BasisPointScale {
		return errorsmod.Wrapf(ErrInvalidConfig, "min bid %d bps", c.MinBidBps)
	}
	return nil
}

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

type registryState struct {
	pairs   map[pairKey]common.Address
	all     []common.Address
	pools   map[common.Address]*pool.Pool
	auction common.Address
}

// Registry is the pool factory.
type Registry struct {
	world   *chain.World
	address common.Address
	feeTo   common.Address
	cfg     Config
	logger  *zap.Logger

	st registryState
}

// New creates a registry. A zero feeTo disables the protocol fee.
func New(world *chain.World, address, feeTo common.Address, cfg Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		world:   world,
		address: address,
		feeTo:   feeTo,
		cfg:     cfg,
		logger:  logger,
		st: registryState{
			pairs: make(map[pairKey]common.Address),
			pools: make(map[common.Address]*pool.Pool),
		},
	}
	world.Register(r)
	return r, nil
}

func (r *Registry) Snapshot() any {
	return registryState{
		pairs:   maps.Clone(r.st.pairs),
		all:     slices.Clone(r.st.all),
		pools:   maps.Clone(r.st.pools),
		auction: r.st.auction,
	}
}

func (r *Registry) Restore(snapshot any) { r.st = snapshot.(registryState) }

func (r *Registry) Address() common.Address { return r.address }

func (r *Registry) Config() Config { return r.cfg }

// MinBidBps is the auction's minimum bid for pools of this registry.
func (r *Registry) MinBidBps() uint64 { return r.cfg.MinBidBps }

// FeeTo returns the protocol fee recipient.
func (r *Registry) FeeTo() common.Address { return r.feeTo }

// Auction returns the only address allowed to swap.
func (r *Registry) Auction() common.Address { return r.st.auction }

// SetAuction wires the auction. It can be called once.
func (r *Registry) SetAuction(auction common.Address) error {
	if auction == (common.Address{}) {
		return ErrZeroAddress
	}
	if r.st.auction != (common.Address{}) {
		return errorsmod.Wrapf(ErrAuctionSet, "%s", r.st.auction.Hex())
	}
	r.st.auction = auction
	return nil
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives the address a pair of sorted tokens is created at.
func PairAddress(factory, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, poolInitCodeHash)
}

type flowSource interface {
	RegisterReceiver(account common.Address, r token.FlowReceiver)
}

// CreatePair deploys a pool for two tokens. Streaming tokens get the pool
// registered as the receiver of streams into it.
func (r *Registry) CreatePair(ctx context.Context, tokenA, tokenB token.Token) (*pool.Pool, error) {
	var created *pool.Pool
	err := r.world.Atomic(ctx, "createPair", func(ctx context.Context) error {
		a, b := tokenA.Address(), tokenB.Address()
		if a == b {
			return errorsmod.Wrapf(ErrIdenticalAddresses, "%s", a.Hex())
		}
		t0, t1 := tokenA, tokenB
		if first, _ := SortTokens(a, b); first != a {
			t0, t1 = tokenB, tokenA
		}
		if t0.Address() == (common.Address{}) {
			return ErrZeroAddress
		}
		key := pairKey{t0.Address(), t1.Address()}
		if existing, ok := r.st.pairs[key]; ok {
			return errorsmod.Wrapf(ErrPairExists, "%s", existing.Hex())
		}

		address := PairAddress(r.address, key.token0, key.token1)
		p, err := pool.New(r.world, address, t0, t1, r, r.cfg.Pool, r.logger)
		if err != nil {
			return err
		}
		for _, t := range []token.Token{t0, t1} {
			if src, ok := t.(flowSource); ok {
				src.RegisterReceiver(address, p)
			}
		}
		r.st.pairs[key] = address
		r.st.pools[address] = p
		r.st.all = append(r.st.all, address)

		r.logger.Info("pair created",
			zap.String("token0", key.token0.Hex()),
			zap.String("token1", key.token1.Hex()),
			zap.String("pair", address.Hex()),
			zap.Int("index", len(r.st.all)),
		)
		created = p
		return r.world.Emit(ctx, r.address, model.PairCreatedEventData{
			Token0: key.token0.Hex(),
			Token1: key.token1.Hex(),
			Pair:   address.Hex(),
			Index:  uint64(len(r.st.all)),
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetPair returns the pool for two tokens in either order.
func (r *Registry) GetPair(tokenA, tokenB common.Address) (common.Address, bool) {
	t0, t1 := SortTokens(tokenA, tokenB)
	address, ok := r.st.pairs[pairKey{t0, t1}]
	return address, ok
}

// AllPairs returns pool addresses in creation order.
func (r *Registry) AllPairs() []common.Address {
	return slices.Clone(r.st.all)
}

// IsPair reports whether the registry created a pool at address.
func (r *Registry) IsPair(address common.Address) bool {
	_, ok := r.st.pools[address]
	return ok
}

// Pool returns the pool created at address.
func (r *Registry) Pool(address common.Address) (*pool.Pool, bool) {
	p, ok := r.st.pools[address]
	return p, ok
}

// Pools returns the created pools in creation order.
func (r *Registry) Pools() []*pool.Pool {
	out := make([]*pool.Pool, 0, len(r.st.all))
	for _, address := range r.st.all {
		out = append(out, r.st.pools[address])
	}
	return out
}

// PoolMeta returns the pair tokens of a pool created by this registry.
func (r *Registry) PoolMeta(address common.Address) (model.PoolMeta, bool) {
	p, ok := r.st.pools[address]
	if !ok {
		return model.PoolMeta{}, false
	}
	return model.PoolMeta{
		Token0: p.Token0().Address().Hex(),
		Token1: p.Token1().Address().Hex(),
	}, true
}
