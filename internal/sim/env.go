package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/auction"
	"flowswap/internal/chain"
	"flowswap/internal/pool"
	"flowswap/internal/registry"
	"flowswap/internal/token"
)

// DefaultStart is the genesis timestamp used when a scenario sets none.
const DefaultStart = 1_700_000_000

const (
	registryAccount = "registry"
	auctionAccount  = "auction"
)

// asset is a token the scenario can mint and approve.
type asset interface {
	token.Token
	Mint(to common.Address, amount *uint256.Int)
	Approve(owner, spender common.Address, amount *uint256.Int)
}

// Env is the simulated chain a scenario runs against.
type Env struct {
	World    *chain.World
	Registry *registry.Registry
	Auction  *auction.Auction

	tokens map[string]asset
	logger *zap.Logger
}

// NewEnv builds the world, registry, auction and tokens of a scenario.
func NewEnv(sc Scenario, chainID uint64, cfg registry.Config, logger *zap.Logger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := sc.Start
	if start == 0 {
		start = DefaultStart
	}
	world := chain.NewWorld(chainID, chain.NewClock(1, start), logger)

	var feeTo common.Address
	if sc.FeeTo != "" {
		addr, err := ParseAccount(sc.FeeTo)
		if err != nil {
			return nil, fmt.Errorf("fee-to: %w", err)
		}
		feeTo = addr
	}

	registryAddr, _ := ParseAccount(registryAccount)
	auctionAddr, _ := ParseAccount(auctionAccount)
	reg, err := registry.New(world, registryAddr, feeTo, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := auction.New(world, auctionAddr, reg, logger)
	if err := reg.SetAuction(a.Address()); err != nil {
		return nil, err
	}

	env := &Env{
		World:    world,
		Registry: reg,
		Auction:  a,
		tokens:   make(map[string]asset, len(sc.Tokens)),
		logger:   logger,
	}
	for _, spec := range sc.Tokens {
		addr, err := tokenAddress(spec)
		if err != nil {
			return nil, err
		}
		symbol := strings.TrimSpace(spec.Symbol)
		if spec.Streaming {
			env.tokens[symbol] = token.NewStreaming(world, addr, symbol, spec.Decimals, logger)
		} else {
			env.tokens[symbol] = token.NewLedger(world, addr, symbol, spec.Decimals)
		}
	}
	return env, nil
}

func tokenAddress(spec TokenSpec) (common.Address, error) {
	if spec.Address != "" {
		if !common.IsHexAddress(spec.Address) {
			return common.Address{}, fmt.Errorf("token %s: invalid address %s", spec.Symbol, spec.Address)
		}
		return common.HexToAddress(spec.Address), nil
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("flowswap/token/" + strings.TrimSpace(spec.Symbol)))[12:]), nil
}

// Token returns a scenario token by symbol.
func (e *Env) Token(symbol string) (token.Token, bool) {
	t, ok := e.tokens[symbol]
	return t, ok
}

// Pool returns the pool of an "A/B" pair.
func (e *Env) Pool(pair string) (*pool.Pool, error) {
	a, b, err := ParsePair(pair)
	if err != nil {
		return nil, err
	}
	ta, err := e.asset(a)
	if err != nil {
		return nil, err
	}
	tb, err := e.asset(b)
	if err != nil {
		return nil, err
	}
	addr, ok := e.Registry.GetPair(ta.Address(), tb.Address())
	if !ok {
		return nil, fmt.Errorf("pair %s does not exist", pair)
	}
	p, ok := e.Registry.Pool(addr)
	if !ok {
		return nil, fmt.Errorf("pair %s does not exist", pair)
	}
	return p, nil
}

func (e *Env) asset(symbol string) (asset, error) {
	t, ok := e.tokens[strings.TrimSpace(symbol)]
	if !ok {
		return nil, fmt.Errorf("unknown token %q", symbol)
	}
	return t, nil
}

// Apply executes one step against the world.
func (e *Env) Apply(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepAdvance:
		e.World.Clock().Advance(step.Seconds)
		return nil
	case StepMine:
		e.World.Clock().Mine(step.Seconds)
		return nil
	case StepMintToken:
		return e.mintToken(step)
	case StepApprove:
		return e.approve(step)
	case StepCreatePair:
		return e.createPair(ctx, step)
	case StepAddLiquidity:
		return e.addLiquidity(ctx, step)
	case StepFlow:
		return e.flow(ctx, step)
	case StepBid:
		return e.bid(ctx, step)
	case StepExecute:
		p, err := e.Pool(step.Pair)
		if err != nil {
			return err
		}
		return e.Auction.ExecuteWinningBid(ctx, p.Address())
	case StepRetrieve:
		p, err := e.Pool(step.Pair)
		if err != nil {
			return err
		}
		caller, err := ParseAccount(step.From)
		if err != nil {
			return err
		}
		_, _, err = p.RetrieveFunds(ctx, caller)
		return err
	case StepBurn:
		return e.burn(ctx, step)
	case StepSync:
		p, err := e.Pool(step.Pair)
		if err != nil {
			return err
		}
		return p.Sync(ctx)
	case StepSkim:
		p, err := e.Pool(step.Pair)
		if err != nil {
			return err
		}
		to, err := ParseAccount(step.To)
		if err != nil {
			return err
		}
		return p.Skim(ctx, to)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (e *Env) mintToken(step Step) error {
	t, err := e.asset(step.Token)
	if err != nil {
		return err
	}
	to, err := ParseAccount(step.To)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(step.Amount)
	if err != nil {
		return err
	}
	t.Mint(to, amount)
	return nil
}

// approve grants To (the auction when empty) an allowance over From's tokens.
func (e *Env) approve(step Step) error {
	t, err := e.asset(step.Token)
	if err != nil {
		return err
	}
	owner, err := ParseAccount(step.From)
	if err != nil {
		return err
	}
	spender := e.Auction.Address()
	if step.To != "" {
		if spender, err = ParseAccount(step.To); err != nil {
			return err
		}
	}
	amount, err := ParseAmount(step.Amount)
	if err != nil {
		return err
	}
	t.Approve(owner, spender, amount)
	return nil
}

func (e *Env) createPair(ctx context.Context, step Step) error {
	a, b, err := ParsePair(step.Pair)
	if err != nil {
		return err
	}
	ta, err := e.asset(a)
	if err != nil {
		return err
	}
	tb, err := e.asset(b)
	if err != nil {
		return err
	}
	p, err := e.Registry.CreatePair(ctx, ta, tb)
	if err != nil {
		return err
	}
	e.logger.Info("pair created", zap.String("pair", step.Pair), zap.String("pool", p.Address().Hex()))
	return nil
}

// addLiquidity transfers Amount of the pair's first token and AmountB of the
// second from From to the pool and mints shares to To (From when empty).
func (e *Env) addLiquidity(ctx context.Context, step Step) error {
	a, b, err := ParsePair(step.Pair)
	if err != nil {
		return err
	}
	p, err := e.Pool(step.Pair)
	if err != nil {
		return err
	}
	ta, _ := e.asset(a)
	tb, _ := e.asset(b)
	provider, err := ParseAccount(step.From)
	if err != nil {
		return err
	}
	to, err := e.recipient(step.To, provider)
	if err != nil {
		return err
	}
	amountA, err := ParseAmount(step.Amount)
	if err != nil {
		return err
	}
	amountB, err := ParseAmount(step.AmountB)
	if err != nil {
		return err
	}

	return e.World.Atomic(ctx, "addLiquidity", func(ctx context.Context) error {
		if err := token.SafeTransfer(ctx, ta, provider, p.Address(), amountA); err != nil {
			return err
		}
		if err := token.SafeTransfer(ctx, tb, provider, p.Address(), amountB); err != nil {
			return err
		}
		_, err := p.Mint(ctx, provider, to)
		return err
	})
}

// flow sets From's stream of Token to the pool of Pair, or to To when no pair
// is given. A zero rate closes the stream.
func (e *Env) flow(ctx context.Context, step Step) error {
	t, err := e.asset(step.Token)
	if err != nil {
		return err
	}
	st, ok := t.(*token.Streaming)
	if !ok {
		return fmt.Errorf("token %s does not stream", step.Token)
	}
	sender, err := ParseAccount(step.From)
	if err != nil {
		return err
	}
	rate, err := ParseAmount(step.Rate)
	if err != nil {
		return err
	}
	var receiver common.Address
	if step.Pair != "" {
		p, err := e.Pool(step.Pair)
		if err != nil {
			return err
		}
		receiver = p.Address()
	} else if receiver, err = ParseAccount(step.To); err != nil {
		return err
	}
	return st.SetFlow(ctx, sender, receiver, rate)
}

func (e *Env) bid(ctx context.Context, step Step) error {
	p, err := e.Pool(step.Pair)
	if err != nil {
		return err
	}
	t, err := e.asset(step.Token)
	if err != nil {
		return err
	}
	bidder, err := ParseAccount(step.From)
	if err != nil {
		return err
	}
	bidAmount, err := ParseAmount(step.Bid)
	if err != nil {
		return err
	}
	swapAmount, err := ParseAmount(step.Swap)
	if err != nil {
		return err
	}
	minOut, err := ParseAmount(step.MinOut)
	if err != nil {
		return err
	}
	return e.Auction.PlaceBid(ctx, bidder, auction.BidRequest{
		Token:        t.Address(),
		Pool:         p.Address(),
		BidAmount:    bidAmount,
		SwapAmount:   swapAmount,
		MinAmountOut: minOut,
		Deadline:     e.World.Now() + step.DeadlineIn,
	})
}

// burn moves Amount of From's shares ("max" for all) to the pool and redeems
// them for To (From when empty).
func (e *Env) burn(ctx context.Context, step Step) error {
	p, err := e.Pool(step.Pair)
	if err != nil {
		return err
	}
	owner, err := ParseAccount(step.From)
	if err != nil {
		return err
	}
	to, err := e.recipient(step.To, owner)
	if err != nil {
		return err
	}
	shares := p.SharesOf(owner)
	if !strings.EqualFold(strings.TrimSpace(step.Amount), "max") {
		if shares, err = ParseAmount(step.Amount); err != nil {
			return err
		}
	}

	return e.World.Atomic(ctx, "removeLiquidity", func(ctx context.Context) error {
		if err := p.TransferShares(ctx, owner, p.Address(), shares); err != nil {
			return err
		}
		_, _, err := p.Burn(ctx, owner, to)
		return err
	})
}

func (e *Env) recipient(input string, fallback common.Address) (common.Address, error) {
	if strings.TrimSpace(input) == "" {
		return fallback, nil
	}
	return ParseAccount(input)
}
