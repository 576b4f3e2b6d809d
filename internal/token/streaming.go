package token

import (
	"context"
	"maps"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"flowswap/internal/chain"
	"flowswap/internal/model"
)

// maxFlowRate is the largest int96, the bound of a single stream's rate and
// of an account's net flow.
var maxFlowRate = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 95), 1)

// MaxFlowRate returns the largest per-second rate a stream may carry.
func MaxFlowRate() *uint256.Int { return maxFlowRate.Clone() }

// FlowUpdate describes a stream change delivered to a FlowReceiver. Rates
// are never nil.
type FlowUpdate struct {
	Token    common.Address
	Sender   common.Address
	Receiver common.Address
	OldRate  *uint256.Int
	NewRate  *uint256.Int
}

// FlowReceiver is notified inside the same transaction whenever a stream into
// it is created, updated or deleted. Returning an error reverts the change.
type FlowReceiver interface {
	OnFlowUpdated(ctx context.Context, update FlowUpdate) error
}

type streamAccount struct {
	// settled is a two's-complement balance so a stream may overdraw its sender
	settled uint256.Int
	// netFlow is two's complement, negative for net senders
	netFlow   uint256.Int
	updatedAt uint64
}

type flowKey struct {
	sender   common.Address
	receiver common.Address
}

type streamingState struct {
	accounts   map[common.Address]streamAccount
	flows      map[flowKey]uint256.Int
	allowances map[allowanceKey]uint256.Int
	receivers  map[common.Address]FlowReceiver
	supply     uint256.Int
}

// Streaming is a token whose balances move continuously between accounts at
// constant per-second rates, settled lazily against the world clock.
type Streaming struct {
	world   *chain.World
	address common.Address
	meta    model.TokenMeta
	logger  *zap.Logger

	accounts   map[common.Address]streamAccount
	flows      map[flowKey]uint256.Int
	allowances map[allowanceKey]uint256.Int
	receivers  map[common.Address]FlowReceiver
	supply     uint256.Int
}

// NewStreaming creates a streaming token and registers it with the world.
func NewStreaming(world *chain.World, address common.Address, symbol string, decimals uint8, logger *zap.Logger) *Streaming {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Streaming{
		world:   world,
		address: address,
		meta: model.TokenMeta{
			Address:   address.Hex(),
			Symbol:    symbol,
			Decimals:  decimals,
			Streaming: true,
		},
		logger:     logger,
		accounts:   make(map[common.Address]streamAccount),
		flows:      make(map[flowKey]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
		receivers:  make(map[common.Address]FlowReceiver),
	}
	world.Register(s)
	return s
}

func (s *Streaming) Address() common.Address { return s.address }

func (s *Streaming) Meta() model.TokenMeta { return s.meta }

func (s *Streaming) TotalSupply() *uint256.Int { return s.supply.Clone() }

// RegisterReceiver subscribes an account to callbacks for streams into it.
func (s *Streaming) RegisterReceiver(account common.Address, r FlowReceiver) {
	s.receivers[account] = r
}

// BalanceOf returns the real-time balance at the current block timestamp.
// An overdrawn sender reads as zero.
func (s *Streaming) BalanceOf(account common.Address) *uint256.Int {
	return s.BalanceAt(account, s.world.Now())
}

// BalanceAt returns the balance an account will have at timestamp t, assuming
// no further changes.
func (s *Streaming) BalanceAt(account common.Address, t uint64) *uint256.Int {
	b := s.realtime(account, t)
	if b.Sign() < 0 {
		return new(uint256.Int)
	}
	return b
}

// NetFlow returns the account's aggregate rate, negative for net senders.
func (s *Streaming) NetFlow(account common.Address) *big.Int {
	acc := s.accounts[account]
	out := absRate(&acc.netFlow).ToBig()
	if acc.netFlow.Sign() < 0 {
		out.Neg(out)
	}
	return out
}

// Flow returns the rate of the stream from sender to receiver.
func (s *Streaming) Flow(sender, receiver common.Address) *uint256.Int {
	rate := s.flows[flowKey{sender, receiver}]
	return rate.Clone()
}

func (s *Streaming) realtime(account common.Address, t uint64) *uint256.Int {
	acc := s.accounts[account]
	b := acc.settled.Clone()
	if acc.netFlow.IsZero() || t <= acc.updatedAt {
		return b
	}
	delta := new(uint256.Int).Mul(absRate(&acc.netFlow), uint256.NewInt(t-acc.updatedAt))
	if acc.netFlow.Sign() > 0 {
		return b.Add(b, delta)
	}
	return b.Sub(b, delta)
}

func (s *Streaming) settle(account common.Address, t uint64) streamAccount {
	acc := s.accounts[account]
	acc.settled = *s.realtime(account, t)
	acc.updatedAt = t
	s.accounts[account] = acc
	return acc
}

// Mint credits new tokens to an account.
func (s *Streaming) Mint(to common.Address, amount *uint256.Int) {
	acc := s.settle(to, s.world.Now())
	acc.settled.Add(&acc.settled, amount)
	s.accounts[to] = acc
	s.supply.Add(&s.supply, amount)
}

func (s *Streaming) Approve(owner, spender common.Address, amount *uint256.Int) {
	s.allowances[allowanceKey{owner, spender}] = *amount
}

func (s *Streaming) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := s.move(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Streaming) TransferFrom(_ context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	if err := spendAllowance(s.allowances, from, spender, amount); err != nil {
		return false, err
	}
	if err := s.move(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Streaming) move(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	now := s.world.Now()
	src := s.settle(from, now)
	if src.settled.Sign() < 0 || src.settled.Lt(amount) {
		return errorsmod.Wrapf(ErrInsufficientBalance, "%s has %s, needs %s", from.Hex(), s.BalanceAt(from, now).Dec(), amount.Dec())
	}
	src.settled.Sub(&src.settled, amount)
	s.accounts[from] = src
	dst := s.settle(to, now)
	dst.settled.Add(&dst.settled, amount)
	s.accounts[to] = dst
	return nil
}

// CreateFlow opens a stream from sender to receiver.
func (s *Streaming) CreateFlow(ctx context.Context, sender, receiver common.Address, rate *uint256.Int) error {
	if !s.Flow(sender, receiver).IsZero() {
		return errorsmod.Wrapf(ErrFlowExists, "%s -> %s", sender.Hex(), receiver.Hex())
	}
	if rate == nil || rate.IsZero() {
		return errorsmod.Wrap(ErrInvalidFlowRate, "0")
	}
	return s.SetFlow(ctx, sender, receiver, rate)
}

// UpdateFlow changes the rate of an existing stream.
func (s *Streaming) UpdateFlow(ctx context.Context, sender, receiver common.Address, rate *uint256.Int) error {
	if s.Flow(sender, receiver).IsZero() {
		return errorsmod.Wrapf(ErrFlowNotFound, "%s -> %s", sender.Hex(), receiver.Hex())
	}
	if rate == nil || rate.IsZero() {
		return errorsmod.Wrap(ErrInvalidFlowRate, "0")
	}
	return s.SetFlow(ctx, sender, receiver, rate)
}

// DeleteFlow closes a stream.
func (s *Streaming) DeleteFlow(ctx context.Context, sender, receiver common.Address) error {
	if s.Flow(sender, receiver).IsZero() {
		return errorsmod.Wrapf(ErrFlowNotFound, "%s -> %s", sender.Hex(), receiver.Hex())
	}
	return s.SetFlow(ctx, sender, receiver, new(uint256.Int))
}

// SetFlow sets the stream rate from sender to receiver, zero deleting it. Both
// accounts are settled at the current timestamp first, and a registered
// receiver is called back before the transaction commits. A nil rate is zero.
func (s *Streaming) SetFlow(ctx context.Context, sender, receiver common.Address, rate *uint256.Int) error {
	if rate == nil {
		rate = new(uint256.Int)
	}
	rate = rate.Clone()
	return s.world.Atomic(ctx, "setFlow", func(ctx context.Context) error {
		if rate.Gt(maxFlowRate) {
			return errorsmod.Wrapf(ErrInvalidFlowRate, "%s above %s", rate.Dec(), maxFlowRate.Dec())
		}
		if sender == receiver {
			return ErrSelfFlow
		}
		if receiver == (common.Address{}) {
			return ErrZeroAddress
		}
		key := flowKey{sender, receiver}
		old := s.flows[key]
		if old.Eq(rate) {
			return nil
		}

		now := s.world.Now()
		src := s.settle(sender, now)
		if old.IsZero() && (src.settled.Sign() <= 0) {
			return errorsmod.Wrapf(ErrInsufficientBalance, "%s cannot open a stream with no balance", sender.Hex())
		}
		dst := s.settle(receiver, now)

		if err := addRate(&src.netFlow, new(uint256.Int).Sub(&old, rate)); err != nil {
			return err
		}
		if err := addRate(&dst.netFlow, new(uint256.Int).Sub(rate, &old)); err != nil {
			return err
		}
		s.accounts[sender] = src
		s.accounts[receiver] = dst
		if rate.IsZero() {
			delete(s.flows, key)
		} else {
			s.flows[key] = *rate
		}

		if err := s.world.Emit(ctx, s.address, model.FlowUpdatedEventData{
			Token:    s.address.Hex(),
			Sender:   sender.Hex(),
			Receiver: receiver.Hex(),
			FlowRate: rate.Dec(),
		}); err != nil {
			return err
		}
		s.logger.Debug("flow updated",
			zap.String("token", s.meta.Symbol),
			zap.String("sender", sender.Hex()),
			zap.String("receiver", receiver.Hex()),
			zap.String("old_rate", old.Dec()),
			zap.String("new_rate", rate.Dec()),
		)

		if r, ok := s.receivers[receiver]; ok {
			update := FlowUpdate{
				Token:    s.address,
				Sender:   sender,
				Receiver: receiver,
				OldRate:  old.Clone(),
				NewRate:  rate.Clone(),
			}
			if err := r.OnFlowUpdated(ctx, update); err != nil {
				return errorsmod.Wrapf(err, "flow receiver %s", receiver.Hex())
			}
		}
		return nil
	})
}

func (s *Streaming) Snapshot() any {
	return streamingState{
		accounts:   maps.Clone(s.accounts),
		flows:      maps.Clone(s.flows),
		allowances: maps.Clone(s.allowances),
		receivers:  maps.Clone(s.receivers),
		supply:     s.supply,
	}
}

func (s *Streaming) Restore(snapshot any) {
	st := snapshot.(streamingState)
	s.accounts = st.accounts
	s.flows = st.flows
	s.allowances = st.allowances
	s.receivers = st.receivers
	s.supply = st.supply
}

// addRate adds a two's complement delta to a net flow, which must stay
// within int96.
func addRate(net, delta *uint256.Int) error {
	sum := new(uint256.Int).Add(net, delta)
	if absRate(sum).Gt(maxFlowRate) {
		return errorsmod.Wrapf(ErrInvalidFlowRate, "net flow overflow %s + %s", signedDec(net), signedDec(delta))
	}
	net.Set(sum)
	return nil
}

func absRate(r *uint256.Int) *uint256.Int {
	if r.Sign() < 0 {
		return new(uint256.Int).Neg(r)
	}
	return r.Clone()
}

func signedDec(r *uint256.Int) string {
	if r.Sign() < 0 {
		return "-" + absRate(r).Dec()
	}
	return r.Dec()
}
