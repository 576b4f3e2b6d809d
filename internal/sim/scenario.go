package sim

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
)

// Step kinds.
const (
	StepAdvance      = "advance"
	StepMine         = "mine"
	StepMintToken    = "mint-token"
	StepApprove      = "approve"
	StepCreatePair   = "create-pair"
	StepAddLiquidity = "add-liquidity"
	StepFlow         = "flow"
	StepBid          = "bid"
	StepExecute      = "execute"
	StepRetrieve     = "retrieve"
	StepBurn         = "burn"
	StepSync         = "sync"
	StepSkim         = "skim"
)

var stepKinds = map[string]struct{}{
	StepAdvance: {}, StepMine: {}, StepMintToken: {}, StepApprove: {},
	StepCreatePair: {}, StepAddLiquidity: {}, StepFlow: {}, StepBid: {},
	StepExecute: {}, StepRetrieve: {}, StepBurn: {}, StepSync: {}, StepSkim: {},
}

// TokenSpec declares a token of the scenario.
type TokenSpec struct {
	Symbol    string `mapstructure:"symbol"`
	Address   string `mapstructure:"address"`
	Decimals  uint8  `mapstructure:"decimals"`
	Streaming bool   `mapstructure:"streaming"`
}

// Step is one scenario action. Which fields apply depends on Kind.
type Step struct {
	Kind    string `mapstructure:"kind"`
	Seconds uint64 `mapstructure:"seconds"`
	Token   string `mapstructure:"token"`
	TokenB  string `mapstructure:"token-b"`
	Pair    string `mapstructure:"pair"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
	Amount  string `mapstructure:"amount"`
	AmountB string `mapstructure:"amount-b"`
	Rate    string `mapstructure:"rate"`
	Bid     string `mapstructure:"bid"`
	Swap    string `mapstructure:"swap"`
	MinOut  string `mapstructure:"min-out"`
	// DeadlineIn is relative to the step's timestamp; zero means no slack.
	DeadlineIn uint64 `mapstructure:"deadline-in"`
	// ExpectRevert marks a step that must fail; a non-empty value other than
	// "any" must appear in the error.
	ExpectRevert string `mapstructure:"expect-revert"`
}

// Scenario is a full simulation script.
type Scenario struct {
	// ID identifies the scenario content for checkpoint resumption.
	ID     string
	Start  uint64      `mapstructure:"start"`
	FeeTo  string      `mapstructure:"fee-to"`
	Tokens []TokenSpec `mapstructure:"tokens"`
	Steps  []Step      `mapstructure:"steps"`
}

// LoadScenario reads a YAML or JSON scenario file.
func LoadScenario(path string) (Scenario, error) {
	if path == "" {
		return Scenario{}, fmt.Errorf("scenario path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}

	s := Scenario{
		ID:    crypto.Keccak256Hash(raw).Hex(),
		Start: v.GetUint64("start"),
		FeeTo: v.GetString("fee-to"),
	}
	if err := v.UnmarshalKey("tokens", &s.Tokens); err != nil {
		return Scenario{}, fmt.Errorf("decode tokens: %w", err)
	}
	if err := v.UnmarshalKey("steps", &s.Steps); err != nil {
		return Scenario{}, fmt.Errorf("decode steps: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Validate checks token declarations and step kinds.
func (s Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}
	seen := make(map[string]struct{}, len(s.Tokens))
	for i, tok := range s.Tokens {
		symbol := strings.TrimSpace(tok.Symbol)
		if symbol == "" {
			return fmt.Errorf("token %d: symbol is required", i)
		}
		if _, ok := seen[symbol]; ok {
			return fmt.Errorf("token %d: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = struct{}{}
	}
	for i, step := range s.Steps {
		if _, ok := stepKinds[step.Kind]; !ok {
			return fmt.Errorf("step %d: unknown kind %q", i, step.Kind)
		}
	}
	return nil
}
