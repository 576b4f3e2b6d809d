package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"flowswap/internal/events"
	"flowswap/internal/model"
)

const scenarioYAML = `
start: 5000
fee-to: treasury
tokens:
  - symbol: A
    address: "0x1000000000000000000000000000000000000000"
    decimals: 18
  - symbol: S
    decimals: 6
    streaming: true
steps:
  - kind: mint-token
    token: A
    to: lp
    amount: "5e18"
  - kind: create-pair
    pair: A/S
  - kind: flow
    token: S
    from: carol
    pair: A/S
    rate: 100
    expect-revert: no balance
  - kind: bid
    pair: A/S
    token: A
    from: alice
    bid: "3"
    swap: "1000"
    min-out: "0"
    deadline-in: 30
    token-b: S
    amount-b: "7"
`

func eventName(t *testing.T, record model.LogRecord) string {
	t.Helper()
	parsed, err := events.ABI()
	require.NoError(t, err)
	event, err := parsed.EventByID(common.HexToHash(record.Topic0()))
	require.NoError(t, err)
	return event.Name
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)

	require.Equal(t, uint64(5000), sc.Start)
	require.Equal(t, "treasury", sc.FeeTo)
	require.Len(t, sc.ID, 66)
	require.Equal(t, []TokenSpec{
		{Symbol: "A", Address: "0x1000000000000000000000000000000000000000", Decimals: 18},
		{Symbol: "S", Decimals: 6, Streaming: true},
	}, sc.Tokens)

	require.Len(t, sc.Steps, 4)
	require.Equal(t, Step{Kind: StepMintToken, Token: "A", To: "lp", Amount: "5e18"}, sc.Steps[0])
	require.Equal(t, "100", sc.Steps[2].Rate)
	require.Equal(t, "no balance", sc.Steps[2].ExpectRevert)

	bid := sc.Steps[3]
	require.Equal(t, "3", bid.Bid)
	require.Equal(t, "1000", bid.Swap)
	require.Equal(t, "0", bid.MinOut)
	require.Equal(t, uint64(30), bid.DeadlineIn)
	require.Equal(t, "S", bid.TokenB)
	require.Equal(t, "7", bid.AmountB)
}

func TestLoadScenarioIDTracksContent(t *testing.T) {
	a, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	b, err := LoadScenario(writeScenario(t, scenarioYAML+"  - kind: sync\n    pair: A/S\n"))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestLoadScenarioErrors(t *testing.T) {
	_, err := LoadScenario("")
	require.ErrorContains(t, err, "scenario path is required")

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read scenario")

	_, err = LoadScenario(writeScenario(t, "steps:\n  - kind: teleport\n"))
	require.ErrorContains(t, err, `unknown kind "teleport"`)

	_, err = LoadScenario(writeScenario(t, "tokens:\n  - symbol: A\n  - symbol: A\nsteps:\n  - kind: mine\n"))
	require.ErrorContains(t, err, "duplicate symbol A")

	_, err = LoadScenario(writeScenario(t, "tokens: []\n"))
	require.ErrorContains(t, err, "no steps")
}

func TestParseAccount(t *testing.T) {
	addr, err := ParseAccount("0x00000000000000000000000000000000000000Aa")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xaa"), addr)

	alice, err := ParseAccount("alice")
	require.NoError(t, err)
	again, err := ParseAccount(" Alice ")
	require.NoError(t, err)
	require.Equal(t, alice, again)

	bob, err := ParseAccount("bob")
	require.NoError(t, err)
	require.NotEqual(t, alice, bob)

	_, err = ParseAccount("0x1234")
	require.ErrorContains(t, err, "invalid address")
	_, err = ParseAccount("  ")
	require.ErrorContains(t, err, "empty account")
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"":       "0",
		"42":     "42",
		"5e18":   "5000000000000000000",
		"997E15": "997000000000000000",
		"0e90":   "",
		"MAX":    "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		if want == "" {
			require.Error(t, err, input)
			continue
		}
		require.NoError(t, err, input)
		require.Equal(t, want, got.Dec(), input)
	}

	_, err := ParseAmount("1e77")
	require.NoError(t, err)
	_, err = ParseAmount("2e77")
	require.ErrorContains(t, err, "overflows")
	_, err = ParseAmount("-1")
	require.ErrorContains(t, err, "invalid amount")
	_, err = ParseAmount("1e-3")
	require.ErrorContains(t, err, "exponent")
}

func TestParsePair(t *testing.T) {
	a, b, err := ParsePair("WETH / USDC")
	require.NoError(t, err)
	require.Equal(t, "WETH", a)
	require.Equal(t, "USDC", b)

	for _, bad := range []string{"WETH", "A/B/C", "/B", "A/"} {
		_, _, err := ParsePair(bad)
		require.Error(t, err, bad)
	}
}
