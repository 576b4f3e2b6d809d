package sim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ParseAccount resolves a hex address or derives a stable address from a name.
func ParseAccount(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("empty account")
	}
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		if !common.IsHexAddress(input) {
			return common.Address{}, fmt.Errorf("invalid address: %s", input)
		}
		return common.HexToAddress(input), nil
	}
	return common.BytesToAddress(crypto.Keccak256([]byte("flowswap/account/" + strings.ToLower(input)))[12:]), nil
}

// ParseAmount parses a base-10 integer, an integer with a decimal exponent
// such as "5e18", or "max".
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return new(uint256.Int), nil
	}
	if strings.EqualFold(input, "max") {
		return new(uint256.Int).SetAllOne(), nil
	}

	mantissa, exponent := input, uint64(0)
	if i := strings.IndexAny(input, "eE"); i >= 0 {
		exp, err := strconv.ParseUint(input[i+1:], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid amount exponent: %s", input)
		}
		mantissa, exponent = input[:i], exp
	}

	value, err := uint256.FromDecimal(mantissa)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %s", input)
	}
	if exponent > 77 {
		return nil, fmt.Errorf("amount overflows uint256: %s", input)
	}
	if exponent > 0 {
		scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(exponent))
		if _, overflow := value.MulOverflow(value, scale); overflow {
			return nil, fmt.Errorf("amount overflows uint256: %s", input)
		}
	}
	return value, nil
}

// ParsePair splits "A/B" into token symbols.
func ParsePair(input string) (string, string, error) {
	parts := strings.Split(input, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid pair %q, want A/B", input)
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" {
		return "", "", fmt.Errorf("invalid pair %q, want A/B", input)
	}
	return a, b, nil
}
