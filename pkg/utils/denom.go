package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var units = []struct {
	suffix string
	wei    int64
}{
	// "gwei" must be tried before "wei"
	{"ether", params.Ether},
	{"gwei", params.GWei},
	{"wei", params.Wei},
}

// ParseEtherAmount parses amounts such as "150000wei", "1.5gwei" or "0.01ether" into wei.
// Fractions must resolve to a whole number of wei.
func ParseEtherAmount(amount string) (*big.Int, error) {
	s := strings.ToLower(strings.TrimSpace(amount))

	var unit int64
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(s[:len(s)-len(u.suffix)])
			unit = u.wei
			break
		}
	}
	if unit == 0 {
		return nil, fmt.Errorf("amount(%s) has invalid unit (acceptable: wei/gwei/ether)", amount)
	}
	if s == "" || strings.Trim(s, "0123456789.") != "" || strings.Count(s, ".") > 1 {
		return nil, fmt.Errorf("amount(%s) has invalid quantity", amount)
	}

	q, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("amount(%s) has invalid quantity", amount)
	}
	q.Mul(q, new(big.Rat).SetInt64(unit))
	if !q.IsInt() {
		return nil, fmt.Errorf("amount(%s) is not a whole number of wei", amount)
	}
	return new(big.Int).Set(q.Num()), nil
}

// FormatGwei renders wei as gwei with up to 9 decimals, trailing zeros trimmed.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0gwei"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.GWei))
	s := r.FloatString(9)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s + "gwei"
}
