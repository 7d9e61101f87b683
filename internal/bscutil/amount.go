package bscutil

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of BNB. four.meme and most BEP20 tokens use
// the same precision, so token amounts are scaled the same way.
const NativeDecimals = 18

// PercentPrecision is how many fractional digits a percent-of-balance amount
// keeps after truncation.
const PercentPrecision = 9

func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", s)
	}
	return d, nil
}

// ToWei scales a whole-unit amount to base units, truncating extra digits.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(NativeDecimals).Truncate(0).BigInt()
}

func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals)
}

func FormatWei(wei *big.Int) string {
	return FromWei(wei).String()
}

// PercentOfBalance returns pct% of balance in whole units, truncated to
// PercentPrecision fractional digits.
func PercentOfBalance(balance *big.Int, pct decimal.Decimal) decimal.Decimal {
	if balance == nil || balance.Sign() <= 0 || !pct.IsPositive() {
		return decimal.Zero
	}
	return FromWei(balance).Mul(pct).Div(decimal.NewFromInt(100)).Truncate(PercentPrecision)
}

// MinOut applies a slippage percentage to a quote with per-mille granularity:
// quote * ((100 - slippage) * 10) / 1000, floored. Slippage outside [0,100] is
// clamped.
func MinOut(quote *big.Int, slippagePct decimal.Decimal) *big.Int {
	if quote == nil || quote.Sign() <= 0 {
		return new(big.Int)
	}
	hundred := decimal.NewFromInt(100)
	if slippagePct.IsNegative() {
		slippagePct = decimal.Zero
	}
	if slippagePct.GreaterThan(hundred) {
		slippagePct = hundred
	}
	keep := hundred.Sub(slippagePct).Mul(decimal.NewFromInt(10)).Truncate(0).BigInt()
	out := new(big.Int).Mul(quote, keep)
	return out.Quo(out, big.NewInt(1000))
}
