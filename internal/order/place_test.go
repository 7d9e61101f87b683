package order

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
)

func newTestPlacer(fc *fakeChain, v *fakeVenue) *Placer {
	return NewPlacer(fc, newTestPipeline(fc, v, &fakeApprover{}), gateway.New(time.Second), nil)
}

func ether(s string) *big.Int {
	d := decimal.RequireFromString(s).Shift(18)
	return d.BigInt()
}

func TestPlaceRejectsBadAmounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		balance *big.Int
		amount  string
		unit    account.Unit
	}{
		{"zero_balance", new(big.Int), "0.01", account.UnitValue},
		{"below_amount", ether("0.005"), "0.01", account.UnitValue},
		{"zero_amount", ether("1"), "0", account.UnitValue},
		{"percent_of_empty", new(big.Int), "50", account.UnitPercent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeChain{bnb: tc.balance}
			res := newTestPlacer(fc, &fakeVenue{hasPair: true, quote: big.NewInt(1)}).Place(context.Background(), Order{
				Signer:     testSigner(t),
				Side:       account.Buy,
				Token:      testToken,
				Amount:     decimal.RequireFromString(tc.amount),
				Unit:       tc.unit,
				Slippage:   decimal.NewFromInt(10),
				MaxRetries: 3,
			})
			kind, _, failed := res.Failure()
			if !failed || kind != failure.InvalidAmount {
				t.Fatalf("got kind %q failed=%v, want InvalidAmount", kind, failed)
			}
			if len(fc.sent) != 0 {
				t.Fatalf("invalid amount must not reach the chain")
			}
		})
	}
}

func TestPlacePercentSellUsesTokenBalance(t *testing.T) {
	t.Parallel()

	fc := &fakeChain{tokens: ether("200")}
	v := &fakeVenue{curve: nil, hasPair: true, quote: big.NewInt(1000)}
	res := newTestPlacer(fc, v).Place(context.Background(), Order{
		Signer:     testSigner(t),
		Side:       account.Sell,
		Token:      testToken,
		Amount:     decimal.NewFromInt(25),
		Unit:       account.UnitPercent,
		Slippage:   decimal.NewFromInt(10),
		MaxRetries: 3,
	})
	if !res.OK() {
		_, detail, _ := res.Failure()
		t.Fatalf("unexpected failure: %s", detail)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("got %d submissions, want 1", len(fc.sent))
	}
	fill, _ := res.Fill()
	if fill.Venue != "pancakeswap" {
		t.Fatalf("venue %s", fill.Venue)
	}
}

func TestPlaceMapsInsufficientFundsToInvalidAmount(t *testing.T) {
	t.Parallel()

	fc := &fakeChain{
		bnb:        ether("1"),
		submitErrs: []error{errors.New("insufficient funds for gas * price + value")},
	}
	res := newTestPlacer(fc, &fakeVenue{hasPair: true, quote: big.NewInt(1000)}).Place(context.Background(), Order{
		Signer:     testSigner(t),
		Side:       account.Buy,
		Token:      testToken,
		Amount:     decimal.RequireFromString("1"),
		Unit:       account.UnitValue,
		Slippage:   decimal.NewFromInt(10),
		MaxRetries: 3,
	})
	kind, _, failed := res.Failure()
	if !failed || kind != failure.InvalidAmount {
		t.Fatalf("got %q, want InvalidAmount", kind)
	}
	if len(fc.sent) != 1 {
		t.Fatalf("got %d submissions, want exactly 1", len(fc.sent))
	}
}

func TestPlaceSurfacesExhaustedRetries(t *testing.T) {
	t.Parallel()

	boom := errors.New("execution reverted")
	fc := &fakeChain{bnb: ether("1"), submitErrs: []error{boom, boom}}
	res := newTestPlacer(fc, &fakeVenue{hasPair: true, quote: big.NewInt(1000)}).Place(context.Background(), Order{
		Signer:     testSigner(t),
		Side:       account.Buy,
		Token:      testToken,
		Amount:     decimal.RequireFromString("0.1"),
		Unit:       account.UnitValue,
		Slippage:   decimal.NewFromInt(10),
		MaxRetries: 2,
	})
	kind, _, failed := res.Failure()
	if !failed || kind != failure.TransactionFailed {
		t.Fatalf("got %q, want TransactionFailed", kind)
	}
}

func TestResultIsExclusive(t *testing.T) {
	t.Parallel()

	ok := Succeeded(Fill{Nonce: 3})
	if _, _, failed := ok.Failure(); failed {
		t.Fatalf("success reported as failure")
	}
	bad := Failed("", "boom")
	if bad.OK() {
		t.Fatalf("failure reported as success")
	}
	if kind, _, _ := bad.Failure(); kind != failure.TransactionFailed {
		t.Fatalf("empty kind should default to TransactionFailed, got %q", kind)
	}
}
