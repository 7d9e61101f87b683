package main

import (
	"testing"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/config"
)

const (
	envToken  = "0x1111111111111111111111111111111111111111"
	acctToken = "0x2222222222222222222222222222222222222222"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trading.Slippage = "10"
	cfg.Trading.TokenAddress = envToken
	return cfg
}

func TestBuildOrderDefaultsFromAccount(t *testing.T) {
	t.Parallel()

	a := account.Account{ID: 3, Name: "a", Type: account.Sell, AmountIn: "50", Unit: account.UnitPercent, TokenAddress: acctToken, Slippage: "2.5"}
	o, err := buildOrder(testConfig(), a, "", "", false, "", 3)
	if err != nil {
		t.Fatalf("buildOrder: %v", err)
	}
	if o.Side != account.Sell || o.Unit != account.UnitPercent || o.Amount.String() != "50" {
		t.Fatalf("order %+v", o)
	}
	if o.Token.Hex() != acctToken || o.Slippage.String() != "2.5" || o.MaxRetries != 3 {
		t.Fatalf("token %s slippage %s retries %d", o.Token.Hex(), o.Slippage, o.MaxRetries)
	}
}

func TestBuildOrderFlagsOverride(t *testing.T) {
	t.Parallel()

	a := account.Account{ID: 3, Type: account.Sell, AmountIn: "50", Unit: account.UnitPercent}
	o, err := buildOrder(testConfig(), a, "buy", "0.2", false, "", 1)
	if err != nil {
		t.Fatalf("buildOrder: %v", err)
	}
	if o.Side != account.Buy || o.Unit != account.UnitValue || o.Amount.String() != "0.2" {
		t.Fatalf("order %+v", o)
	}
	if o.Token.Hex() != envToken || o.Slippage.String() != "10" {
		t.Fatalf("token %s slippage %s", o.Token.Hex(), o.Slippage)
	}
}

func TestBuildOrderRejects(t *testing.T) {
	t.Parallel()

	a := account.Account{ID: 1, AmountIn: "1"}
	if _, err := buildOrder(testConfig(), a, "hold", "", false, "", 1); err == nil {
		t.Fatalf("expected side error")
	}
	if _, err := buildOrder(testConfig(), a, "", "", false, "0xnope", 1); err == nil {
		t.Fatalf("expected token error")
	}
	if _, err := buildOrder(&config.Config{}, a, "", "", false, "", 1); err == nil {
		t.Fatalf("expected missing token error")
	}
}
