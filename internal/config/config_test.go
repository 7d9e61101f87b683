package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/scheduler"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_RPC_URL", "https://bsc-dataseed.binance.org/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network().ChainID != 56 {
		t.Fatalf("default network chain id %d", cfg.Network().ChainID)
	}
	if cfg.RPCTimeout() != 7*time.Second {
		t.Fatalf("timeout %s", cfg.RPCTimeout())
	}
	if cfg.Mode() != scheduler.Sequential {
		t.Fatalf("mode %s", cfg.Mode())
	}
	if cfg.Trading.MaxRetries != 3 || cfg.Trading.CommandMaxRetries != 2 {
		t.Fatalf("retries %d/%d", cfg.Trading.MaxRetries, cfg.Trading.CommandMaxRetries)
	}
	if cfg.SlippagePct().String() != "10" {
		t.Fatalf("slippage %s", cfg.SlippagePct())
	}

	s := cfg.SchedulerSettings(common.HexToAddress("0x01"))
	if s.MaxRetries != 2 || s.WaitFrom != 5 || s.WaitTo != 15 {
		t.Fatalf("scheduler settings %+v", s)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOT_NETWORK", "testnet")
	t.Setenv("BOT_RUN_MODE", "concurrent")
	t.Setenv("BOT_SLIPPAGE", "2.5")
	t.Setenv("BOT_RPC_TIMEOUT_MS", "1500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network().ChainID != 97 {
		t.Fatalf("chain id %d, want 97", cfg.Network().ChainID)
	}
	if cfg.Mode() != scheduler.Concurrent {
		t.Fatalf("mode %s", cfg.Mode())
	}
	if cfg.SlippagePct().String() != "2.5" {
		t.Fatalf("slippage %s", cfg.SlippagePct())
	}
	if cfg.RPCTimeout() != 1500*time.Millisecond {
		t.Fatalf("timeout %s", cfg.RPCTimeout())
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		var c Config
		c.Chain.Network = "MAINNET"
		c.Chain.RPCTimeoutMs = 7000
		c.Trading.Slippage = "10"
		c.Trading.RunMode = "sequential"
		c.Trading.MaxRetries = 3
		c.Trading.CommandMaxRetries = 2
		c.Trading.WaitFrom = 1
		c.Trading.WaitTo = 5
		return &c
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	cases := map[string]func(c *Config){
		"network":  func(c *Config) { c.Chain.Network = "GOERLI" },
		"timeout":  func(c *Config) { c.Chain.RPCTimeoutMs = 0 },
		"mode":     func(c *Config) { c.Trading.RunMode = "parallel" },
		"slippage": func(c *Config) { c.Trading.Slippage = "101" },
		"negative": func(c *Config) { c.Trading.Slippage = "-1" },
		"retries":  func(c *Config) { c.Trading.MaxRetries = 0 },
		"wait":     func(c *Config) { c.Trading.WaitFrom = 9 },
		"token":    func(c *Config) { c.Trading.TokenAddress = "not-an-address" },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		err := c.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if strings.TrimSpace(err.Error()) == "" {
			t.Fatalf("%s: empty error", name)
		}
	}
}
