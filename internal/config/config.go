// Package config loads bot settings from the environment, after reading an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/scheduler"
)

type Config struct {
	Chain struct {
		Network      string `envconfig:"BOT_NETWORK" default:"MAINNET"`
		RPCURL       string `envconfig:"BOT_RPC_URL"`
		RPCTimeoutMs int    `envconfig:"BOT_RPC_TIMEOUT_MS" default:"7000"`
	}

	Trading struct {
		TokenAddress      string `envconfig:"BOT_TOKEN_ADDRESS"`
		Slippage          string `envconfig:"BOT_SLIPPAGE" default:"10"`
		RunMode           string `envconfig:"BOT_RUN_MODE" default:"sequential"`
		MaxRetries        int    `envconfig:"BOT_MAX_RETRIES" default:"3"`
		CommandMaxRetries int    `envconfig:"BOT_COMMAND_MAX_RETRIES" default:"2"`
		WaitFrom          int    `envconfig:"BOT_WAIT_FROM" default:"5"`
		WaitTo            int    `envconfig:"BOT_WAIT_TO" default:"15"`
	}

	App struct {
		StorePath     string `envconfig:"BOT_STORE_PATH" default:"fourcake.json"`
		EventsFile    string `envconfig:"BOT_EVENTS_FILE"`
		HTTPAddr      string `envconfig:"BOT_HTTP_ADDR" default:"127.0.0.1:8787"`
		EncryptionKey string `envconfig:"ENCRYPTION_KEY"`
	}
}

// Load reads .env (a missing file is fine), then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that do not depend on a chain connection.
// BOT_RPC_URL is checked by the commands that dial.
func (c *Config) Validate() error {
	if _, err := bscutil.NetworkByName(c.Chain.Network); err != nil {
		return err
	}
	if c.Chain.RPCTimeoutMs <= 0 {
		return fmt.Errorf("BOT_RPC_TIMEOUT_MS must be > 0")
	}
	if _, err := scheduler.ParseMode(c.Trading.RunMode); err != nil {
		return err
	}
	s, err := decimal.NewFromString(c.Trading.Slippage)
	if err != nil {
		return fmt.Errorf("BOT_SLIPPAGE: %w", err)
	}
	if s.IsNegative() || s.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("BOT_SLIPPAGE must be within [0,100], got %s", s)
	}
	if c.Trading.MaxRetries < 1 || c.Trading.CommandMaxRetries < 1 {
		return fmt.Errorf("BOT_MAX_RETRIES and BOT_COMMAND_MAX_RETRIES must be >= 1")
	}
	if c.Trading.WaitFrom < 0 || c.Trading.WaitFrom > c.Trading.WaitTo {
		return fmt.Errorf("wait range [%d,%d] is invalid", c.Trading.WaitFrom, c.Trading.WaitTo)
	}
	if t := c.Trading.TokenAddress; t != "" && !common.IsHexAddress(t) {
		return fmt.Errorf("BOT_TOKEN_ADDRESS %q is not an address", t)
	}
	return nil
}

func (c *Config) Network() bscutil.Network {
	n, _ := bscutil.NetworkByName(c.Chain.Network)
	return n
}

func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Chain.RPCTimeoutMs) * time.Millisecond
}

func (c *Config) SlippagePct() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Trading.Slippage)
	return d
}

func (c *Config) Mode() scheduler.Mode {
	m, _ := scheduler.ParseMode(c.Trading.RunMode)
	return m
}

// SchedulerSettings returns the run-wide defaults for token, which may come
// from the store instead of the environment.
func (c *Config) SchedulerSettings(token common.Address) scheduler.Settings {
	return scheduler.Settings{
		Token:      token,
		Slippage:   c.SlippagePct(),
		WaitFrom:   c.Trading.WaitFrom,
		WaitTo:     c.Trading.WaitTo,
		MaxRetries: c.Trading.CommandMaxRetries,
	}
}
