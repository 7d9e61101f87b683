// Package allowance makes sure a spender may move an owner's tokens before a
// sell.
package allowance

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/chain"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
)

const approveABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"spender","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

type Manager struct {
	caller bscutil.ContractCaller
	sub    chain.Submitter
	gw     *gateway.Gateway
	erc20  abi.ABI
}

func NewManager(caller bscutil.ContractCaller, sub chain.Submitter, gw *gateway.Gateway) (*Manager, error) {
	parsed, err := abi.JSON(strings.NewReader(approveABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 ABI: %w", err)
	}
	return &Manager{caller: caller, sub: sub, gw: gw, erc20: parsed}, nil
}

// Result reports the nonce to use next. Approved is false only when an
// approval was needed and could not be sent; callers still go ahead with the
// swap and let its revert drive the retry.
type Result struct {
	Nonce    uint64
	Approved bool
	Sent     bool
	TxHash   common.Hash
	Message  string
}

// EnsureAllowance approves the maximum uint256 for spender when the current
// allowance is below needed. A sufficient allowance costs no transaction and
// leaves nonce unchanged.
func (m *Manager) EnsureAllowance(ctx context.Context, owner chain.Signer, token, spender common.Address, needed *big.Int, nonce uint64) Result {
	current, err := gateway.Do(ctx, m.gw, "timeout reading allowance", func(ctx context.Context) (*big.Int, error) {
		return bscutil.TokenAllowance(ctx, m.caller, token, owner.Address, spender)
	})
	if err != nil {
		return Result{Nonce: nonce, Message: fmt.Sprintf("read allowance: %v", err)}
	}
	if needed != nil && current.Cmp(needed) >= 0 {
		return Result{Nonce: nonce, Approved: true, Message: "allowance sufficient"}
	}

	data, err := m.erc20.Pack("approve", spender, bscutil.MaxUint256)
	if err != nil {
		return Result{Nonce: nonce, Message: fmt.Sprintf("pack approve: %v", err)}
	}
	hash, err := gateway.Do(ctx, m.gw, "timeout sending approval", func(ctx context.Context) (common.Hash, error) {
		return m.sub.Submit(ctx, owner, chain.Tx{To: token, Data: data, Nonce: nonce})
	})
	if err != nil {
		return Result{Nonce: nonce, Sent: true, Message: fmt.Sprintf("approve %s for %s failed: %v", token.Hex(), spender.Hex(), err)}
	}
	return Result{Nonce: nonce + 1, Approved: true, Sent: true, TxHash: hash, Message: "approved " + hash.Hex()}
}
