package bscutil

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
var erc20AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]

// MaxUint256 is the allowance granted by approvals so repeated cycles do not
// need to approve again.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ContractCaller is the read side of an RPC client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func BalanceOfCalldata(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

func AllowanceCalldata(owner, spender common.Address) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20AllowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return data
}

func TokenBalance(ctx context.Context, c ContractCaller, token, owner common.Address) (*big.Int, error) {
	if (owner == common.Address{}) {
		return nil, fmt.Errorf("owner address missing")
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: BalanceOfCalldata(owner)}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", owner.Hex(), token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf returned empty result (is %s a token?)", token.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

func TokenAllowance(ctx context.Context, c ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: AllowanceCalldata(owner, spender)}, nil)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s): %w", owner.Hex(), spender.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("allowance returned empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

// Uint64Saturating clamps x into uint64. Max approvals do not fit, so they
// read as MaxUint64 in metrics and diagnostics.
func Uint64Saturating(x *big.Int) uint64 {
	if x == nil || x.Sign() <= 0 {
		return 0
	}
	if x.IsUint64() {
		return x.Uint64()
	}
	return math.MaxUint64
}
