// Package venue decides where a token trades (PancakeSwap pool or four.meme
// bonding curve) and builds quotes and swap calldata for that venue.
package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/bscutil"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/gateway"
)

type Router struct {
	caller bscutil.ContractCaller
	gw     *gateway.Gateway
	net    bscutil.Network
	abis   abiSet
}

func NewRouter(caller bscutil.ContractCaller, gw *gateway.Gateway, net bscutil.Network) (*Router, error) {
	if caller == nil {
		return nil, fmt.Errorf("venue: nil contract caller")
	}
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Router{caller: caller, gw: gw, net: net, abis: abis}, nil
}

func (r *Router) Network() bscutil.Network { return r.net }

// HasAMMPair reports whether a PancakeSwap pair exists between token and
// WBNB. Lookup failures count as "no pair" so the order falls back to the
// bonding curve.
func (r *Router) HasAMMPair(ctx context.Context, token common.Address) bool {
	out, err := r.call(ctx, r.net.Factory, r.abis.factory, "getPair", "timeout checking PancakeSwap pair", token, r.net.WBNB)
	if err != nil || len(out) == 0 {
		return false
	}
	pair, ok := out[0].(common.Address)
	return ok && pair != (common.Address{})
}

// TokenInfo is the subset of the helper's getTokenInfo result the bot uses.
type TokenInfo struct {
	Version        uint64
	TokenManager   common.Address
	LaunchTime     *big.Int
	LastPrice      *big.Int
	LiquidityAdded bool
}

func (r *Router) TokenInfo(ctx context.Context, token common.Address) (TokenInfo, error) {
	out, err := r.call(ctx, r.net.TokenManagerHelper, r.abis.helper, "getTokenInfo", "timeout reading four.meme token info", token)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("getTokenInfo(%s): %w", token.Hex(), err)
	}
	if len(out) != 12 {
		return TokenInfo{}, fmt.Errorf("getTokenInfo(%s): unexpected %d outputs", token.Hex(), len(out))
	}
	version, _ := out[0].(*big.Int)
	manager, _ := out[1].(common.Address)
	lastPrice, _ := out[3].(*big.Int)
	launch, _ := out[6].(*big.Int)
	liq, _ := out[11].(bool)
	info := TokenInfo{
		TokenManager:   manager,
		LaunchTime:     launch,
		LastPrice:      lastPrice,
		LiquidityAdded: liq,
	}
	if version != nil {
		info.Version = bscutil.Uint64Saturating(version)
	}
	return info, nil
}

// ResolveBondingCurve selects the token manager and interface version for a
// token listed on four.meme.
func (r *Router) ResolveBondingCurve(ctx context.Context, token common.Address) (Curve, error) {
	info, err := r.TokenInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.LaunchTime == nil || info.LaunchTime.Sign() == 0 {
		return nil, failure.Newf(failure.TokenNotFound, "token %s is not listed on four.meme", token.Hex())
	}
	if info.Version == 1 {
		m := info.TokenManager
		if m == (common.Address{}) {
			m = r.net.TokenManagerV1
		}
		return CurveV1{TokenManager: m}, nil
	}
	m := info.TokenManager
	if m == (common.Address{}) {
		m = r.net.TokenManagerV2
	}
	return CurveV2{TokenManager: m}, nil
}

// AMMPathFor returns the PancakeSwap path for this network.
func (r *Router) AMMPathFor() AMMPath {
	return AMMPath{Router: r.net.Router, WBNB: r.net.WBNB}
}

// QuoteAMM returns the last element of getAmountsOut(amountIn, path).
func (r *Router) QuoteAMM(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	out, err := r.call(ctx, r.net.Router, r.abis.router, "getAmountsOut", "timeout quoting PancakeSwap", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("getAmountsOut: unexpected result %v", out)
	}
	return amounts[len(amounts)-1], nil
}

// TryBuy simulates spending funds on the bonding curve and returns the
// estimated token amount.
func (r *Router) TryBuy(ctx context.Context, token common.Address, funds *big.Int) (*big.Int, error) {
	out, err := r.call(ctx, r.net.TokenManagerHelper, r.abis.helper, "tryBuy", "timeout simulating four.meme buy", token, new(big.Int), funds)
	if err != nil {
		return nil, fmt.Errorf("tryBuy: %w", err)
	}
	est, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("tryBuy: unexpected result %v", out)
	}
	return est, nil
}

// TrySell simulates selling amount on the bonding curve and returns the
// funds that would be received.
func (r *Router) TrySell(ctx context.Context, token common.Address, amount *big.Int) (*big.Int, error) {
	out, err := r.call(ctx, r.net.TokenManagerHelper, r.abis.helper, "trySell", "timeout simulating four.meme sell", token, amount)
	if err != nil {
		return nil, fmt.Errorf("trySell: %w", err)
	}
	funds, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("trySell: unexpected result %v", out)
	}
	return funds, nil
}

func (r *Router) call(ctx context.Context, to common.Address, contractABI abi.ABI, method, timeoutMsg string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := gateway.Do(ctx, r.gw, timeoutMsg, func(ctx context.Context) ([]byte, error) {
		return r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, err
	}
	return contractABI.Unpack(method, raw)
}
