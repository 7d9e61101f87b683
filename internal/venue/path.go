package venue

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/failure"
)

// SwapDeadline is how long a PancakeSwap swap stays valid after submission.
const SwapDeadline = 20 * time.Minute

// Path is where one order executes. It is one of AMMPath, CurveV1 or CurveV2.
type Path interface {
	// Spender is the contract that pulls tokens on a sell.
	Spender() common.Address
	String() string
	isPath()
}

// Curve is a four.meme bonding-curve path: CurveV1 or CurveV2.
type Curve interface {
	Path
	Manager() common.Address
}

type AMMPath struct {
	Router common.Address
	WBNB   common.Address
}

// CurveV1 uses purchaseTokenAMAP/saleToken.
type CurveV1 struct {
	TokenManager common.Address
}

// CurveV2 uses buyTokenAMAP/sellToken with fee routing parameters.
type CurveV2 struct {
	TokenManager common.Address
}

func (p AMMPath) Spender() common.Address { return p.Router }
func (p AMMPath) String() string          { return "pancakeswap" }
func (AMMPath) isPath()                   {}

func (c CurveV1) Spender() common.Address { return c.TokenManager }
func (c CurveV1) Manager() common.Address { return c.TokenManager }
func (c CurveV1) String() string          { return "fourmeme-v1" }
func (CurveV1) isPath()                   {}

func (c CurveV2) Spender() common.Address { return c.TokenManager }
func (c CurveV2) Manager() common.Address { return c.TokenManager }
func (c CurveV2) String() string          { return "fourmeme-v2" }
func (CurveV2) isPath()                   {}

// Call is a transaction ready for signing.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// QuoteBuy returns the token amount expected for spending funds (wei).
func (r *Router) QuoteBuy(ctx context.Context, p Path, token common.Address, funds *big.Int) (*big.Int, error) {
	switch p := p.(type) {
	case AMMPath:
		q, err := r.QuoteAMM(ctx, funds, []common.Address{p.WBNB, token})
		if err != nil {
			return nil, err
		}
		if q.Sign() == 0 {
			return nil, failure.Newf(failure.TransactionFailed, "PancakeSwap quoted zero tokens for %s", token.Hex())
		}
		return q, nil
	case CurveV1, CurveV2:
		q, err := r.TryBuy(ctx, token, funds)
		if err != nil {
			return nil, err
		}
		if q.Sign() == 0 {
			return nil, failure.Newf(failure.TokenNotFound, "four.meme estimates zero tokens for %s", token.Hex())
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown venue path %T", p)
	}
}

// QuoteSell returns the BNB (wei) expected for selling amount tokens.
func (r *Router) QuoteSell(ctx context.Context, p Path, token common.Address, amount *big.Int) (*big.Int, error) {
	switch p := p.(type) {
	case AMMPath:
		q, err := r.QuoteAMM(ctx, amount, []common.Address{token, p.WBNB})
		if err != nil {
			return nil, err
		}
		if q.Sign() == 0 {
			return nil, failure.Newf(failure.TransactionFailed, "PancakeSwap quoted zero BNB for %s", token.Hex())
		}
		return q, nil
	case CurveV1, CurveV2:
		q, err := r.TrySell(ctx, token, amount)
		if err != nil {
			return nil, err
		}
		if q.Sign() == 0 {
			return nil, failure.Newf(failure.TokenNotFound, "four.meme estimates zero funds for %s", token.Hex())
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown venue path %T", p)
	}
}

// BuyCall builds the purchase transaction. deadline only applies to the AMM.
func (r *Router) BuyCall(p Path, token, to common.Address, funds, minOut *big.Int, deadline time.Time) (Call, error) {
	var (
		target common.Address
		data   []byte
		err    error
	)
	switch p := p.(type) {
	case AMMPath:
		target = p.Router
		data, err = r.abis.router.Pack("swapExactETHForTokens", minOut, []common.Address{p.WBNB, token}, to, big.NewInt(deadline.Unix()))
	case CurveV1:
		target = p.TokenManager
		data, err = r.abis.managerV1.Pack("purchaseTokenAMAP", token, funds, minOut)
	case CurveV2:
		target = p.TokenManager
		data, err = r.abis.managerV2.Pack("buyTokenAMAP", token, funds, minOut)
	default:
		return Call{}, fmt.Errorf("unknown venue path %T", p)
	}
	if err != nil {
		return Call{}, fmt.Errorf("pack buy for %s: %w", p, err)
	}
	return Call{To: target, Data: data, Value: new(big.Int).Set(funds)}, nil
}

// SellCall builds the sale transaction. V1 token managers take no minimum
// output, so minOut is only enforced on the AMM and V2.
func (r *Router) SellCall(p Path, token, to common.Address, amount, minOut *big.Int, deadline time.Time) (Call, error) {
	var (
		target common.Address
		data   []byte
		err    error
	)
	switch p := p.(type) {
	case AMMPath:
		target = p.Router
		data, err = r.abis.router.Pack("swapExactTokensForETH", amount, minOut, []common.Address{token, p.WBNB}, to, big.NewInt(deadline.Unix()))
	case CurveV1:
		target = p.TokenManager
		data, err = r.abis.managerV1.Pack("saleToken", token, amount)
	case CurveV2:
		target = p.TokenManager
		data, err = r.abis.managerV2.Pack("sellToken", new(big.Int), token, amount, minOut, new(big.Int), common.Address{})
	default:
		return Call{}, fmt.Errorf("unknown venue path %T", p)
	}
	if err != nil {
		return Call{}, fmt.Errorf("pack sell for %s: %w", p, err)
	}
	return Call{To: target, Data: data, Value: new(big.Int)}, nil
}
