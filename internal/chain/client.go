// Package chain wraps the BSC JSON-RPC client: reads for balances and nonces
// and signed transaction submission that waits for the receipt.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Signer is an account able to sign transactions.
type Signer struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) Signer {
	return Signer{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}
}

// Tx is an unsigned contract call with an explicit nonce.
type Tx struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Nonce uint64
}

// Submitter signs, sends and waits for a transaction. A reverted receipt is
// an error.
type Submitter interface {
	Submit(ctx context.Context, from Signer, tx Tx) (common.Hash, error)
}

// Reader is the read side used by the order pipeline.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var ErrWrongChain = errors.New("wrong chain")

type Client struct {
	*ethclient.Client
	chainID *big.Int
}

// Dial connects and checks that the endpoint serves the expected chain.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial BSC RPC: %w", err)
	}
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	if wantChainID != 0 && id.Int64() != wantChainID {
		ec.Close()
		return nil, fmt.Errorf("%w: RPC serves chain %s, want %d", ErrWrongChain, id, wantChainID)
	}
	return &Client{Client: ec, chainID: id}, nil
}

// DialWithBackoff retries Dial until it succeeds or ctx ends.
func DialWithBackoff(ctx context.Context, rpcURL string, wantChainID int64, logf func(string, ...any)) (*Client, error) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 15 * time.Second
	for {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := Dial(dialCtx, rpcURL, wantChainID)
		cancel()
		if err == nil {
			return c, nil
		}
		if errors.Is(err, ErrWrongChain) {
			return nil, err
		}
		if logf != nil {
			logf("[warn] %v (retrying in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) ChainIDValue() *big.Int { return new(big.Int).Set(c.chainID) }

// Submit signs tx with from's key, sends it and blocks until it is mined.
func (c *Client) Submit(ctx context.Context, from Signer, tx Tx) (common.Hash, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(from.Key, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(tx.Nonce)
	if tx.Value != nil && tx.Value.Sign() > 0 {
		opts.Value = new(big.Int).Set(tx.Value)
	}

	contract := bind.NewBoundContract(tx.To, abi.ABI{}, c.Client, c.Client, c.Client)
	sent, err := contract.RawTransact(opts, tx.Data)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := bind.WaitMined(ctx, c.Client, sent)
	if err != nil {
		return sent.Hash(), fmt.Errorf("wait for %s: %w", sent.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return sent.Hash(), fmt.Errorf("transaction %s reverted (block %s)", sent.Hash().Hex(), receipt.BlockNumber)
	}
	return sent.Hash(), nil
}
