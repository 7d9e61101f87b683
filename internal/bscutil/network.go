package bscutil

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network is the fixed contract address set for one chain profile.
type Network struct {
	Name    string
	ChainID int64

	WBNB    common.Address
	Router  common.Address
	Factory common.Address

	// four.meme bonding-curve contracts.
	TokenManagerHelper common.Address
	TokenManagerV1     common.Address
	TokenManagerV2     common.Address
}

const (
	Mainnet = "MAINNET"
	Testnet = "TESTNET"
)

var networks = map[string]Network{
	Mainnet: {
		Name:               Mainnet,
		ChainID:            56,
		WBNB:               common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
		Router:             common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"),
		Factory:            common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"),
		TokenManagerHelper: common.HexToAddress("0xF251F83e40a78868FcfA3FA4599Dad6494E46034"),
		TokenManagerV1:     common.HexToAddress("0xEC4549caDcE5DA21Df6E6422d448034B5233bFbC"),
		TokenManagerV2:     common.HexToAddress("0x5c952063c7fc8610FFDB798152D69F0B9550762b"),
	},
	Testnet: {
		Name:               Testnet,
		ChainID:            97,
		WBNB:               common.HexToAddress("0xae13d989daC2f0dEbFf460aC112a837C89BAa7cd"),
		Router:             common.HexToAddress("0xD99D1c33F9fC3444f8101754aBC46c52416550D1"),
		Factory:            common.HexToAddress("0x6725F303b657a9451d8BA641348b6761A6CC7a17"),
		TokenManagerHelper: common.HexToAddress("0xF251F83e40a78868FcfA3FA4599Dad6494E46034"),
		TokenManagerV1:     common.HexToAddress("0xEC4549caDcE5DA21Df6E6422d448034B5233bFbC"),
		TokenManagerV2:     common.HexToAddress("0x5c952063c7fc8610FFDB798152D69F0B9550762b"),
	},
}

func NetworkByName(name string) (Network, error) {
	n, ok := networks[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (want %s or %s)", name, Mainnet, Testnet)
	}
	return n, nil
}

func ValidateRPCURL(rpcURL string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return fmt.Errorf("BOT_RPC_URL required (set it in .env)")
	}
	if !strings.HasPrefix(rpcURL, "wss") && !strings.HasPrefix(rpcURL, "ws") && !strings.HasPrefix(rpcURL, "http") {
		return fmt.Errorf("BSC RPC URL must be ws(s)://... or http(s)://..., got %q", rpcURL)
	}
	if strings.Contains(rpcURL, "YOUR_KEY") {
		return fmt.Errorf("BSC RPC URL still contains placeholder YOUR_KEY")
	}
	return nil
}
