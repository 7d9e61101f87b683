package venue

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const routerABIJSON = `[
  {"inputs":[
    {"internalType":"uint256","name":"amountIn","type":"uint256"},
    {"internalType":"address[]","name":"path","type":"address[]"}
  ],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[
    {"internalType":"uint256","name":"amountOutMin","type":"uint256"},
    {"internalType":"address[]","name":"path","type":"address[]"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"deadline","type":"uint256"}
  ],"name":"swapExactETHForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"internalType":"uint256","name":"amountIn","type":"uint256"},
    {"internalType":"uint256","name":"amountOutMin","type":"uint256"},
    {"internalType":"address[]","name":"path","type":"address[]"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"deadline","type":"uint256"}
  ],"name":"swapExactTokensForETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const factoryABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"tokenA","type":"address"},
    {"internalType":"address","name":"tokenB","type":"address"}
  ],"name":"getPair","outputs":[{"internalType":"address","name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const helperABIJSON = `[
  {"inputs":[{"internalType":"address","name":"token","type":"address"}],"name":"getTokenInfo","outputs":[
    {"internalType":"uint256","name":"version","type":"uint256"},
    {"internalType":"address","name":"tokenManager","type":"address"},
    {"internalType":"address","name":"quote","type":"address"},
    {"internalType":"uint256","name":"lastPrice","type":"uint256"},
    {"internalType":"uint256","name":"tradingFeeRate","type":"uint256"},
    {"internalType":"uint256","name":"minTradingFee","type":"uint256"},
    {"internalType":"uint256","name":"launchTime","type":"uint256"},
    {"internalType":"uint256","name":"offers","type":"uint256"},
    {"internalType":"uint256","name":"maxOffers","type":"uint256"},
    {"internalType":"uint256","name":"funds","type":"uint256"},
    {"internalType":"uint256","name":"maxFunds","type":"uint256"},
    {"internalType":"bool","name":"liquidityAdded","type":"bool"}
  ],"stateMutability":"view","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"},
    {"internalType":"uint256","name":"funds","type":"uint256"}
  ],"name":"tryBuy","outputs":[
    {"internalType":"address","name":"tokenManager","type":"address"},
    {"internalType":"address","name":"quote","type":"address"},
    {"internalType":"uint256","name":"estimatedAmount","type":"uint256"},
    {"internalType":"uint256","name":"estimatedCost","type":"uint256"},
    {"internalType":"uint256","name":"estimatedFee","type":"uint256"},
    {"internalType":"uint256","name":"amountMsgValue","type":"uint256"},
    {"internalType":"uint256","name":"amountApproval","type":"uint256"},
    {"internalType":"uint256","name":"amountFunds","type":"uint256"}
  ],"stateMutability":"view","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"trySell","outputs":[
    {"internalType":"address","name":"tokenManager","type":"address"},
    {"internalType":"address","name":"quote","type":"address"},
    {"internalType":"uint256","name":"funds","type":"uint256"},
    {"internalType":"uint256","name":"fee","type":"uint256"}
  ],"stateMutability":"view","type":"function"}
]`

const managerV1ABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"funds","type":"uint256"},
    {"internalType":"uint256","name":"minAmount","type":"uint256"}
  ],"name":"purchaseTokenAMAP","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"}
  ],"name":"saleToken","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const managerV2ABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"funds","type":"uint256"},
    {"internalType":"uint256","name":"minAmount","type":"uint256"}
  ],"name":"buyTokenAMAP","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"internalType":"uint256","name":"origin","type":"uint256"},
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"uint256","name":"amount","type":"uint256"},
    {"internalType":"uint256","name":"minFunds","type":"uint256"},
    {"internalType":"uint256","name":"feeRate","type":"uint256"},
    {"internalType":"address","name":"feeRecipient","type":"address"}
  ],"name":"sellToken","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

type abiSet struct {
	router    abi.ABI
	factory   abi.ABI
	helper    abi.ABI
	managerV1 abi.ABI
	managerV2 abi.ABI
}

func parseABIs() (abiSet, error) {
	var (
		set abiSet
		err error
	)
	parse := func(name, js string, dst *abi.ABI) {
		if err != nil {
			return
		}
		var parsed abi.ABI
		parsed, err = abi.JSON(strings.NewReader(js))
		if err != nil {
			err = fmt.Errorf("parse %s ABI: %w", name, err)
			return
		}
		*dst = parsed
	}
	parse("router", routerABIJSON, &set.router)
	parse("factory", factoryABIJSON, &set.factory)
	parse("token manager helper", helperABIJSON, &set.helper)
	parse("token manager v1", managerV1ABIJSON, &set.managerV1)
	parse("token manager v2", managerV2ABIJSON, &set.managerV2)
	return set, err
}
