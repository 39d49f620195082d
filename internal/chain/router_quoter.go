package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

// spotDivisor sizes the near-spot reference trade relative to the real amount.
const spotDivisor = 1000

// contractCaller is the subset of ethclient.Client the quoter needs.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Token is an ERC-20 the quoter can price.
type Token struct {
	Address  common.Address
	Decimals int32
}

// RouterQuoter quotes swaps against Uniswap V2 style routers, one router per
// venue. Slippage is measured against a reference trade a thousandth the size.
type RouterQuoter struct {
	client  contractCaller
	abi     abi.ABI
	routers map[string]common.Address
	tokens  map[string]Token
	logger  *logrus.Logger
}

// NewRouterQuoter creates a quoter. Venue ids and token symbols are matched
// case-insensitively.
func NewRouterQuoter(client contractCaller, routers map[string]common.Address, tokens map[string]Token, logger *logrus.Logger) (*RouterQuoter, error) {
	if client == nil {
		return nil, errors.New("router quoter requires an rpc client")
	}
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router abi: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	q := &RouterQuoter{
		client:  client,
		abi:     parsed,
		routers: make(map[string]common.Address, len(routers)),
		tokens:  make(map[string]Token, len(tokens)),
		logger:  logger,
	}
	for venue, addr := range routers {
		q.routers[strings.ToLower(venue)] = addr
	}
	for symbol, token := range tokens {
		q.tokens[strings.ToUpper(symbol)] = token
	}
	return q, nil
}

// GetQuote prices amountIn of tokenIn on venueID's router.
func (q *RouterQuoter) GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, venueID string) (*models.VenueQuote, error) {
	router, ok := q.routers[strings.ToLower(venueID)]
	if !ok {
		return nil, fmt.Errorf("no router configured for venue %s", venueID)
	}
	in, ok := q.tokens[strings.ToUpper(tokenIn)]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", tokenIn)
	}
	out, ok := q.tokens[strings.ToUpper(tokenOut)]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", tokenOut)
	}
	if !amountIn.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", amountIn.String())
	}

	path := []common.Address{in.Address, out.Address}
	inWei := amountIn.Shift(in.Decimals).BigInt()
	outWei, err := q.amountOut(ctx, router, inWei, path)
	if err != nil {
		return nil, err
	}

	spotWei := new(big.Int).Quo(inWei, big.NewInt(spotDivisor))
	if spotWei.Sign() == 0 {
		spotWei = big.NewInt(1)
	}
	spotOutWei, err := q.amountOut(ctx, router, spotWei, path)
	if err != nil {
		return nil, err
	}

	outAmount := decimal.NewFromBigInt(outWei, -out.Decimals)
	execRate := outAmount.Div(amountIn)
	spotIn := decimal.NewFromBigInt(spotWei, -in.Decimals)
	spotRate := decimal.NewFromBigInt(spotOutWei, -out.Decimals).Div(spotIn)

	slippage := decimal.Zero
	if spotRate.IsPositive() {
		slippage = decimal.NewFromInt(1).Sub(execRate.Div(spotRate))
		if slippage.IsNegative() {
			slippage = decimal.Zero
		}
	}

	q.logger.WithFields(logrus.Fields{
		"venue":     venueID,
		"token_in":  tokenIn,
		"token_out": tokenOut,
		"amount_in": amountIn.String(),
		"out":       outAmount.String(),
		"slippage":  slippage.StringFixed(6),
	}).Debug("Router quote")

	return &models.VenueQuote{
		OutputAmount: outAmount,
		Slippage:     slippage,
		Liquidity:    impliedReserve(amountIn, slippage),
		Price:        execRate,
	}, nil
}

// impliedReserve inverts the constant-product price impact s = a/(r+a) to
// estimate the input-side reserve r.
func impliedReserve(amountIn, slippage decimal.Decimal) decimal.Decimal {
	if !slippage.IsPositive() {
		return amountIn.Mul(decimal.NewFromInt(spotDivisor))
	}
	return amountIn.Mul(decimal.NewFromInt(1).Sub(slippage)).Div(slippage)
}

func (q *RouterQuoter) amountOut(ctx context.Context, router common.Address, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := q.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getAmountsOut: %w", err)
	}
	raw, err := q.client.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}
	outs, err := q.abi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("failed to decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, errors.New("router returned a malformed amounts array")
	}
	return amounts[len(amounts)-1], nil
}
