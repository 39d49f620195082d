// Package chain reads the fee market of an EVM chain over JSON-RPC.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// defaultTip is used when the node cannot suggest a priority fee.
var defaultTip = big.NewInt(1_000_000_000)

var weiPerGwei = big.NewFloat(1e9)

// headerReader is the subset of ethclient.Client the fee source needs.
type headerReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Dial connects to rpcURL. The client is shared by FeeSource and RouterQuoter.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return ec, nil
}

// FeeSource serves block and fee data from an RPC node.
type FeeSource struct {
	client headerReader
	logger *logrus.Logger
}

// NewFeeSource wraps an existing client.
func NewFeeSource(client headerReader, logger *logrus.Logger) *FeeSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &FeeSource{client: client, logger: logger}
}

// GetLatestBlock returns the head block.
func (s *FeeSource) GetLatestBlock(ctx context.Context) (models.BlockInfo, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return models.BlockInfo{}, fmt.Errorf("failed to fetch head block: %w", err)
	}
	if header == nil || header.Number == nil {
		return models.BlockInfo{}, fmt.Errorf("node returned an empty header")
	}
	return models.BlockInfo{
		Number:    header.Number.Uint64(),
		GasUsed:   header.GasUsed,
		GasLimit:  header.GasLimit,
		Timestamp: time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

// GetFeeData returns the head base fee and the suggested tip in gwei. Chains
// without a base fee report the suggested legacy gas price instead.
func (s *FeeSource) GetFeeData(ctx context.Context) (models.FeeData, error) {
	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		s.logger.WithError(err).Debug("Tip suggestion unavailable, using 1 gwei")
		tip = defaultTip
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err == nil && header != nil && header.BaseFee != nil {
		return models.FeeData{BaseFee: WeiToGwei(header.BaseFee), PriorityFee: WeiToGwei(tip)}, nil
	}

	price, perr := s.client.SuggestGasPrice(ctx)
	if perr != nil {
		if err != nil {
			return models.FeeData{}, fmt.Errorf("failed to read fee market: %w", err)
		}
		return models.FeeData{}, fmt.Errorf("failed to suggest gas price: %w", perr)
	}
	return models.FeeData{BaseFee: WeiToGwei(price), PriorityFee: WeiToGwei(tip)}, nil
}

// WeiToGwei converts a wei amount to gwei. Nil is zero.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerGwei).Float64()
	return gwei
}
