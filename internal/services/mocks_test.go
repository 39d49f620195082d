package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// MockGasCostEstimator implements GasCostEstimator for testing within the services package
type MockGasCostEstimator struct {
	mock.Mock
}

func (m *MockGasCostEstimator) EstimateGasCostUSD(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockFeeDataProvider implements FeeDataProvider for testing within the services package
type MockFeeDataProvider struct {
	mock.Mock
}

func (m *MockFeeDataProvider) GetFeeData(ctx context.Context) (models.FeeData, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.FeeData), args.Error(1)
}

func (m *MockFeeDataProvider) GetLatestBlock(ctx context.Context) (models.BlockInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.BlockInfo), args.Error(1)
}

// MockVenueRegistry implements VenueRegistry for testing within the services package
type MockVenueRegistry struct {
	mock.Mock
}

func (m *MockVenueRegistry) ListVenues(ctx context.Context) ([]models.Venue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Venue), args.Error(1)
}

// fakeQuoteProvider quotes every swap at a fixed rate per venue and pair.
// Unknown combinations fail; entries in fail always fail.
type fakeQuoteProvider struct {
	mu        sync.Mutex
	rates     map[string]decimal.Decimal
	liquidity map[string]decimal.Decimal
	slippage  map[string]decimal.Decimal
	fail      map[string]bool
	calls     int
}

func newFakeQuoteProvider() *fakeQuoteProvider {
	return &fakeQuoteProvider{
		rates:     make(map[string]decimal.Decimal),
		liquidity: make(map[string]decimal.Decimal),
		slippage:  make(map[string]decimal.Decimal),
		fail:      make(map[string]bool),
	}
}

func quoteKey(venueID, tokenIn, tokenOut string) string {
	return strings.ToUpper(venueID + "|" + tokenIn + "|" + tokenOut)
}

func (f *fakeQuoteProvider) setRate(venueID, tokenIn, tokenOut string, rate float64) *fakeQuoteProvider {
	f.rates[quoteKey(venueID, tokenIn, tokenOut)] = decimal.NewFromFloat(rate)
	return f
}

func (f *fakeQuoteProvider) setLiquidity(venueID, tokenIn, tokenOut string, liquidity float64) *fakeQuoteProvider {
	f.liquidity[quoteKey(venueID, tokenIn, tokenOut)] = decimal.NewFromFloat(liquidity)
	return f
}

func (f *fakeQuoteProvider) setSlippage(venueID, tokenIn, tokenOut string, slippage float64) *fakeQuoteProvider {
	f.slippage[quoteKey(venueID, tokenIn, tokenOut)] = decimal.NewFromFloat(slippage)
	return f
}

func (f *fakeQuoteProvider) setFailure(venueID, tokenIn, tokenOut string) *fakeQuoteProvider {
	f.fail[quoteKey(venueID, tokenIn, tokenOut)] = true
	return f
}

func (f *fakeQuoteProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeQuoteProvider) GetQuote(_ context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, venueID string) (*models.VenueQuote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	key := quoteKey(venueID, tokenIn, tokenOut)
	if f.fail[key] {
		return nil, fmt.Errorf("venue %s rejected quote", venueID)
	}
	rate, ok := f.rates[key]
	if !ok {
		return nil, fmt.Errorf("no pool for %s", key)
	}
	liquidity, ok := f.liquidity[key]
	if !ok {
		liquidity = decimal.NewFromInt(10_000_000)
	}
	return &models.VenueQuote{
		OutputAmount: amountIn.Mul(rate),
		Slippage:     f.slippage[key],
		Liquidity:    liquidity,
		Price:        rate,
		Fee:          decimal.Zero,
	}, nil
}

// recordingListener collects results delivered to it.
type recordingListener struct {
	mu      sync.Mutex
	results []*models.OptimizationResult
}

func (l *recordingListener) OnOptimizationComplete(result *models.OptimizationResult) {
	l.mu.Lock()
	l.results = append(l.results, result)
	l.mu.Unlock()
}

func (l *recordingListener) snapshot() []*models.OptimizationResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.OptimizationResult, len(l.results))
	copy(out, l.results)
	return out
}
