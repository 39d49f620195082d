package services

import (
	"context"
	"strings"
	"sync"

	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/shopspring/decimal"
)

// QuoteProvider returns a venue's quote for swapping amountIn of tokenIn.
type QuoteProvider interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, venueID string) (*models.VenueQuote, error)
}

// FeeDataProvider reports the chain's current fee market and head block.
type FeeDataProvider interface {
	GetFeeData(ctx context.Context) (models.FeeData, error)
	GetLatestBlock(ctx context.Context) (models.BlockInfo, error)
}

// VenueRegistry lists every configured venue, enabled or not.
type VenueRegistry interface {
	ListVenues(ctx context.Context) ([]models.Venue, error)
}

// TokenPricer converts token amounts to USD.
type TokenPricer interface {
	GetTokenPriceUSD(ctx context.Context, token string) (decimal.Decimal, error)
}

// GasCostEstimator prices the gas of one arbitrage round trip in USD.
type GasCostEstimator interface {
	EstimateGasCostUSD(ctx context.Context) (decimal.Decimal, error)
}

// CompletionListener is notified of every finished optimization, in
// completion order, from the orchestrator's worker goroutine.
type CompletionListener interface {
	OnOptimizationComplete(result *models.OptimizationResult)
}

// CompletionListenerFunc adapts a function to CompletionListener.
type CompletionListenerFunc func(result *models.OptimizationResult)

// OnOptimizationComplete calls f(result).
func (f CompletionListenerFunc) OnOptimizationComplete(result *models.OptimizationResult) {
	f(result)
}

// StaticVenueRegistry serves a fixed venue list.
type StaticVenueRegistry struct {
	mu     sync.RWMutex
	venues []models.Venue
}

// NewStaticVenueRegistry creates a registry over a copy of venues.
func NewStaticVenueRegistry(venues []models.Venue) *StaticVenueRegistry {
	r := &StaticVenueRegistry{}
	r.SetVenues(venues)
	return r
}

// ListVenues returns a copy of the configured venues.
func (r *StaticVenueRegistry) ListVenues(_ context.Context) ([]models.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Venue, len(r.venues))
	copy(out, r.venues)
	return out, nil
}

// SetVenues replaces the venue list.
func (r *StaticVenueRegistry) SetVenues(venues []models.Venue) {
	cp := make([]models.Venue, len(venues))
	copy(cp, venues)
	r.mu.Lock()
	r.venues = cp
	r.mu.Unlock()
}

// StaticTokenPricer serves fixed USD prices. Unknown tokens are priced at 1,
// which holds for the stablecoins routes usually settle in.
type StaticTokenPricer struct {
	prices map[string]decimal.Decimal
}

// NewStaticTokenPricer creates a pricer; symbols are matched case-insensitively.
func NewStaticTokenPricer(prices map[string]decimal.Decimal) *StaticTokenPricer {
	normalized := make(map[string]decimal.Decimal, len(prices))
	for token, price := range prices {
		normalized[strings.ToUpper(token)] = price
	}
	return &StaticTokenPricer{prices: normalized}
}

// GetTokenPriceUSD returns the configured price of token.
func (p *StaticTokenPricer) GetTokenPriceUSD(_ context.Context, token string) (decimal.Decimal, error) {
	if price, ok := p.prices[strings.ToUpper(token)]; ok {
		return price, nil
	}
	return decimal.NewFromInt(1), nil
}
