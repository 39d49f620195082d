package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenPair identifies the asset pair a quote is for.
type TokenPair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Symbol returns the pair in "BASE/QUOTE" form.
func (p TokenPair) Symbol() string {
	return p.Base + "/" + p.Quote
}

// IsValid reports whether both sides are set and differ.
func (p TokenPair) IsValid() bool {
	base := strings.TrimSpace(p.Base)
	quote := strings.TrimSpace(p.Quote)
	return base != "" && quote != "" && !strings.EqualFold(base, quote)
}

// ParseTokenPair parses a "BASE/QUOTE" symbol.
func ParseTokenPair(symbol string) (TokenPair, bool) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return TokenPair{}, false
	}
	pair := TokenPair{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	return pair, pair.IsValid()
}

// PriceQuote is a single venue price observation, created per poll.
type PriceQuote struct {
	VenueID   string          `json:"venue_id"`
	Pair      TokenPair       `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Timestamp time.Time       `json:"timestamp"`
}

// Venue is a registry entry for a trading venue.
type Venue struct {
	ID         string          `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	FeeRate    decimal.Decimal `json:"fee_rate" db:"fee_rate"`
	GasPerSwap uint64          `json:"gas_per_swap" db:"gas_per_swap"`
	Enabled    bool            `json:"enabled" db:"enabled"`
}

// VenueQuote is the answer of a venue to a swap quote request.
type VenueQuote struct {
	OutputAmount decimal.Decimal `json:"output_amount"`
	Slippage     decimal.Decimal `json:"slippage"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	Price        decimal.Decimal `json:"price"`
	Fee          decimal.Decimal `json:"fee"`
}
