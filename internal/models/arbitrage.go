package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a detected price discrepancy for one pair across two venues.
// It is never mutated after creation.
type Opportunity struct {
	ID               string          `json:"id"`
	PairID           string          `json:"pair_id"`
	BuyVenue         string          `json:"buy_venue"`
	SellVenue        string          `json:"sell_venue"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	PriceDifference  decimal.Decimal `json:"price_difference"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	Profitable       bool            `json:"profitable"`
	DetectedAt       time.Time       `json:"detected_at"`
}

// NetProfitEstimate breaks down the expected result of trading an opportunity.
type NetProfitEstimate struct {
	TradeAmount  decimal.Decimal `json:"trade_amount"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GasCost      decimal.Decimal `json:"gas_cost"`
	SlippageCost decimal.Decimal `json:"slippage_cost"`
	NetProfit    decimal.Decimal `json:"net_profit"`
	ROI          decimal.Decimal `json:"roi"`
}

// DetectorStats holds the running counters of the opportunity detector.
type DetectorStats struct {
	Checked              int64           `json:"checked"`
	Found                int64           `json:"found"`
	Profitable           int64           `json:"profitable"`
	TotalPotentialProfit decimal.Decimal `json:"total_potential_profit"`
	HistorySize          int             `json:"history_size"`
}
