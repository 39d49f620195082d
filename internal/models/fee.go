package models

import "time"

// FeeSource tags where a fee estimate came from.
type FeeSource string

const (
	FeeSourcePredicted FeeSource = "predicted"
	FeeSourceLive      FeeSource = "live"
	FeeSourceBlended   FeeSource = "blended"
	FeeSourceFallback  FeeSource = "fallback"
)

// FeeEstimate is a gas limit and fee price recommendation. Prices are in gwei.
type FeeEstimate struct {
	GasLimit    uint64    `json:"gas_limit"`
	GasPrice    float64   `json:"gas_price"`
	PriorityFee float64   `json:"priority_fee"`
	Confidence  float64   `json:"confidence"`
	Source      FeeSource `json:"source"`
}

// FeeData is the current fee market as reported by the chain, in gwei.
type FeeData struct {
	BaseFee     float64 `json:"base_fee"`
	PriorityFee float64 `json:"priority_fee"`
}

// BlockInfo is the subset of a block header the fee predictor needs.
type BlockInfo struct {
	Number    uint64    `json:"number"`
	GasUsed   uint64    `json:"gas_used"`
	GasLimit  uint64    `json:"gas_limit"`
	Timestamp time.Time `json:"timestamp"`
}

// Utilization returns gasUsed/gasLimit, or 0 for an empty limit.
func (b BlockInfo) Utilization() float64 {
	if b.GasLimit == 0 {
		return 0
	}
	return float64(b.GasUsed) / float64(b.GasLimit)
}

// CongestionLevel classifies network load.
type CongestionLevel string

const (
	CongestionLow      CongestionLevel = "low"
	CongestionMedium   CongestionLevel = "medium"
	CongestionHigh     CongestionLevel = "high"
	CongestionCritical CongestionLevel = "critical"
)

// CongestionFromUtilization maps block utilization to a congestion level.
func CongestionFromUtilization(utilization float64) CongestionLevel {
	switch {
	case utilization >= 0.95:
		return CongestionCritical
	case utilization >= 0.8:
		return CongestionHigh
	case utilization >= 0.5:
		return CongestionMedium
	default:
		return CongestionLow
	}
}

// FeeRequest describes the trade a fee estimate is for.
type FeeRequest struct {
	TradeSizeUSD      float64 `json:"trade_size_usd"`
	ExpectedProfitUSD float64 `json:"expected_profit_usd"`
}

// FeeFeatures are the inputs of the rule-based fee model.
type FeeFeatures struct {
	BlockNumber       uint64          `json:"block_number"`
	GasUtilization    float64         `json:"gas_utilization"`
	BaseFee           float64         `json:"base_fee"`
	PriorityFee       float64         `json:"priority_fee"`
	Congestion        CongestionLevel `json:"congestion"`
	TradeSizeUSD      float64         `json:"trade_size_usd"`
	ExpectedProfitUSD float64         `json:"expected_profit_usd"`
	RecentAvgGasUsed  float64         `json:"recent_avg_gas_used"`
	RecentUtilization float64         `json:"recent_utilization"`
	FeeVolatility     float64         `json:"fee_volatility"`
	HistorySize       int             `json:"history_size"`
}

// FeeHistoryPoint is one observation kept in the rolling fee window.
type FeeHistoryPoint struct {
	BlockNumber uint64    `json:"block_number"`
	BaseFee     float64   `json:"base_fee"`
	PriorityFee float64   `json:"priority_fee"`
	GasUsed     uint64    `json:"gas_used"`
	Utilization float64   `json:"utilization"`
	ObservedAt  time.Time `json:"observed_at"`
}
