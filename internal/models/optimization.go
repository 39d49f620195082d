package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityData is the trade an optimization request is about.
type OpportunityData struct {
	ID                string           `json:"id"`
	PairID            string           `json:"pair_id"`
	TradeValueUSD     decimal.Decimal  `json:"trade_value_usd"`
	ProfitMarginPct   decimal.Decimal  `json:"profit_margin_pct"`
	ExpectedProfitUSD decimal.Decimal  `json:"expected_profit_usd"`
	Route             *RouteEvaluation `json:"route,omitempty"`
}

// HopCount returns the number of hops of the attached route, 1 when absent.
func (o OpportunityData) HopCount() int {
	if o.Route == nil || len(o.Route.Route.Hops) == 0 {
		return 1
	}
	return len(o.Route.Route.Hops)
}

// VenueCount returns the number of distinct venues of the attached route, 1 when absent.
func (o OpportunityData) VenueCount() int {
	if o.Route == nil || len(o.Route.Route.Hops) == 0 {
		return 1
	}
	return len(o.Route.Route.Venues())
}

// MarketConditions carry caller-side hints about the network.
type MarketConditions struct {
	Congestion          CongestionLevel `json:"congestion,omitempty"`
	RecommendedStrategy string          `json:"recommended_strategy,omitempty"`
}

// OptimizeOptions control a single optimization request.
type OptimizeOptions struct {
	StrategyOverride  string           `json:"strategy_override,omitempty"`
	Conditions        MarketConditions `json:"conditions"`
	TargetGasLimit    uint64           `json:"target_gas_limit,omitempty"`
	BatchSize         int              `json:"batch_size,omitempty"`
	EnableTiming      bool             `json:"enable_timing"`
	EnableMEVAnalysis bool             `json:"enable_mev_analysis"`
}

// StepName identifies a plan step.
type StepName string

const (
	StepGasEstimation        StepName = "gas_estimation"
	StepFeePriceOptimization StepName = "fee_price_optimization"
	StepGasLimitOptimization StepName = "gas_limit_optimization"
	StepBatchOptimization    StepName = "batch_optimization"
	StepTimingOptimization   StepName = "timing_optimization"
	StepMEVAnalysis          StepName = "mev_analysis"
)

// PlanStep is one ordered unit of work in an optimization plan.
type PlanStep struct {
	Name     StepName `json:"name"`
	Required bool     `json:"required"`
}

// PlanTargets are the constraints an optimization plan must respect.
type PlanTargets struct {
	MaxGasPrice     float64         `json:"max_gas_price"`
	TargetGasLimit  uint64          `json:"target_gas_limit,omitempty"`
	ProfitThreshold decimal.Decimal `json:"profit_threshold"`
}

// OptimizationPlan is the ordered step list chosen for one request.
type OptimizationPlan struct {
	ID        string      `json:"id"`
	Strategy  Strategy    `json:"strategy"`
	Targets   PlanTargets `json:"targets"`
	Steps     []PlanStep  `json:"steps"`
	Fallbacks []string    `json:"fallbacks"`
	CreatedAt time.Time   `json:"created_at"`
}

// FeeParameters are the final values handed to the execution layer.
type FeeParameters struct {
	GasLimit    uint64  `json:"gas_limit"`
	GasPrice    float64 `json:"gas_price"`
	PriorityFee float64 `json:"priority_fee"`
}

// AppliedOptimization records one sub-optimization and what it saved, in gwei.
type AppliedOptimization struct {
	Name        StepName `json:"name"`
	Description string   `json:"description"`
	SavingsGwei float64  `json:"savings_gwei"`
}

// OptimizationResult is the outcome of one optimization request.
// Costs and savings are in native units (gas * gwei / 1e9).
type OptimizationResult struct {
	PlanID            string                `json:"plan_id"`
	Sequence          uint64                `json:"sequence"`
	OpportunityID     string                `json:"opportunity_id"`
	Strategy          string                `json:"strategy"`
	FeeParameters     FeeParameters         `json:"fee_parameters"`
	FeeSource         FeeSource             `json:"fee_source"`
	BaselineCost      decimal.Decimal       `json:"baseline_cost"`
	OptimizedCost     decimal.Decimal       `json:"optimized_cost"`
	Savings           decimal.Decimal       `json:"savings"`
	SavingsPercentage float64               `json:"savings_percentage"`
	Optimizations     []AppliedOptimization `json:"optimizations"`
	Warnings          []string              `json:"warnings"`
	FallbackUsed      bool                  `json:"fallback_used"`
	Error             string                `json:"error,omitempty"`
	Duration          time.Duration         `json:"duration"`
	CompletedAt       time.Time             `json:"completed_at"`
}

// OptimizationState is the lifecycle state of a request.
type OptimizationState string

const (
	OptimizationQueued            OptimizationState = "queued"
	OptimizationRunning           OptimizationState = "running"
	OptimizationCompleted         OptimizationState = "completed"
	OptimizationFallbackCompleted OptimizationState = "fallback-completed"
)

// IsTerminal reports whether no further transition can happen.
func (s OptimizationState) IsTerminal() bool {
	return s == OptimizationCompleted || s == OptimizationFallbackCompleted
}

// OptimizationStats aggregates results across all attempts.
type OptimizationStats struct {
	TotalAttempts         int64           `json:"total_attempts"`
	SuccessfulAttempts    int64           `json:"successful_attempts"`
	FallbackAttempts      int64           `json:"fallback_attempts"`
	TotalSavings          decimal.Decimal `json:"total_savings"`
	BestSavingsPercentage float64         `json:"best_savings_percentage"`
	AvgSavingsPercentage  float64         `json:"avg_savings_percentage"`
	QueueDepth            int             `json:"queue_depth"`
}
