package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// StrategyConfig holds the bands used for rule-based strategy selection.
type StrategyConfig struct {
	LargeTradeValueUSD decimal.Decimal `mapstructure:"large_trade_value_usd"`
	HighMarginPct      decimal.Decimal `mapstructure:"high_margin_pct"`
	LowMarginPct       decimal.Decimal `mapstructure:"low_margin_pct"`
}

// DefaultStrategyConfig returns the default selection bands.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		LargeTradeValueUSD: decimal.NewFromInt(50000),
		HighMarginPct:      decimal.NewFromFloat(2.0),
		LowMarginPct:       decimal.NewFromFloat(0.5),
	}
}

// StrategySelector picks a strategy from the catalog and turns it into an
// optimization plan.
type StrategySelector struct {
	config StrategyConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewStrategySelector creates a selector. Zero bands take the defaults.
func NewStrategySelector(cfg StrategyConfig, logger *logrus.Logger) *StrategySelector {
	defaults := DefaultStrategyConfig()
	if !cfg.LargeTradeValueUSD.IsPositive() {
		cfg.LargeTradeValueUSD = defaults.LargeTradeValueUSD
	}
	if !cfg.HighMarginPct.IsPositive() {
		cfg.HighMarginPct = defaults.HighMarginPct
	}
	if !cfg.LowMarginPct.IsPositive() {
		cfg.LowMarginPct = defaults.LowMarginPct
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &StrategySelector{config: cfg, logger: logger, now: time.Now}
}

// Select resolves the strategy for data. A valid override wins, then a valid
// recommendation from conditions, then the trade value and margin bands.
// Unknown names are ignored.
func (s *StrategySelector) Select(data models.OpportunityData, conditions models.MarketConditions, override string) models.Strategy {
	if kind, ok := models.ParseStrategyKind(override); ok {
		return models.StrategyFor(kind)
	}
	if override != "" {
		s.logger.WithField("strategy", override).Warn("Unknown strategy override ignored")
	}
	if kind, ok := models.ParseStrategyKind(conditions.RecommendedStrategy); ok {
		return models.StrategyFor(kind)
	}

	margin := data.ProfitMarginPct
	large := data.TradeValueUSD.GreaterThanOrEqual(s.config.LargeTradeValueUSD)
	switch {
	case large && margin.GreaterThanOrEqual(s.config.HighMarginPct):
		return models.StrategyFor(models.StrategySpeedPrioritized)
	case margin.LessThan(s.config.LowMarginPct):
		return models.StrategyFor(models.StrategyCostMinimizing)
	case margin.GreaterThanOrEqual(s.config.HighMarginPct):
		return models.StrategyFor(models.StrategyProfitMaximizing)
	default:
		return models.StrategyFor(models.StrategyBalanced)
	}
}

// CreatePlan builds the ordered step list for one request. The three
// required steps always run; batch, timing and MEV steps are opt-in.
func (s *StrategySelector) CreatePlan(strategy models.Strategy, data models.OpportunityData, opts models.OptimizeOptions) models.OptimizationPlan {
	steps := []models.PlanStep{
		{Name: models.StepGasEstimation, Required: true},
		{Name: models.StepFeePriceOptimization, Required: true},
		{Name: models.StepGasLimitOptimization, Required: true},
	}
	if opts.BatchSize > 1 {
		steps = append(steps, models.PlanStep{Name: models.StepBatchOptimization})
	}
	if opts.EnableTiming {
		steps = append(steps, models.PlanStep{Name: models.StepTimingOptimization})
	}
	if opts.EnableMEVAnalysis {
		steps = append(steps, models.PlanStep{Name: models.StepMEVAnalysis})
	}

	plan := models.OptimizationPlan{
		ID:       uuid.New().String(),
		Strategy: strategy,
		Targets: models.PlanTargets{
			MaxGasPrice:     strategy.MaxGasPrice,
			TargetGasLimit:  opts.TargetGasLimit,
			ProfitThreshold: strategy.ProfitThreshold,
		},
		Steps:     steps,
		Fallbacks: []string{"skip_optional_steps", "fallback_fee_estimate"},
		CreatedAt: s.now(),
	}

	s.logger.WithFields(logrus.Fields{
		"plan_id":        plan.ID,
		"opportunity_id": data.ID,
		"strategy":       strategy.Name,
		"steps":          len(steps),
	}).Debug("Optimization plan created")
	return plan
}
