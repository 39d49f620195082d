package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

func opportunityData(tradeUSD, marginPct float64) models.OpportunityData {
	return models.OpportunityData{
		ID:                "opp-1",
		PairID:            "ETH/USDC",
		TradeValueUSD:     decimal.NewFromFloat(tradeUSD),
		ProfitMarginPct:   decimal.NewFromFloat(marginPct),
		ExpectedProfitUSD: decimal.NewFromFloat(tradeUSD * marginPct / 100),
	}
}

func TestStrategyCatalog(t *testing.T) {
	tests := []struct {
		kind      models.StrategyKind
		name      string
		priority  models.PriorityClass
		risk      models.RiskTolerance
		maxPrice  float64
		threshold string
	}{
		{models.StrategyCostMinimizing, "COST_MINIMIZING", models.PriorityLow, models.RiskLow, 60, "0.5"},
		{models.StrategyBalanced, "BALANCED", models.PriorityMedium, models.RiskMedium, 150, "1"},
		{models.StrategySpeedPrioritized, "SPEED_PRIORITIZED", models.PriorityUrgent, models.RiskHigh, 500, "2"},
		{models.StrategyProfitMaximizing, "PROFIT_MAXIMIZING", models.PriorityHigh, models.RiskMedium, 250, "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.StrategyFor(tt.kind)
			assert.Equal(t, tt.name, s.Name)
			assert.Equal(t, tt.priority, s.Priority)
			assert.Equal(t, tt.risk, s.RiskTolerance)
			assert.Equal(t, tt.maxPrice, s.MaxGasPrice)
			assert.Equal(t, tt.threshold, s.ProfitThreshold.String())

			parsed, ok := models.ParseStrategyKind(" " + tt.name + " ")
			require.True(t, ok)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	_, ok := models.ParseStrategyKind("YOLO")
	assert.False(t, ok)
}

func TestStrategySelector_Select(t *testing.T) {
	s := NewStrategySelector(StrategyConfig{}, nil)

	tests := []struct {
		name       string
		data       models.OpportunityData
		conditions models.MarketConditions
		override   string
		want       models.StrategyKind
	}{
		{"large trade high margin", opportunityData(60000, 2.5), models.MarketConditions{}, "", models.StrategySpeedPrioritized},
		{"low margin", opportunityData(60000, 0.3), models.MarketConditions{}, "", models.StrategyCostMinimizing},
		{"small trade high margin", opportunityData(1000, 3), models.MarketConditions{}, "", models.StrategyProfitMaximizing},
		{"middle band", opportunityData(1000, 1), models.MarketConditions{}, "", models.StrategyBalanced},
		{"low margin boundary is balanced", opportunityData(1000, 0.5), models.MarketConditions{}, "", models.StrategyBalanced},
		{"override wins", opportunityData(60000, 2.5), models.MarketConditions{RecommendedStrategy: "BALANCED"}, "cost_minimizing", models.StrategyCostMinimizing},
		{"recommendation", opportunityData(60000, 2.5), models.MarketConditions{RecommendedStrategy: "PROFIT_MAXIMIZING"}, "", models.StrategyProfitMaximizing},
		{"unknown override falls through", opportunityData(1000, 1), models.MarketConditions{RecommendedStrategy: "SPEED_PRIORITIZED"}, "turbo", models.StrategySpeedPrioritized},
		{"unknown recommendation falls through", opportunityData(1000, 0.1), models.MarketConditions{RecommendedStrategy: "turbo"}, "", models.StrategyCostMinimizing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Select(tt.data, tt.conditions, tt.override)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestStrategySelector_CustomBands(t *testing.T) {
	s := NewStrategySelector(StrategyConfig{
		LargeTradeValueUSD: decimal.NewFromInt(1000),
		HighMarginPct:      decimal.NewFromInt(5),
		LowMarginPct:       decimal.NewFromInt(1),
	}, nil)

	assert.Equal(t, models.StrategySpeedPrioritized, s.Select(opportunityData(1000, 5), models.MarketConditions{}, "").Kind)
	assert.Equal(t, models.StrategyBalanced, s.Select(opportunityData(1000, 3), models.MarketConditions{}, "").Kind)
	assert.Equal(t, models.StrategyCostMinimizing, s.Select(opportunityData(1000, 0.9), models.MarketConditions{}, "").Kind)
}

func TestStrategySelector_CreatePlan(t *testing.T) {
	s := NewStrategySelector(StrategyConfig{}, nil)
	strategy := models.StrategyFor(models.StrategyProfitMaximizing)

	t.Run("required steps only", func(t *testing.T) {
		plan := s.CreatePlan(strategy, opportunityData(1000, 3), models.OptimizeOptions{BatchSize: 1})

		assert.NotEmpty(t, plan.ID)
		assert.Equal(t, "PROFIT_MAXIMIZING", plan.Strategy.Name)
		assert.Equal(t, 250.0, plan.Targets.MaxGasPrice)
		require.Len(t, plan.Steps, 3)
		assert.Equal(t, models.StepGasEstimation, plan.Steps[0].Name)
		assert.Equal(t, models.StepFeePriceOptimization, plan.Steps[1].Name)
		assert.Equal(t, models.StepGasLimitOptimization, plan.Steps[2].Name)
		for _, step := range plan.Steps {
			assert.True(t, step.Required)
		}
		assert.NotEmpty(t, plan.Fallbacks)
	})

	t.Run("optional steps appended in order", func(t *testing.T) {
		plan := s.CreatePlan(strategy, opportunityData(1000, 3), models.OptimizeOptions{
			BatchSize: 4, EnableTiming: true, EnableMEVAnalysis: true, TargetGasLimit: 420000,
		})

		require.Len(t, plan.Steps, 6)
		assert.Equal(t, models.StepBatchOptimization, plan.Steps[3].Name)
		assert.Equal(t, models.StepTimingOptimization, plan.Steps[4].Name)
		assert.Equal(t, models.StepMEVAnalysis, plan.Steps[5].Name)
		assert.False(t, plan.Steps[3].Required)
		assert.Equal(t, uint64(420000), plan.Targets.TargetGasLimit)
	})

	t.Run("plan ids are unique", func(t *testing.T) {
		a := s.CreatePlan(strategy, opportunityData(1000, 3), models.OptimizeOptions{})
		b := s.CreatePlan(strategy, opportunityData(1000, 3), models.OptimizeOptions{})
		assert.NotEqual(t, a.ID, b.ID)
	})
}
