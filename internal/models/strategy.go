package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// StrategyKind is the closed set of optimization policies.
type StrategyKind int

const (
	StrategyCostMinimizing StrategyKind = iota
	StrategyBalanced
	StrategySpeedPrioritized
	StrategyProfitMaximizing
)

// FallbackStrategyName tags results produced by the fallback path.
const FallbackStrategyName = "FALLBACK"

// AllStrategyKinds lists every strategy in catalog order.
func AllStrategyKinds() []StrategyKind {
	return []StrategyKind{
		StrategyCostMinimizing,
		StrategyBalanced,
		StrategySpeedPrioritized,
		StrategyProfitMaximizing,
	}
}

func (k StrategyKind) String() string {
	switch k {
	case StrategyCostMinimizing:
		return "COST_MINIMIZING"
	case StrategyBalanced:
		return "BALANCED"
	case StrategySpeedPrioritized:
		return "SPEED_PRIORITIZED"
	case StrategyProfitMaximizing:
		return "PROFIT_MAXIMIZING"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategyKind resolves a strategy name, case-insensitively.
func ParseStrategyKind(name string) (StrategyKind, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for _, k := range AllStrategyKinds() {
		if k.String() == normalized {
			return k, true
		}
	}
	return 0, false
}

// PriorityClass is how urgently a transaction should be included.
type PriorityClass string

const (
	PriorityLow    PriorityClass = "low"
	PriorityMedium PriorityClass = "medium"
	PriorityHigh   PriorityClass = "high"
	PriorityUrgent PriorityClass = "urgent"
)

// RiskTolerance drives how much gas headroom a strategy keeps.
type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// Strategy is an immutable policy bundle. MaxGasPrice is in gwei,
// ProfitThreshold is a percentage.
type Strategy struct {
	Kind            StrategyKind    `json:"-"`
	Name            string          `json:"name"`
	Priority        PriorityClass   `json:"priority"`
	RiskTolerance   RiskTolerance   `json:"risk_tolerance"`
	MaxGasPrice     float64         `json:"max_gas_price"`
	ProfitThreshold decimal.Decimal `json:"profit_threshold"`
}

// StrategyFor returns the catalog entry for a kind.
func StrategyFor(kind StrategyKind) Strategy {
	switch kind {
	case StrategyCostMinimizing:
		return Strategy{
			Kind:            kind,
			Name:            kind.String(),
			Priority:        PriorityLow,
			RiskTolerance:   RiskLow,
			MaxGasPrice:     60,
			ProfitThreshold: decimal.NewFromFloat(0.5),
		}
	case StrategySpeedPrioritized:
		return Strategy{
			Kind:            kind,
			Name:            kind.String(),
			Priority:        PriorityUrgent,
			RiskTolerance:   RiskHigh,
			MaxGasPrice:     500,
			ProfitThreshold: decimal.NewFromFloat(2.0),
		}
	case StrategyProfitMaximizing:
		return Strategy{
			Kind:            kind,
			Name:            kind.String(),
			Priority:        PriorityHigh,
			RiskTolerance:   RiskMedium,
			MaxGasPrice:     250,
			ProfitThreshold: decimal.NewFromFloat(1.5),
		}
	default:
		return Strategy{
			Kind:            StrategyBalanced,
			Name:            StrategyBalanced.String(),
			Priority:        PriorityMedium,
			RiskTolerance:   RiskMedium,
			MaxGasPrice:     150,
			ProfitThreshold: decimal.NewFromFloat(1.0),
		}
	}
}
