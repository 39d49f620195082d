package config

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/services"
)

// EngineConfig maps the loaded configuration onto the pipeline stages.
func (c *Config) EngineConfig() services.EngineConfig {
	return services.EngineConfig{
		Detector: services.DetectorConfig{
			MinProfitThreshold: decimal.NewNullDecimal(decimal.NewFromFloat(c.Detector.MinProfitThreshold)),
			SlippageTolerance:  decimal.NewNullDecimal(decimal.NewFromFloat(c.Detector.SlippageTolerance)),
			DefaultGasCostUSD:  decimal.NewNullDecimal(decimal.NewFromFloat(c.Detector.DefaultGasCostUSD)),
			HistorySize:        c.Detector.HistorySize,
		},
		Routing: services.RouteConfig{
			MaxHops:            c.Routing.MaxHops,
			IntermediateTokens: upperAll(c.Routing.IntermediateTokens),
			NativeToken:        strings.ToUpper(c.Routing.NativeToken),
			MinLiquidity:       decimal.NewNullDecimal(decimal.NewFromFloat(c.Routing.MinLiquidity)),
			MaxSlippage:        decimal.NewNullDecimal(decimal.NewFromFloat(c.Routing.MaxSlippage)),
			MaxGasRatio:        decimal.NewNullDecimal(decimal.NewFromFloat(c.Routing.MaxGasRatio)),
			GasPriceGwei:       decimal.NewFromFloat(c.Routing.GasPriceGwei),
			MaxConcurrency:     c.Routing.MaxConcurrency,
			MaxCandidateRoutes: c.Routing.MaxCandidateRoutes,
			CacheTTL:           c.Routing.CacheTTL,
			JanitorInterval:    c.Routing.JanitorInterval,
		},
		Fees: services.FeeConfig{
			BaseGasLimit:     c.Fees.BaseGasLimit,
			LiveGasLimit:     c.Fees.LiveGasLimit,
			BaseConfidence:   c.Fees.BaseConfidence,
			PredictionWeight: c.Fees.PredictionWeight,
			HistorySize:      c.Fees.HistorySize,
			HistoryWindow:    c.Fees.HistoryWindow,
		},
		Strategy: services.StrategyConfig{
			LargeTradeValueUSD: decimal.NewFromFloat(c.Strategy.LargeTradeValueUSD),
			HighMarginPct:      decimal.NewFromFloat(c.Strategy.HighMarginPct),
			LowMarginPct:       decimal.NewFromFloat(c.Strategy.LowMarginPct),
		},
		Orchestrator: c.Orchestrator,
		Timeouts:     c.Timeouts,
		Breaker:      c.Breaker,
	}
}

// VenueList converts the static venue section into registry entries.
func (c *Config) VenueList() []models.Venue {
	venues := make([]models.Venue, 0, len(c.Venues))
	for _, v := range c.Venues {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		venues = append(venues, models.Venue{
			ID:         strings.ToLower(v.ID),
			Name:       name,
			FeeRate:    decimal.NewFromFloat(v.FeeRate),
			GasPerSwap: v.GasPerSwap,
			Enabled:    v.Enabled,
		})
	}
	return venues
}

// TokenPrices returns the static USD prices keyed by upper-case symbol.
func (c *Config) TokenPrices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(c.Chain.Prices))
	for symbol, price := range c.Chain.Prices {
		prices[strings.ToUpper(symbol)] = decimal.NewFromFloat(price)
	}
	return prices
}

func upperAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}
