package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// DetectorConfig holds configuration for the opportunity detector
type DetectorConfig struct {
	MinProfitThreshold decimal.NullDecimal // percent
	SlippageTolerance  decimal.NullDecimal // fraction of trade amount
	DefaultGasCostUSD  decimal.NullDecimal
	HistorySize        int
}

// DefaultDetectorConfig returns the detector defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinProfitThreshold: decimal.NewNullDecimal(decimal.NewFromFloat(0.5)),
		SlippageTolerance:  decimal.NewNullDecimal(decimal.NewFromFloat(0.005)),
		DefaultGasCostUSD:  decimal.NewNullDecimal(decimal.NewFromInt(15)),
		HistorySize:        1000,
	}
}

// OpportunityDetector compares two venue quotes for one pair and keeps a
// bounded history of everything it detected.
type OpportunityDetector struct {
	config    DetectorConfig
	gasCost   GasCostEstimator
	collector *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time

	mu      sync.RWMutex
	history *ring[models.Opportunity]
	stats   models.DetectorStats
}

// NewOpportunityDetector creates a detector. Unset or negative config fields
// take the defaults; an explicit zero is kept. gasCost may be nil.
func NewOpportunityDetector(cfg DetectorConfig, gasCost GasCostEstimator, collector *metrics.Collector, logger *logrus.Logger) *OpportunityDetector {
	defaults := DefaultDetectorConfig()
	cfg.MinProfitThreshold = orDefault(cfg.MinProfitThreshold, defaults.MinProfitThreshold)
	cfg.SlippageTolerance = orDefault(cfg.SlippageTolerance, defaults.SlippageTolerance)
	cfg.DefaultGasCostUSD = orDefault(cfg.DefaultGasCostUSD, defaults.DefaultGasCostUSD)
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &OpportunityDetector{
		config:    cfg,
		gasCost:   gasCost,
		collector: collector,
		logger:    logger,
		now:       time.Now,
		history:   newRing[models.Opportunity](cfg.HistorySize),
		stats:     models.DetectorStats{TotalPotentialProfit: decimal.Zero},
	}
}

// Detect compares quoteA and quoteB. It returns nil when either price is not
// positive. The lower price is the buy side; quoteA wins ties.
func (d *OpportunityDetector) Detect(quoteA, quoteB models.PriceQuote, pair models.TokenPair) *models.Opportunity {
	d.mu.Lock()
	d.stats.Checked++
	d.mu.Unlock()

	p1, p2 := quoteA.Price, quoteB.Price
	if !p1.IsPositive() || !p2.IsPositive() {
		d.logger.WithFields(logrus.Fields{
			"pair":    pair.Symbol(),
			"price_a": p1.String(),
			"price_b": p2.String(),
		}).Debug("Skipping quotes with non-positive price")
		return nil
	}

	buy, sell := quoteA, quoteB
	if p2.LessThan(p1) {
		buy, sell = quoteB, quoteA
	}
	priceDiff := sell.Price.Sub(buy.Price)
	profitPct := priceDiff.Div(buy.Price).Mul(decimal.NewFromInt(100))

	opp := &models.Opportunity{
		ID:               uuid.New().String(),
		PairID:           pair.Symbol(),
		BuyVenue:         buy.VenueID,
		SellVenue:        sell.VenueID,
		BuyPrice:         buy.Price,
		SellPrice:        sell.Price,
		PriceDifference:  priceDiff,
		ProfitPercentage: profitPct,
		Profitable:       profitPct.GreaterThanOrEqual(d.config.MinProfitThreshold.Decimal),
		DetectedAt:       d.now(),
	}

	d.mu.Lock()
	d.history.push(*opp)
	d.stats.Found++
	if opp.Profitable {
		d.stats.Profitable++
		d.stats.TotalPotentialProfit = d.stats.TotalPotentialProfit.Add(profitPct)
	}
	d.mu.Unlock()

	d.collector.RecordDetection(opp.Profitable)
	if opp.Profitable {
		d.logger.WithFields(logrus.Fields{
			"pair":              opp.PairID,
			"buy_venue":         opp.BuyVenue,
			"sell_venue":        opp.SellVenue,
			"profit_percentage": profitPct.StringFixed(4),
		}).Info("Profitable opportunity detected")
	}

	cp := *opp
	return &cp
}

// EstimateNetProfit prices trading opp with tradeAmount of the quote asset.
func (d *OpportunityDetector) EstimateNetProfit(ctx context.Context, opp *models.Opportunity, tradeAmount decimal.Decimal) models.NetProfitEstimate {
	estimate := models.NetProfitEstimate{
		TradeAmount:  tradeAmount,
		GrossProfit:  decimal.Zero,
		GasCost:      decimal.Zero,
		SlippageCost: decimal.Zero,
		NetProfit:    decimal.Zero,
		ROI:          decimal.Zero,
	}
	if opp == nil || !opp.BuyPrice.IsPositive() || !tradeAmount.IsPositive() {
		return estimate
	}

	estimate.GrossProfit = tradeAmount.Div(opp.BuyPrice).Mul(opp.SellPrice).Sub(tradeAmount)
	estimate.GasCost = d.gasCostUSD(ctx)
	estimate.SlippageCost = tradeAmount.Mul(d.config.SlippageTolerance.Decimal)
	estimate.NetProfit = estimate.GrossProfit.Sub(estimate.GasCost).Sub(estimate.SlippageCost)
	estimate.ROI = estimate.NetProfit.Div(tradeAmount).Mul(decimal.NewFromInt(100))
	return estimate
}

func (d *OpportunityDetector) gasCostUSD(ctx context.Context) decimal.Decimal {
	if d.gasCost == nil {
		return d.config.DefaultGasCostUSD.Decimal
	}
	cost, err := d.gasCost.EstimateGasCostUSD(ctx)
	if err != nil || cost.IsNegative() {
		d.logger.WithError(err).Warn("Gas cost estimate unavailable, using default")
		return d.config.DefaultGasCostUSD.Decimal
	}
	return cost
}

// History returns up to limit detections, newest first. limit <= 0 returns all.
func (d *OpportunityDetector) History(limit int) []models.Opportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history.newest(limit)
}

// Stats returns a snapshot of the detector counters.
func (d *OpportunityDetector) Stats() models.DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := d.stats
	stats.HistorySize = d.history.len()
	return stats
}

// orDefault keeps v when it is set and not negative.
func orDefault(v, def decimal.NullDecimal) decimal.NullDecimal {
	if !v.Valid || v.Decimal.IsNegative() {
		return def
	}
	return v
}
