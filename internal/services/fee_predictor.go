package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/utils"
)

// Bounds every fee estimate satisfies.
const (
	MinGasLimit uint64  = 300000
	MaxGasLimit uint64  = 800000
	MinGasPrice float64 = 1
	MaxGasPrice float64 = 500
)

var errNoFeeSource = errors.New("no fee data provider configured")

// FallbackFeeEstimate is returned when the fee market cannot be read.
var FallbackFeeEstimate = models.FeeEstimate{
	GasLimit:    400000,
	GasPrice:    25,
	PriorityFee: 2,
	Confidence:  0.5,
	Source:      models.FeeSourceFallback,
}

// FeeConfig holds configuration for the fee parameter predictor
type FeeConfig struct {
	BaseGasLimit      uint64
	LiveGasLimit      uint64
	BaseConfidence    float64
	PredictionWeight  float64 // overrides confidence as blend weight when in (0, 1]
	HistorySize       int
	HistoryWindow     int
	LargeTradeUSD     float64
	VeryLargeTradeUSD float64
	HighProfitUSD     float64
	LowProfitUSD      float64
	HighUtilization   float64
}

// DefaultFeeConfig returns the predictor defaults.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		BaseGasLimit:      350000,
		LiveGasLimit:      400000,
		BaseConfidence:    0.8,
		HistorySize:       1000,
		HistoryWindow:     20,
		LargeTradeUSD:     10000,
		VeryLargeTradeUSD: 100000,
		HighProfitUSD:     1000,
		LowProfitUSD:      50,
		HighUtilization:   0.9,
	}
}

// congestionMultipliers returns the base fee and priority fee multipliers.
func congestionMultipliers(level models.CongestionLevel) (float64, float64) {
	switch level {
	case models.CongestionMedium:
		return 1.15, 1.25
	case models.CongestionHigh:
		return 1.35, 1.5
	case models.CongestionCritical:
		return 1.6, 2.0
	default:
		return 1.0, 1.0
	}
}

// FeeParameterPredictor recommends gas limits and fee prices from the current
// fee market and a rolling window of recent observations.
type FeeParameterPredictor struct {
	config    FeeConfig
	source    FeeDataProvider
	timeouts  *TimeoutManager
	collector *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time

	mu      sync.RWMutex
	history *ring[models.FeeHistoryPoint]
}

// NewFeeParameterPredictor creates a predictor reading from source.
func NewFeeParameterPredictor(cfg FeeConfig, source FeeDataProvider, timeouts *TimeoutManager, collector *metrics.Collector, logger *logrus.Logger) *FeeParameterPredictor {
	defaults := DefaultFeeConfig()
	if cfg.BaseGasLimit == 0 {
		cfg.BaseGasLimit = defaults.BaseGasLimit
	}
	if cfg.LiveGasLimit == 0 {
		cfg.LiveGasLimit = defaults.LiveGasLimit
	}
	if cfg.BaseConfidence <= 0 || cfg.BaseConfidence > 1 {
		cfg.BaseConfidence = defaults.BaseConfidence
	}
	if cfg.PredictionWeight < 0 || cfg.PredictionWeight > 1 {
		cfg.PredictionWeight = 0
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaults.HistoryWindow
	}
	if cfg.LargeTradeUSD <= 0 {
		cfg.LargeTradeUSD = defaults.LargeTradeUSD
	}
	if cfg.VeryLargeTradeUSD <= 0 {
		cfg.VeryLargeTradeUSD = defaults.VeryLargeTradeUSD
	}
	if cfg.HighProfitUSD <= 0 {
		cfg.HighProfitUSD = defaults.HighProfitUSD
	}
	if cfg.LowProfitUSD <= 0 {
		cfg.LowProfitUSD = defaults.LowProfitUSD
	}
	if cfg.HighUtilization <= 0 {
		cfg.HighUtilization = defaults.HighUtilization
	}
	if timeouts == nil {
		timeouts = NewTimeoutManager(nil, logger)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &FeeParameterPredictor{
		config:    cfg,
		source:    source,
		timeouts:  timeouts,
		collector: collector,
		logger:    logger,
		now:       time.Now,
		history:   newRing[models.FeeHistoryPoint](cfg.HistorySize),
	}
}

// ExtractFeatures reads the head block and fee data, appends one history
// point and derives the windowed features.
func (p *FeeParameterPredictor) ExtractFeatures(ctx context.Context, req models.FeeRequest) (models.FeeFeatures, error) {
	return p.extract(ctx, req, true)
}

func (p *FeeParameterPredictor) extract(ctx context.Context, req models.FeeRequest, record bool) (models.FeeFeatures, error) {
	if p.source == nil {
		return models.FeeFeatures{}, utils.DataUnavailable("fee data", errNoFeeSource)
	}

	var (
		block models.BlockInfo
		fees  models.FeeData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := withTimeout(gctx, p.timeouts, OpBlock, p.source.GetLatestBlock)
		if err != nil {
			return utils.DataUnavailable("latest block", err)
		}
		block = b
		return nil
	})
	g.Go(func() error {
		f, err := withTimeout(gctx, p.timeouts, OpFeeData, p.source.GetFeeData)
		if err != nil {
			return utils.DataUnavailable("fee data", err)
		}
		fees = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.FeeFeatures{}, err
	}

	utilization := block.Utilization()
	point := models.FeeHistoryPoint{
		BlockNumber: block.Number,
		BaseFee:     fees.BaseFee,
		PriorityFee: fees.PriorityFee,
		GasUsed:     block.GasUsed,
		Utilization: utilization,
		ObservedAt:  p.now(),
	}

	var (
		window []models.FeeHistoryPoint
		size   int
	)
	p.mu.Lock()
	if record {
		p.history.push(point)
		window = p.history.newest(p.config.HistoryWindow)
		size = p.history.len()
	} else {
		// Same window a recorded read would see, minus the eviction.
		window = []models.FeeHistoryPoint{point}
		if p.config.HistoryWindow > 1 && p.history.len() > 0 {
			window = append(window, p.history.newest(p.config.HistoryWindow-1)...)
		}
		size = min(p.history.len()+1, p.config.HistorySize)
	}
	p.mu.Unlock()

	avgGas, avgUtil, volatility := windowStats(window)
	return models.FeeFeatures{
		BlockNumber:       block.Number,
		GasUtilization:    utilization,
		BaseFee:           fees.BaseFee,
		PriorityFee:       fees.PriorityFee,
		Congestion:        models.CongestionFromUtilization(utilization),
		TradeSizeUSD:      req.TradeSizeUSD,
		ExpectedProfitUSD: req.ExpectedProfitUSD,
		RecentAvgGasUsed:  avgGas,
		RecentUtilization: avgUtil,
		FeeVolatility:     volatility,
		HistorySize:       size,
	}, nil
}

// windowStats returns mean gas used, mean utilization and the coefficient of
// variation of base fees over window.
func windowStats(window []models.FeeHistoryPoint) (float64, float64, float64) {
	if len(window) == 0 {
		return 0, 0, 0
	}
	n := float64(len(window))
	var gas, util, fee float64
	for _, pt := range window {
		gas += float64(pt.GasUsed)
		util += pt.Utilization
		fee += pt.BaseFee
	}
	meanFee := fee / n

	var variance float64
	for _, pt := range window {
		d := pt.BaseFee - meanFee
		variance += d * d
	}
	variance /= n

	volatility := 0.0
	if meanFee > 0 {
		volatility = math.Sqrt(variance) / meanFee
	}
	return gas / n, util / n, volatility
}

// PredictFromFeatures applies the rule-based fee model.
func (p *FeeParameterPredictor) PredictFromFeatures(f models.FeeFeatures) models.FeeEstimate {
	gasLimit := float64(p.config.BaseGasLimit)
	switch {
	case f.TradeSizeUSD >= p.config.VeryLargeTradeUSD:
		gasLimit *= 1.2
	case f.TradeSizeUSD >= p.config.LargeTradeUSD:
		gasLimit *= 1.1
	}

	baseMult, priorityMult := congestionMultipliers(f.Congestion)
	priority := f.PriorityFee * priorityMult
	price := f.BaseFee*baseMult + priority

	if f.GasUtilization > p.config.HighUtilization {
		price *= 1.1
	}

	switch {
	case f.ExpectedProfitUSD >= p.config.HighProfitUSD:
		price *= 1.2
		priority *= 1.3
	case f.ExpectedProfitUSD < p.config.LowProfitUSD:
		gasLimit *= 0.9
		price *= 0.9
	}

	estimate := clampEstimate(gasLimit, price, priority)
	estimate.Confidence = p.confidence(f)
	estimate.Source = models.FeeSourcePredicted
	return estimate
}

func (p *FeeParameterPredictor) confidence(f models.FeeFeatures) float64 {
	c := p.config.BaseConfidence
	c -= math.Min(f.FeeVolatility, 1) * 0.5

	switch f.Congestion {
	case models.CongestionCritical:
		c -= 0.15
	case models.CongestionHigh:
		c -= 0.05
	}

	if window := p.config.HistoryWindow; f.HistorySize < window {
		c -= 0.2 * (1 - float64(f.HistorySize)/float64(window))
	}
	return clampFloat(c, 0.1, 0.95)
}

// LiveEstimate derives parameters straight from the observed fee market:
// price is 2x base fee plus the tip, the gas limit grows with recent
// utilization above half-full blocks.
func (p *FeeParameterPredictor) LiveEstimate(f models.FeeFeatures) models.FeeEstimate {
	gasLimit := float64(p.config.LiveGasLimit)
	if f.RecentUtilization > 0.5 {
		gasLimit *= 1 + (f.RecentUtilization - 0.5)
	}
	estimate := clampEstimate(gasLimit, 2*f.BaseFee+f.PriorityFee, f.PriorityFee)
	estimate.Confidence = 1
	estimate.Source = models.FeeSourceLive
	return estimate
}

// Blend returns the weighted average w*predicted + (1-w)*live of gas limit,
// gas price and priority fee, with w = predicted.Confidence unless a
// PredictionWeight is configured.
func (p *FeeParameterPredictor) Blend(predicted, live models.FeeEstimate) models.FeeEstimate {
	w := predicted.Confidence
	if p.config.PredictionWeight > 0 {
		w = p.config.PredictionWeight
	}
	w = clampFloat(w, 0, 1)

	gasLimit := w*float64(predicted.GasLimit) + (1-w)*float64(live.GasLimit)
	return models.FeeEstimate{
		GasLimit:    uint64(math.Round(gasLimit)),
		GasPrice:    w*predicted.GasPrice + (1-w)*live.GasPrice,
		PriorityFee: w*predicted.PriorityFee + (1-w)*live.PriorityFee,
		Confidence:  predicted.Confidence,
		Source:      models.FeeSourceBlended,
	}
}

// Predict returns the blended estimate for req, or FallbackFeeEstimate when
// the fee market cannot be read.
func (p *FeeParameterPredictor) Predict(ctx context.Context, req models.FeeRequest) models.FeeEstimate {
	estimate, _, _ := p.PredictDetailed(ctx, req)
	return estimate
}

// PredictDetailed is Predict that also returns the features used. On
// fallback the features are nil and the extraction error is returned
// alongside the fallback estimate.
func (p *FeeParameterPredictor) PredictDetailed(ctx context.Context, req models.FeeRequest) (models.FeeEstimate, *models.FeeFeatures, error) {
	return p.predict(ctx, req, true)
}

// Quote is PredictDetailed without appending to the fee history. Cost
// estimates that run per request use it so they do not skew the window.
func (p *FeeParameterPredictor) Quote(ctx context.Context, req models.FeeRequest) (models.FeeEstimate, error) {
	estimate, _, err := p.predict(ctx, req, false)
	return estimate, err
}

func (p *FeeParameterPredictor) predict(ctx context.Context, req models.FeeRequest, record bool) (models.FeeEstimate, *models.FeeFeatures, error) {
	features, err := p.extract(ctx, req, record)
	if err != nil {
		p.collector.RecordFeeFallback()
		p.logger.WithFields(logrus.Fields{
			"error":          err.Error(),
			"trade_size_usd": req.TradeSizeUSD,
		}).Warn("Fee feature extraction failed, using fallback estimate")
		return FallbackFeeEstimate, nil, err
	}

	predicted := p.PredictFromFeatures(features)
	live := p.LiveEstimate(features)
	blended := p.Blend(predicted, live)

	p.logger.WithFields(logrus.Fields{
		"block":        features.BlockNumber,
		"congestion":   features.Congestion,
		"gas_limit":    blended.GasLimit,
		"gas_price":    blended.GasPrice,
		"priority_fee": blended.PriorityFee,
		"confidence":   blended.Confidence,
	}).Debug("Fee parameters predicted")
	return blended, &features, nil
}

// History returns up to limit fee observations, newest first.
func (p *FeeParameterPredictor) History(limit int) []models.FeeHistoryPoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.newest(limit)
}

func clampEstimate(gasLimit, price, priority float64) models.FeeEstimate {
	gasLimit = clampFloat(gasLimit, float64(MinGasLimit), float64(MaxGasLimit))
	price = clampFloat(price, MinGasPrice, MaxGasPrice)
	priority = clampFloat(priority, 0, 0.5*price)
	return models.FeeEstimate{
		GasLimit:    uint64(math.Round(gasLimit)),
		GasPrice:    price,
		PriorityFee: priority,
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
