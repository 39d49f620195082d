package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/cache"
	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// EngineConfig bundles the configuration of every pipeline stage.
type EngineConfig struct {
	Detector     DetectorConfig
	Routing      RouteConfig
	Fees         FeeConfig
	Strategy     StrategyConfig
	Orchestrator OrchestratorConfig
	Timeouts     TimeoutConfig
	Breaker      CircuitBreakerConfig
}

// EngineDeps are the external collaborators of the engine. Quotes, Venues
// and FeeData are required.
type EngineDeps struct {
	Quotes    QuoteProvider
	Venues    VenueRegistry
	FeeData   FeeDataProvider
	Pricer    TokenPricer
	GasCost   GasCostEstimator
	Cache     cache.Store
	Collector *metrics.Collector
}

// EngineStats is a point-in-time snapshot across all stages.
type EngineStats struct {
	Running        bool                     `json:"running"`
	UptimeSeconds  float64                  `json:"uptime_seconds"`
	Detector       models.DetectorStats     `json:"detector"`
	Routes         models.RouteStats        `json:"routes"`
	RouteCache     cache.StoreStats         `json:"route_cache"`
	Optimization   models.OptimizationStats `json:"optimization"`
	OpenBreakers   []string                 `json:"open_breakers"`
	ActiveCalls    int                      `json:"active_calls"`
	TimedOutCalls  int64                    `json:"timed_out_calls"`
	FeeHistorySize int                      `json:"fee_history_size"`
}

// ArbitrageEngine wires detection, route search, fee prediction and
// optimization into one facade.
type ArbitrageEngine struct {
	detector     *OpportunityDetector
	routes       *RouteEvaluator
	predictor    *FeeParameterPredictor
	selector     *StrategySelector
	orchestrator *OptimizationOrchestrator
	timeouts     *TimeoutManager
	breakers     *CircuitBreakerManager
	logger       *logrus.Logger
	now          func() time.Time

	mu        sync.Mutex
	running   bool
	stopped   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewArbitrageEngine builds the pipeline. When no GasCostEstimator is given
// the detector prices gas from the fee predictor.
func NewArbitrageEngine(cfg EngineConfig, deps EngineDeps, logger *logrus.Logger) (*ArbitrageEngine, error) {
	if deps.FeeData == nil {
		return nil, errors.New("arbitrage engine requires a fee data provider")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Pricer == nil {
		deps.Pricer = NewStaticTokenPricer(nil)
	}

	timeouts := NewTimeoutManager(cfg.Timeouts.WithDefaults(), logger)
	breakers := NewCircuitBreakerManager(cfg.Breaker, logger)

	routes, err := NewRouteEvaluator(cfg.Routing, RouteEvaluatorDeps{
		Quotes:    deps.Quotes,
		Venues:    deps.Venues,
		Pricer:    deps.Pricer,
		Cache:     deps.Cache,
		Breakers:  breakers,
		Timeouts:  timeouts,
		Collector: deps.Collector,
	}, logger)
	if err != nil {
		return nil, err
	}

	predictor := NewFeeParameterPredictor(cfg.Fees, deps.FeeData, timeouts, deps.Collector, logger)
	selector := NewStrategySelector(cfg.Strategy, logger)
	orchestrator, err := NewOptimizationOrchestrator(cfg.Orchestrator, selector, predictor, timeouts, deps.Collector, logger)
	if err != nil {
		return nil, err
	}

	gasCost := deps.GasCost
	if gasCost == nil {
		gasCost = &feeMarketGasCost{
			predictor:   predictor,
			pricer:      deps.Pricer,
			nativeToken: routes.config.NativeToken,
			timeouts:    timeouts,
		}
	}
	detector := NewOpportunityDetector(cfg.Detector, gasCost, deps.Collector, logger)

	return &ArbitrageEngine{
		detector:     detector,
		routes:       routes,
		predictor:    predictor,
		selector:     selector,
		orchestrator: orchestrator,
		timeouts:     timeouts,
		breakers:     breakers,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Start launches the optimization worker and the route cache janitor.
func (e *ArbitrageEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.startedAt = e.now()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.routes.RunJanitor(ctx)
	}()
	e.orchestrator.Start()

	e.logger.Info("Arbitrage engine started")
}

// Stop halts background work. Queued optimizations resolve to fallback
// results; the engine cannot be restarted.
func (e *ArbitrageEngine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if !wasRunning {
		e.orchestrator.Stop()
		return
	}

	e.wg.Wait()
	e.orchestrator.Stop()
	e.timeouts.Shutdown()
	e.logger.Info("Arbitrage engine stopped")
}

// DetectArbitrage compares two quotes for pair. It returns nil for invalid quotes.
func (e *ArbitrageEngine) DetectArbitrage(quoteA, quoteB models.PriceQuote, pair models.TokenPair) *models.Opportunity {
	return e.detector.Detect(quoteA, quoteB, pair)
}

// EstimateNetProfit prices gas and slippage for trading opp with tradeAmount.
func (e *ArbitrageEngine) EstimateNetProfit(ctx context.Context, opp *models.Opportunity, tradeAmount decimal.Decimal) models.NetProfitEstimate {
	return e.detector.EstimateNetProfit(ctx, opp, tradeAmount)
}

// OpportunityHistory returns up to limit detections, newest first.
func (e *ArbitrageEngine) OpportunityHistory(limit int) []models.Opportunity {
	return e.detector.History(limit)
}

// FindOptimalRoute returns the best route from tokenA to tokenB.
func (e *ArbitrageEngine) FindOptimalRoute(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) (*models.RouteEvaluation, error) {
	return e.routes.FindOptimalRoute(ctx, tokenA, tokenB, amountIn, opts)
}

// FindArbitrageRoutes returns profitable cross-venue round trips, best first.
func (e *ArbitrageEngine) FindArbitrageRoutes(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal) ([]models.ArbitrageRoute, error) {
	return e.routes.FindArbitrageRoutes(ctx, tokenA, tokenB, amountIn)
}

// PredictFees returns the blended fee estimate for req.
func (e *ArbitrageEngine) PredictFees(ctx context.Context, req models.FeeRequest) models.FeeEstimate {
	return e.predictor.Predict(ctx, req)
}

// OptimizeTransaction runs one optimization and waits for it. It never fails.
func (e *ArbitrageEngine) OptimizeTransaction(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *models.OptimizationResult {
	return e.orchestrator.OptimizeTransaction(ctx, data, opts)
}

// SubmitOptimization queues an optimization without waiting.
func (e *ArbitrageEngine) SubmitOptimization(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *OptimizationHandle {
	return e.orchestrator.Submit(ctx, data, opts)
}

// AddCompletionListener registers l for every completed optimization.
func (e *ArbitrageEngine) AddCompletionListener(l CompletionListener) {
	e.orchestrator.AddListener(l)
}

// GetStats returns a snapshot across all stages.
func (e *ArbitrageEngine) GetStats() EngineStats {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	e.mu.Unlock()

	uptime := 0.0
	if running {
		uptime = e.now().Sub(startedAt).Seconds()
	}
	open := e.breakers.OpenBreakers()
	if open == nil {
		open = []string{}
	}

	return EngineStats{
		Running:        running,
		UptimeSeconds:  uptime,
		Detector:       e.detector.Stats(),
		Routes:         e.routes.Stats(),
		RouteCache:     e.routes.CacheStats(),
		Optimization:   e.orchestrator.Stats(),
		OpenBreakers:   open,
		ActiveCalls:    e.timeouts.GetActiveOperationCount(),
		TimedOutCalls:  e.timeouts.TimeoutCount(),
		FeeHistorySize: len(e.predictor.History(0)),
	}
}

// feeMarketGasCost prices one swap from the predicted fee parameters and the
// native token price.
type feeMarketGasCost struct {
	predictor   *FeeParameterPredictor
	pricer      TokenPricer
	nativeToken string
	timeouts    *TimeoutManager
}

func (g *feeMarketGasCost) EstimateGasCostUSD(ctx context.Context) (decimal.Decimal, error) {
	estimate, err := g.predictor.Quote(ctx, models.FeeRequest{})
	if err != nil {
		return decimal.Zero, err
	}
	nativeUSD, err := withTimeout(ctx, g.timeouts, OpTokenPrice, func(ctx context.Context) (decimal.Decimal, error) {
		return g.pricer.GetTokenPriceUSD(ctx, g.nativeToken)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return nativeCost(float64(estimate.GasLimit), estimate.GasPrice).Mul(nativeUSD), nil
}
