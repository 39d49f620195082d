package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/telemetry"
	"github.com/irfndi/celebrum-arb-go/internal/utils"
)

const (
	// baselineGasMultiplier is the headroom a naive submission would add.
	baselineGasMultiplier = 1.3
	// baseTxGas is the intrinsic gas of one transaction, shared by a batch.
	baseTxGas = 21000
	// mevSlippageThreshold marks routes whose price impact invites sandwiching.
	mevSlippageThreshold = 0.01
)

var (
	errOrchestratorStopped = errors.New("orchestrator stopped")
	errNoCongestionData    = errors.New("no congestion data")
)

// OrchestratorConfig holds configuration for the optimization orchestrator
type OrchestratorConfig struct {
	QueueSize         int     `mapstructure:"queue_size"`
	SuccessSavingsPct float64 `mapstructure:"success_savings_pct"`
}

// DefaultOrchestratorConfig returns the orchestrator defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		QueueSize:         100,
		SuccessSavingsPct: 5,
	}
}

// OptimizationHandle is the pending result of one submitted optimization.
type OptimizationHandle struct {
	sequence uint64
	done     chan struct{}

	mu     sync.RWMutex
	state  models.OptimizationState
	result *models.OptimizationResult
}

func newOptimizationHandle(sequence uint64) *OptimizationHandle {
	return &OptimizationHandle{
		sequence: sequence,
		done:     make(chan struct{}),
		state:    models.OptimizationQueued,
	}
}

// Sequence returns the submission order of the request, starting at 1.
func (h *OptimizationHandle) Sequence() uint64 { return h.sequence }

// Done is closed once the result is available.
func (h *OptimizationHandle) Done() <-chan struct{} { return h.done }

// State returns the current lifecycle state.
func (h *OptimizationHandle) State() models.OptimizationState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Result returns the result, or nil while the request is pending.
func (h *OptimizationHandle) Result() *models.OptimizationResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

// Wait blocks until the result is available or ctx is done.
func (h *OptimizationHandle) Wait(ctx context.Context) (*models.OptimizationResult, error) {
	select {
	case <-h.done:
		return h.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *OptimizationHandle) setRunning() {
	h.mu.Lock()
	h.state = models.OptimizationRunning
	h.mu.Unlock()
}

func (h *OptimizationHandle) resolve(result *models.OptimizationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.IsTerminal() {
		return
	}
	h.result = result
	h.state = models.OptimizationCompleted
	if result.FallbackUsed {
		h.state = models.OptimizationFallbackCompleted
	}
	close(h.done)
}

type optimizationJob struct {
	ctx    context.Context
	data   models.OpportunityData
	opts   models.OptimizeOptions
	handle *OptimizationHandle
}

// optimizationRun is the working state threaded through the plan steps.
type optimizationRun struct {
	data     models.OpportunityData
	opts     models.OptimizeOptions
	plan     models.OptimizationPlan
	estimate models.FeeEstimate
	live     models.FeeEstimate
	features *models.FeeFeatures
	params   models.FeeParameters
	applied  []models.AppliedOptimization
	warnings []string
}

func (r *optimizationRun) congestion() models.CongestionLevel {
	if r.opts.Conditions.Congestion != "" {
		return r.opts.Conditions.Congestion
	}
	if r.features != nil {
		return r.features.Congestion
	}
	return ""
}

func (r *optimizationRun) warn(format string, args ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

type stepFunc func(ctx context.Context, run *optimizationRun) error

// OptimizationOrchestrator runs optimization plans one at a time, in
// submission order, on a single worker goroutine.
type OptimizationOrchestrator struct {
	config    OrchestratorConfig
	selector  *StrategySelector
	predictor *FeeParameterPredictor
	timeouts  *TimeoutManager
	collector *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time
	steps     map[models.StepName]stepFunc

	submitMu sync.Mutex
	sequence uint64
	closed   bool
	queue    chan *optimizationJob

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	listenersMu sync.RWMutex
	listeners   []CompletionListener

	statsMu       sync.RWMutex
	stats         models.OptimizationStats
	savingsPctSum float64
}

// NewOptimizationOrchestrator creates an orchestrator. The worker does not
// run until Start is called; submissions queue up to QueueSize.
func NewOptimizationOrchestrator(cfg OrchestratorConfig, selector *StrategySelector, predictor *FeeParameterPredictor, timeouts *TimeoutManager, collector *metrics.Collector, logger *logrus.Logger) (*OptimizationOrchestrator, error) {
	if predictor == nil {
		return nil, fmt.Errorf("optimization orchestrator: fee predictor is required")
	}
	defaults := DefaultOrchestratorConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.SuccessSavingsPct <= 0 {
		cfg.SuccessSavingsPct = defaults.SuccessSavingsPct
	}
	if logger == nil {
		logger = logrus.New()
	}
	if selector == nil {
		selector = NewStrategySelector(StrategyConfig{}, logger)
	}
	if timeouts == nil {
		timeouts = NewTimeoutManager(nil, logger)
	}

	o := &OptimizationOrchestrator{
		config:    cfg,
		selector:  selector,
		predictor: predictor,
		timeouts:  timeouts,
		collector: collector,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan *optimizationJob, cfg.QueueSize),
		stop:      make(chan struct{}),
		stats:     models.OptimizationStats{TotalSavings: decimal.Zero},
	}
	o.steps = map[models.StepName]stepFunc{
		models.StepGasEstimation:        o.estimateGas,
		models.StepFeePriceOptimization: o.optimizeFeePrice,
		models.StepGasLimitOptimization: o.optimizeGasLimit,
		models.StepBatchOptimization:    o.optimizeBatch,
		models.StepTimingOptimization:   o.optimizeTiming,
		models.StepMEVAnalysis:          o.analyzeMEV,
	}
	return o, nil
}

// AddListener registers l to receive every completed result, in completion order.
func (o *OptimizationOrchestrator) AddListener(l CompletionListener) {
	o.listenersMu.Lock()
	o.listeners = append(o.listeners, l)
	o.listenersMu.Unlock()
}

// Start launches the worker. It is safe to call more than once.
func (o *OptimizationOrchestrator) Start() {
	o.startOnce.Do(func() {
		o.wg.Add(1)
		go o.worker()
		o.logger.WithField("queue_size", o.config.QueueSize).Info("Optimization orchestrator started")
	})
}

// Stop rejects new submissions, waits for the running optimization and
// resolves everything still queued with a fallback result.
func (o *OptimizationOrchestrator) Stop() {
	o.stopOnce.Do(func() {
		// Closing stop first releases a Submit blocked on a full queue,
		// which holds submitMu.
		close(o.stop)
		o.submitMu.Lock()
		o.closed = true
		o.submitMu.Unlock()

		o.wg.Wait()

		drained := 0
		for {
			select {
			case job := <-o.queue:
				o.finish(job.handle, o.fallbackResult("", job.data.ID, errOrchestratorStopped, nil))
				drained++
			default:
				o.logger.WithField("drained", drained).Info("Optimization orchestrator stopped")
				return
			}
		}
	})
}

func (o *OptimizationOrchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case job := <-o.queue:
			o.process(job)
		}
	}
}

// Submit queues an optimization and returns its handle. Submissions after
// Stop, or whose ctx ends before a queue slot frees up, resolve immediately
// to an uncounted fallback result.
func (o *OptimizationOrchestrator) Submit(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *OptimizationHandle {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	o.sequence++
	h := newOptimizationHandle(o.sequence)
	if o.closed {
		o.reject(h, data, errOrchestratorStopped)
		return h
	}

	job := &optimizationJob{ctx: ctx, data: data, opts: opts, handle: h}
	select {
	case o.queue <- job:
	case <-o.stop:
		o.reject(h, data, errOrchestratorStopped)
	case <-ctx.Done():
		o.reject(h, data, ctx.Err())
	}
	return h
}

func (o *OptimizationOrchestrator) reject(h *OptimizationHandle, data models.OpportunityData, err error) {
	result := o.fallbackResult("", data.ID, err, nil)
	result.Sequence = h.sequence
	h.resolve(result)
}

// OptimizeTransaction submits and waits. It always returns a result; any
// failure yields a FALLBACK result carrying the error.
func (o *OptimizationOrchestrator) OptimizeTransaction(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *models.OptimizationResult {
	h := o.Submit(ctx, data, opts)
	result, err := h.Wait(ctx)
	if err != nil {
		result = o.fallbackResult("", data.ID, err, nil)
		result.Sequence = h.Sequence()
	}
	return result
}

func (o *OptimizationOrchestrator) process(job *optimizationJob) {
	job.handle.setRunning()
	start := o.now()

	ctx, span := telemetry.TraceOptimization(job.ctx, job.data.ID, job.handle.sequence)
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.TimeoutFor(OpOptimization))
	result := o.execute(ctx, job.data, job.opts)
	cancel()

	result.Sequence = job.handle.sequence
	result.CompletedAt = o.now()
	result.Duration = result.CompletedAt.Sub(start)

	telemetry.RecordOptimization(span, result)
	var spanErr error
	if result.Error != "" {
		spanErr = errors.New(result.Error)
	}
	telemetry.EndSpan(span, spanErr)

	o.finish(job.handle, result)
}

func (o *OptimizationOrchestrator) finish(h *OptimizationHandle, result *models.OptimizationResult) {
	if result.Sequence == 0 {
		result.Sequence = h.sequence
	}
	o.recordResult(result)
	o.collector.RecordOptimization(result.FallbackUsed, result.Duration)
	h.resolve(result)

	o.listenersMu.RLock()
	listeners := o.listeners
	o.listenersMu.RUnlock()
	for _, l := range listeners {
		o.notify(l, result)
	}

	o.logger.WithFields(logrus.Fields{
		"sequence":       result.Sequence,
		"opportunity_id": result.OpportunityID,
		"strategy":       result.Strategy,
		"fallback_used":  result.FallbackUsed,
		"savings_pct":    result.SavingsPercentage,
		"duration_ms":    result.Duration.Milliseconds(),
	}).Info("Optimization completed")
}

func (o *OptimizationOrchestrator) notify(l CompletionListener, result *models.OptimizationResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", fmt.Sprint(r)).Error("Completion listener panicked")
		}
	}()
	l.OnOptimizationComplete(result)
}

// execute runs the plan for one request. A failing required step switches
// to the fallback result; a failing optional step only adds a warning.
// Primary-path failures are a required step's error or panic and the run
// deadline; an unreachable fee market in gas_estimation is only a warning.
func (o *OptimizationOrchestrator) execute(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *models.OptimizationResult {
	strategy := o.selector.Select(data, opts.Conditions, opts.StrategyOverride)
	plan := o.selector.CreatePlan(strategy, data, opts)
	run := &optimizationRun{data: data, opts: opts, plan: plan}
	if threshold := plan.Targets.ProfitThreshold; data.ProfitMarginPct.LessThan(threshold) {
		run.warn("profit margin %s%% below %s threshold %s%%", data.ProfitMarginPct.String(), strategy.Name, threshold.String())
	}

	for _, step := range plan.Steps {
		err := o.runStep(ctx, step.Name, run)
		if err == nil {
			continue
		}
		if step.Required {
			o.logger.WithFields(logrus.Fields{
				"plan_id": plan.ID,
				"step":    step.Name,
				"error":   err.Error(),
			}).Warn("Required optimization step failed, using fallback")
			return o.fallbackResult(plan.ID, data.ID, fmt.Errorf("%w: %s: %v", utils.ErrOptimizationFailed, step.Name, err), run.warnings)
		}
		o.logger.WithFields(logrus.Fields{
			"plan_id": plan.ID,
			"step":    step.Name,
			"error":   err.Error(),
		}).Debug("Optional optimization step skipped")
		run.warn("%s skipped: %v", step.Name, err)
	}
	return o.assemble(run)
}

func (o *OptimizationOrchestrator) runStep(ctx context.Context, name models.StepName, run *optimizationRun) (err error) {
	fn, ok := o.steps[name]
	if !ok {
		return fmt.Errorf("no handler for step %s", name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, run)
}

func (o *OptimizationOrchestrator) estimateGas(ctx context.Context, run *optimizationRun) error {
	req := models.FeeRequest{
		TradeSizeUSD:      run.data.TradeValueUSD.InexactFloat64(),
		ExpectedProfitUSD: run.data.ExpectedProfitUSD.InexactFloat64(),
	}
	estimate, features, err := o.predictor.PredictDetailed(ctx, req)
	run.estimate = estimate
	run.features = features
	if err != nil {
		run.live = estimate
		run.warn("fee market unavailable, using fallback fee estimate")
	} else {
		run.live = o.predictor.LiveEstimate(*features)
	}
	run.params = models.FeeParameters{
		GasLimit:    estimate.GasLimit,
		GasPrice:    estimate.GasPrice,
		PriorityFee: estimate.PriorityFee,
	}
	return nil
}

func priorityMultiplier(p models.PriorityClass) float64 {
	switch p {
	case models.PriorityLow:
		return 0.8
	case models.PriorityHigh:
		return 1.1
	case models.PriorityUrgent:
		return 1.25
	default:
		return 1.0
	}
}

func (o *OptimizationOrchestrator) optimizeFeePrice(_ context.Context, run *optimizationRun) error {
	strategy := run.plan.Strategy
	priority := run.estimate.PriorityFee * priorityMultiplier(strategy.Priority)
	price := run.estimate.GasPrice + (priority - run.estimate.PriorityFee)

	if maxPrice := run.plan.Targets.MaxGasPrice; maxPrice > 0 && price > maxPrice {
		run.warn("gas price capped at strategy maximum %.2f gwei", maxPrice)
		price = maxPrice
	}
	price = math.Max(price, MinGasPrice)
	priority = clampFloat(priority, 0, 0.5*price)

	run.params.GasPrice = price
	run.params.PriorityFee = priority

	if saved := (run.live.GasPrice - price) * float64(run.estimate.GasLimit); saved > 0 {
		run.applied = append(run.applied, models.AppliedOptimization{
			Name:        models.StepFeePriceOptimization,
			Description: fmt.Sprintf("gas price %.2f gwei against live %.2f gwei", price, run.live.GasPrice),
			SavingsGwei: saved,
		})
	}
	return nil
}

// gasBuffer returns the gas limit headroom as a fraction.
func gasBuffer(risk models.RiskTolerance, congestion models.CongestionLevel, complexity float64) float64 {
	var buffer float64
	switch risk {
	case models.RiskLow:
		buffer = 0.25
	case models.RiskHigh:
		buffer = 0.08
	default:
		buffer = 0.15
	}
	switch congestion {
	case models.CongestionHigh, models.CongestionCritical:
		buffer += 0.05
	case models.CongestionLow:
		buffer -= 0.05
	}
	return buffer + 0.10*clampFloat(complexity, 0, 1)
}

// complexityScore rates a transaction in [0, 1] by hop count, distinct
// venues and trade size relative to the large-trade band.
func (o *OptimizationOrchestrator) complexityScore(data models.OpportunityData) float64 {
	hops := math.Min(float64(data.HopCount()-1)/3, 1)
	venues := math.Min(float64(data.VenueCount()-1)/3, 1)
	size := 0.0
	if large := o.selector.config.LargeTradeValueUSD; large.IsPositive() {
		size = math.Min(data.TradeValueUSD.Div(large).InexactFloat64(), 1)
	}
	return clampFloat(0.4*hops+0.3*venues+0.3*size, 0, 1)
}

func (o *OptimizationOrchestrator) optimizeGasLimit(_ context.Context, run *optimizationRun) error {
	base := run.estimate.GasLimit
	if run.opts.TargetGasLimit > 0 {
		base = run.opts.TargetGasLimit
	}
	if base == 0 {
		return fmt.Errorf("no gas estimate")
	}

	complexity := o.complexityScore(run.data)
	buffer := gasBuffer(run.plan.Strategy.RiskTolerance, run.congestion(), complexity)
	limit := uint64(math.Round(float64(base) * (1 + buffer)))
	run.params.GasLimit = limit

	baseline := math.Round(float64(run.estimate.GasLimit) * baselineGasMultiplier)
	if saved := baseline - float64(limit); saved > 0 {
		run.applied = append(run.applied, models.AppliedOptimization{
			Name:        models.StepGasLimitOptimization,
			Description: fmt.Sprintf("gas limit %d with %.1f%% buffer", limit, buffer*100),
			SavingsGwei: saved * run.params.GasPrice,
		})
	}
	return nil
}

func (o *OptimizationOrchestrator) optimizeBatch(_ context.Context, run *optimizationRun) error {
	n := uint64(run.opts.BatchSize)
	if n < 2 {
		return nil
	}
	shared := baseTxGas * (n - 1) / n
	if run.params.GasLimit <= shared {
		return fmt.Errorf("gas limit %d too small to batch", run.params.GasLimit)
	}
	run.params.GasLimit -= shared
	run.applied = append(run.applied, models.AppliedOptimization{
		Name:        models.StepBatchOptimization,
		Description: fmt.Sprintf("intrinsic gas shared across %d transactions", n),
		SavingsGwei: float64(shared) * run.params.GasPrice,
	})
	return nil
}

func (o *OptimizationOrchestrator) optimizeTiming(_ context.Context, run *optimizationRun) error {
	congestion := run.congestion()
	if congestion == "" {
		return errNoCongestionData
	}
	if run.plan.Strategy.Priority == models.PriorityUrgent {
		return nil
	}

	switch congestion {
	case models.CongestionHigh, models.CongestionCritical:
		run.warn("network congestion %s, delaying submission would lower fees", congestion)
	case models.CongestionLow:
		tip := run.params.PriorityFee * 0.2
		run.params.PriorityFee -= tip
		run.params.GasPrice = math.Max(run.params.GasPrice-tip, MinGasPrice)
		run.applied = append(run.applied, models.AppliedOptimization{
			Name:        models.StepTimingOptimization,
			Description: "reduced priority fee for a quiet network",
			SavingsGwei: tip * float64(run.params.GasLimit),
		})
	}
	return nil
}

func (o *OptimizationOrchestrator) analyzeMEV(_ context.Context, run *optimizationRun) error {
	exposed := run.data.TradeValueUSD.GreaterThanOrEqual(o.selector.config.LargeTradeValueUSD)
	if route := run.data.Route; route != nil && route.TotalSlippage.GreaterThan(decimal.NewFromFloat(mevSlippageThreshold)) {
		exposed = true
	}

	description := "low MEV exposure"
	if exposed {
		description = "high MEV exposure"
		run.warn("high MEV exposure, prefer private transaction submission")
	}
	run.applied = append(run.applied, models.AppliedOptimization{
		Name:        models.StepMEVAnalysis,
		Description: description,
	})
	return nil
}

// nativeCost converts gas * gwei into native units.
func nativeCost(gas, priceGwei float64) decimal.Decimal {
	return decimal.NewFromFloat(gas).Mul(decimal.NewFromFloat(priceGwei)).Div(decimal.NewFromInt(1_000_000_000))
}

func (o *OptimizationOrchestrator) assemble(run *optimizationRun) *models.OptimizationResult {
	baselineGas := math.Round(float64(run.estimate.GasLimit) * baselineGasMultiplier)
	baseline := nativeCost(baselineGas, run.live.GasPrice)
	optimized := nativeCost(float64(run.params.GasLimit), run.params.GasPrice)

	savings := baseline.Sub(optimized)
	if savings.IsNegative() {
		run.warn("optimized parameters cost more than the baseline")
		savings = decimal.Zero
	}
	pct := 0.0
	if baseline.IsPositive() {
		pct = savings.Div(baseline).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	applied := run.applied
	if applied == nil {
		applied = []models.AppliedOptimization{}
	}
	warnings := run.warnings
	if warnings == nil {
		warnings = []string{}
	}
	return &models.OptimizationResult{
		PlanID:            run.plan.ID,
		OpportunityID:     run.data.ID,
		Strategy:          run.plan.Strategy.Name,
		FeeParameters:     run.params,
		FeeSource:         run.estimate.Source,
		BaselineCost:      baseline,
		OptimizedCost:     optimized,
		Savings:           savings,
		SavingsPercentage: pct,
		Optimizations:     applied,
		Warnings:          warnings,
	}
}

func (o *OptimizationOrchestrator) fallbackResult(planID, opportunityID string, err error, warnings []string) *models.OptimizationResult {
	fb := FallbackFeeEstimate
	cost := nativeCost(float64(fb.GasLimit), fb.GasPrice)
	if warnings == nil {
		warnings = []string{}
	}
	return &models.OptimizationResult{
		PlanID:        planID,
		OpportunityID: opportunityID,
		Strategy:      models.FallbackStrategyName,
		FeeParameters: models.FeeParameters{
			GasLimit:    fb.GasLimit,
			GasPrice:    fb.GasPrice,
			PriorityFee: fb.PriorityFee,
		},
		FeeSource:     fb.Source,
		BaselineCost:  cost,
		OptimizedCost: cost,
		Savings:       decimal.Zero,
		Optimizations: []models.AppliedOptimization{},
		Warnings:      warnings,
		FallbackUsed:  true,
		Error:         err.Error(),
		CompletedAt:   o.now(),
	}
}

// recordResult folds one completed attempt into the running aggregates.
func (o *OptimizationOrchestrator) recordResult(result *models.OptimizationResult) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	o.stats.TotalAttempts++
	if result.FallbackUsed {
		o.stats.FallbackAttempts++
	}
	if result.SavingsPercentage > o.config.SuccessSavingsPct {
		o.stats.SuccessfulAttempts++
	}
	o.stats.TotalSavings = o.stats.TotalSavings.Add(result.Savings)
	if result.SavingsPercentage > o.stats.BestSavingsPercentage {
		o.stats.BestSavingsPercentage = result.SavingsPercentage
	}
	o.savingsPctSum += result.SavingsPercentage
	o.stats.AvgSavingsPercentage = o.savingsPctSum / float64(o.stats.TotalAttempts)
}

// Stats returns a snapshot of the aggregates.
func (o *OptimizationOrchestrator) Stats() models.OptimizationStats {
	o.statsMu.RLock()
	stats := o.stats
	o.statsMu.RUnlock()
	stats.QueueDepth = len(o.queue)
	return stats
}
