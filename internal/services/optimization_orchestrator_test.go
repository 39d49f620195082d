package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// quietMarket serves a low-congestion fee market: 30% full blocks, 20 gwei
// base fee, 2 gwei tip.
func quietMarket() *MockFeeDataProvider {
	source := new(MockFeeDataProvider)
	source.On("GetLatestBlock", mock.Anything).Return(testBlock(9_000_000), nil)
	source.On("GetFeeData", mock.Anything).Return(models.FeeData{BaseFee: 20, PriorityFee: 2}, nil)
	return source
}

func newTestOrchestrator(t *testing.T, source FeeDataProvider, timeouts *TimeoutManager) *OptimizationOrchestrator {
	t.Helper()
	predictor := NewFeeParameterPredictor(FeeConfig{PredictionWeight: 0.5}, source, timeouts, nil, nil)
	o, err := NewOptimizationOrchestrator(OrchestratorConfig{QueueSize: 64}, NewStrategySelector(StrategyConfig{}, nil), predictor, timeouts, nil, nil)
	require.NoError(t, err)
	t.Cleanup(o.Stop)
	return o
}

func TestNewOptimizationOrchestrator_RequiresPredictor(t *testing.T) {
	_, err := NewOptimizationOrchestrator(OrchestratorConfig{}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestOptimizationOrchestrator_OptimizeTransaction(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	o.Start()

	result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
	require.NotNil(t, result)

	// Blended estimate is 375000 gas at 32 gwei with a 2 gwei tip; live
	// price is 42 gwei. PROFIT_MAXIMIZING lifts the tip by 10%.
	assert.Equal(t, "PROFIT_MAXIMIZING", result.Strategy)
	assert.False(t, result.FallbackUsed)
	assert.Empty(t, result.Error)
	assert.Equal(t, models.FeeSourceBlended, result.FeeSource)
	assert.InDelta(t, 32.2, result.FeeParameters.GasPrice, 1e-9)
	assert.InDelta(t, 2.2, result.FeeParameters.PriorityFee, 1e-9)
	// 15% medium-risk buffer, -5% quiet network, +0.3% complexity.
	assert.Equal(t, uint64(413625), result.FeeParameters.GasLimit)

	assert.InDelta(t, 0.020475, result.BaselineCost.InexactFloat64(), 1e-12)
	assert.InDelta(t, 413625*32.2/1e9, result.OptimizedCost.InexactFloat64(), 1e-12)
	expectedPct := (487500*42.0 - 413625*32.2) / (487500 * 42.0) * 100
	assert.InDelta(t, expectedPct, result.SavingsPercentage, 1e-6)
	assert.True(t, result.Savings.Equal(result.BaselineCost.Sub(result.OptimizedCost)))

	require.Len(t, result.Optimizations, 2)
	assert.Equal(t, models.StepFeePriceOptimization, result.Optimizations[0].Name)
	assert.InDelta(t, (42-32.2)*375000, result.Optimizations[0].SavingsGwei, 1e-6)
	assert.Equal(t, models.StepGasLimitOptimization, result.Optimizations[1].Name)

	assert.Equal(t, uint64(1), result.Sequence)
	assert.NotEmpty(t, result.PlanID)
	assert.Equal(t, "opp-1", result.OpportunityID)
	assert.False(t, result.CompletedAt.IsZero())
}

func TestOptimizationOrchestrator_OptionalSteps(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	o.Start()

	t.Run("batch and timing", func(t *testing.T) {
		result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{
			BatchSize: 4, EnableTiming: true,
		})

		require.False(t, result.FallbackUsed)
		// 21000 * 3/4 intrinsic gas shared.
		assert.Equal(t, uint64(413625-15750), result.FeeParameters.GasLimit)
		// Quiet network drops 20% of the tip.
		assert.InDelta(t, 1.76, result.FeeParameters.PriorityFee, 1e-9)
		assert.InDelta(t, 31.76, result.FeeParameters.GasPrice, 1e-9)
		require.Len(t, result.Optimizations, 4)
		assert.Equal(t, models.StepBatchOptimization, result.Optimizations[2].Name)
		assert.Equal(t, models.StepTimingOptimization, result.Optimizations[3].Name)
	})

	t.Run("mev exposure on large trade", func(t *testing.T) {
		result := o.OptimizeTransaction(context.Background(), opportunityData(60000, 1), models.OptimizeOptions{
			EnableMEVAnalysis: true,
		})

		require.False(t, result.FallbackUsed)
		assert.Equal(t, "BALANCED", result.Strategy)
		assert.Contains(t, result.Warnings, "high MEV exposure, prefer private transaction submission")
		last := result.Optimizations[len(result.Optimizations)-1]
		assert.Equal(t, models.StepMEVAnalysis, last.Name)
		assert.Equal(t, "high MEV exposure", last.Description)
	})

	t.Run("congested network warns instead of cutting the tip", func(t *testing.T) {
		result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 1), models.OptimizeOptions{
			EnableTiming: true,
			Conditions:   models.MarketConditions{Congestion: models.CongestionHigh},
		})

		require.False(t, result.FallbackUsed)
		assert.Contains(t, result.Warnings, "network congestion high, delaying submission would lower fees")
		// BALANCED: 15% buffer, +5% congestion, +0.3% complexity.
		assert.Equal(t, uint64(451125), result.FeeParameters.GasLimit)
	})

	t.Run("strategy cap on gas price", func(t *testing.T) {
		hot := new(MockFeeDataProvider)
		hot.On("GetLatestBlock", mock.Anything).Return(testBlock(9_000_000), nil)
		hot.On("GetFeeData", mock.Anything).Return(models.FeeData{BaseFee: 120, PriorityFee: 2}, nil)
		capped := newTestOrchestrator(t, hot, nil)
		capped.Start()

		result := capped.OptimizeTransaction(context.Background(), opportunityData(5000, 0.2), models.OptimizeOptions{})

		assert.Equal(t, "COST_MINIMIZING", result.Strategy)
		assert.Equal(t, 60.0, result.FeeParameters.GasPrice)
		assert.Contains(t, result.Warnings, "gas price capped at strategy maximum 60.00 gwei")
	})
}

func TestOptimizationOrchestrator_DegradedFeeMarket(t *testing.T) {
	source := new(MockFeeDataProvider)
	source.On("GetLatestBlock", mock.Anything).Return(models.BlockInfo{}, errors.New("rpc down"))
	source.On("GetFeeData", mock.Anything).Return(models.FeeData{}, errors.New("rpc down")).Maybe()

	o := newTestOrchestrator(t, source, nil)
	o.Start()

	result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{EnableTiming: true})

	assert.False(t, result.FallbackUsed, "fee fallback is not a failed plan")
	assert.Equal(t, "PROFIT_MAXIMIZING", result.Strategy)
	assert.Equal(t, models.FeeSourceFallback, result.FeeSource)
	assert.Contains(t, result.Warnings, "fee market unavailable, using fallback fee estimate")
	assert.Contains(t, result.Warnings, "timing_optimization skipped: no congestion data")
}

func TestOptimizationOrchestrator_RequiredStepFailure(t *testing.T) {
	tests := []struct {
		name    string
		step    models.StepName
		fn      stepFunc
		wantErr string
	}{
		{
			name:    "error",
			step:    models.StepGasLimitOptimization,
			fn:      func(context.Context, *optimizationRun) error { return errors.New("estimator crashed") },
			wantErr: "optimization failed: gas_limit_optimization: estimator crashed",
		},
		{
			name:    "panic",
			step:    models.StepFeePriceOptimization,
			fn:      func(context.Context, *optimizationRun) error { panic("nil pointer in fee model") },
			wantErr: "optimization failed: fee_price_optimization: step panicked: nil pointer in fee model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(t, quietMarket(), nil)
			o.steps[tt.step] = tt.fn
			o.Start()

			h := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
			result, err := h.Wait(context.Background())
			require.NoError(t, err)

			assert.Equal(t, models.OptimizationFallbackCompleted, h.State())
			assert.True(t, result.FallbackUsed)
			assert.Equal(t, models.FallbackStrategyName, result.Strategy)
			assert.Equal(t, tt.wantErr, result.Error)
			assert.Equal(t, models.FeeParameters{GasLimit: 400000, GasPrice: 25, PriorityFee: 2}, result.FeeParameters)
			assert.True(t, result.Savings.IsZero())
			assert.Zero(t, result.SavingsPercentage)
			assert.Empty(t, result.Optimizations)
			assert.NotEmpty(t, result.PlanID)
		})
	}
}

func TestOptimizationOrchestrator_OptionalStepFailureWarns(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	o.steps[models.StepMEVAnalysis] = func(context.Context, *optimizationRun) error {
		return errors.New("mempool feed offline")
	}
	o.Start()

	result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{EnableMEVAnalysis: true})

	assert.False(t, result.FallbackUsed)
	assert.Equal(t, "PROFIT_MAXIMIZING", result.Strategy)
	assert.Contains(t, result.Warnings, "mev_analysis skipped: mempool feed offline")
}

func TestOptimizationOrchestrator_MarginBelowStrategyThreshold(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	o.Start()

	result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 1), models.OptimizeOptions{StrategyOverride: "speed_prioritized"})

	assert.False(t, result.FallbackUsed)
	assert.Equal(t, "SPEED_PRIORITIZED", result.Strategy)
	assert.Contains(t, result.Warnings, "profit margin 1% below SPEED_PRIORITIZED threshold 2%")

	result = o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{StrategyOverride: "speed_prioritized"})
	for _, w := range result.Warnings {
		assert.NotContains(t, w, "below SPEED_PRIORITIZED threshold")
	}
}

func TestOptimizationOrchestrator_Timeout(t *testing.T) {
	timeouts := NewTimeoutManager(&TimeoutConfig{Optimization: 30 * time.Millisecond}, nil)
	o := newTestOrchestrator(t, quietMarket(), timeouts)
	o.steps[models.StepGasEstimation] = func(ctx context.Context, _ *optimizationRun) error {
		<-ctx.Done()
		return ctx.Err()
	}
	o.Start()

	result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})

	assert.True(t, result.FallbackUsed)
	assert.Contains(t, result.Error, context.DeadlineExceeded.Error())
}

func TestOptimizationOrchestrator_NeverReturnsNil(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.OptimizeTransaction(ctx, opportunityData(5000, 4), models.OptimizeOptions{})

	require.NotNil(t, result)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, models.FallbackStrategyName, result.Strategy)
	assert.Equal(t, uint64(1), result.Sequence)
}

func TestOptimizationOrchestrator_FIFOSingleFlight(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)

	var inFlight, maxInFlight atomic.Int32
	estimate := o.steps[models.StepGasEstimation]
	o.steps[models.StepGasEstimation] = func(ctx context.Context, run *optimizationRun) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return estimate(ctx, run)
	}

	listener := &recordingListener{}
	o.AddListener(listener)
	o.Start()

	const n = 30
	handles := make([]*OptimizationHandle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i] = o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		}()
	}
	wg.Wait()

	for _, h := range handles {
		result, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, h.Sequence(), result.Sequence)
		assert.Equal(t, models.OptimizationCompleted, h.State())
	}

	results := listener.snapshot()
	require.Len(t, results, n)
	for i, r := range results {
		assert.Equal(t, uint64(i+1), r.Sequence, "completion order must follow submission order")
	}
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestOptimizationOrchestrator_Stats(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	estimate := o.steps[models.StepGasEstimation]
	o.steps[models.StepGasEstimation] = func(ctx context.Context, run *optimizationRun) error {
		if run.data.ID == "bad" {
			return errors.New("bad opportunity")
		}
		return estimate(ctx, run)
	}
	o.Start()

	good := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
	o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
	bad := opportunityData(5000, 4)
	bad.ID = "bad"
	failed := o.OptimizeTransaction(context.Background(), bad, models.OptimizeOptions{})
	require.True(t, failed.FallbackUsed)

	stats := o.Stats()
	assert.Equal(t, int64(3), stats.TotalAttempts)
	assert.Equal(t, int64(2), stats.SuccessfulAttempts)
	assert.Equal(t, int64(1), stats.FallbackAttempts)
	assert.True(t, stats.TotalSavings.Equal(good.Savings.Mul(decimal.NewFromInt(2))))
	assert.InDelta(t, good.SavingsPercentage, stats.BestSavingsPercentage, 1e-9)
	assert.InDelta(t, 2*good.SavingsPercentage/3, stats.AvgSavingsPercentage, 1e-9)
	assert.Zero(t, stats.QueueDepth)
}

func TestOptimizationOrchestrator_QueueBeforeStart(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)

	h1 := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
	h2 := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})

	assert.Equal(t, 2, o.Stats().QueueDepth)
	assert.Equal(t, models.OptimizationQueued, h1.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h1.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	o.Start()
	r2, err := h2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Sequence)
	assert.Equal(t, models.OptimizationCompleted, h1.State())
}

func TestOptimizationOrchestrator_Stop(t *testing.T) {
	t.Run("drains queued requests", func(t *testing.T) {
		o := newTestOrchestrator(t, quietMarket(), nil)
		listener := &recordingListener{}
		o.AddListener(CompletionListenerFunc(listener.OnOptimizationComplete))

		h1 := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		h2 := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		o.Stop()

		for _, h := range []*OptimizationHandle{h1, h2} {
			select {
			case <-h.Done():
			default:
				t.Fatal("handle not resolved after Stop")
			}
			assert.Equal(t, models.OptimizationFallbackCompleted, h.State())
			assert.Equal(t, errOrchestratorStopped.Error(), h.Result().Error)
		}
		results := listener.snapshot()
		require.Len(t, results, 2)
		assert.Equal(t, uint64(1), results[0].Sequence)
		assert.Equal(t, uint64(2), results[1].Sequence)
		assert.Equal(t, int64(2), o.Stats().TotalAttempts)
	})

	t.Run("releases a submitter blocked on a full queue", func(t *testing.T) {
		predictor := NewFeeParameterPredictor(FeeConfig{PredictionWeight: 0.5}, quietMarket(), nil, nil, nil)
		o, err := NewOptimizationOrchestrator(OrchestratorConfig{QueueSize: 1}, nil, predictor, nil, nil, nil)
		require.NoError(t, err)

		h1 := o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		blocked := make(chan *OptimizationHandle, 1)
		go func() {
			blocked <- o.Submit(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		}()
		time.Sleep(20 * time.Millisecond)

		stopped := make(chan struct{})
		go func() {
			o.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("Stop did not return while a submitter waited on the queue")
		}

		h2 := <-blocked
		assert.Equal(t, errOrchestratorStopped.Error(), h1.Result().Error)
		assert.True(t, h2.Result().FallbackUsed)
		assert.Equal(t, errOrchestratorStopped.Error(), h2.Result().Error)
		assert.Equal(t, int64(1), o.Stats().TotalAttempts)
	})

	t.Run("rejects after stop", func(t *testing.T) {
		o := newTestOrchestrator(t, quietMarket(), nil)
		o.Start()
		o.Stop()
		o.Stop()

		result := o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
		assert.True(t, result.FallbackUsed)
		assert.Equal(t, errOrchestratorStopped.Error(), result.Error)
		assert.Zero(t, o.Stats().TotalAttempts)
	})
}

func TestOptimizationOrchestrator_ListenerPanicIsContained(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)
	o.AddListener(CompletionListenerFunc(func(*models.OptimizationResult) { panic("listener bug") }))
	listener := &recordingListener{}
	o.AddListener(listener)
	o.Start()

	o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})
	o.OptimizeTransaction(context.Background(), opportunityData(5000, 4), models.OptimizeOptions{})

	assert.Len(t, listener.snapshot(), 2)
}

func TestGasBuffer(t *testing.T) {
	tests := []struct {
		risk       models.RiskTolerance
		congestion models.CongestionLevel
		complexity float64
		want       float64
	}{
		{models.RiskLow, "", 0, 0.25},
		{models.RiskMedium, models.CongestionHigh, 0, 0.20},
		{models.RiskHigh, models.CongestionLow, 0, 0.03},
		{models.RiskHigh, models.CongestionCritical, 1, 0.23},
		{models.RiskMedium, models.CongestionMedium, 0.5, 0.20},
		{models.RiskLow, models.CongestionLow, 7, 0.30},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, gasBuffer(tt.risk, tt.congestion, tt.complexity), 1e-9,
			"%s/%s/%.1f", tt.risk, tt.congestion, tt.complexity)
	}
}

func TestComplexityScore(t *testing.T) {
	o := newTestOrchestrator(t, quietMarket(), nil)

	assert.Zero(t, o.complexityScore(opportunityData(0, 1)))

	route := models.NewRoute(
		models.Hop{TokenIn: "USDC", TokenOut: "WETH", VenueID: "uniswap"},
		models.Hop{TokenIn: "WETH", TokenOut: "DAI", VenueID: "sushiswap"},
		models.Hop{TokenIn: "DAI", TokenOut: "USDC", VenueID: "uniswap"},
	)
	data := opportunityData(100000, 1)
	data.Route = &models.RouteEvaluation{Route: route}
	// hops 2/3*0.4 + venues 1/3*0.3 + size 1*0.3
	assert.InDelta(t, 0.4*2/3+0.1+0.3, o.complexityScore(data), 1e-9)
}
