package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) DetectArbitrage(quoteA, quoteB models.PriceQuote, pair models.TokenPair) *models.Opportunity {
	args := m.Called(quoteA, quoteB, pair)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.Opportunity)
}

func (m *MockEngine) EstimateNetProfit(ctx context.Context, opp *models.Opportunity, tradeAmount decimal.Decimal) models.NetProfitEstimate {
	args := m.Called(ctx, opp, tradeAmount)
	return args.Get(0).(models.NetProfitEstimate)
}

func (m *MockEngine) OpportunityHistory(limit int) []models.Opportunity {
	args := m.Called(limit)
	return args.Get(0).([]models.Opportunity)
}

func (m *MockEngine) FindOptimalRoute(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) (*models.RouteEvaluation, error) {
	args := m.Called(ctx, tokenA, tokenB, amountIn, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RouteEvaluation), args.Error(1)
}

func (m *MockEngine) FindArbitrageRoutes(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal) ([]models.ArbitrageRoute, error) {
	args := m.Called(ctx, tokenA, tokenB, amountIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ArbitrageRoute), args.Error(1)
}

func (m *MockEngine) PredictFees(ctx context.Context, req models.FeeRequest) models.FeeEstimate {
	args := m.Called(ctx, req)
	return args.Get(0).(models.FeeEstimate)
}

func (m *MockEngine) OptimizeTransaction(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *models.OptimizationResult {
	args := m.Called(ctx, data, opts)
	return args.Get(0).(*models.OptimizationResult)
}

func (m *MockEngine) GetStats() services.EngineStats {
	args := m.Called()
	return args.Get(0).(services.EngineStats)
}
