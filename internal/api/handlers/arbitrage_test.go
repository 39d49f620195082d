package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/services"
	"github.com/irfndi/celebrum-arb-go/internal/utils"
)

func newArbitrageRouter(engine Engine) *gin.Engine {
	h := NewArbitrageHandler(engine)
	router := gin.New()
	router.POST("/opportunities/detect", h.DetectOpportunity)
	router.GET("/opportunities", h.GetOpportunityHistory)
	router.GET("/routes/optimal", h.GetOptimalRoute)
	router.GET("/routes/arbitrage", h.GetArbitrageRoutes)
	router.POST("/fees/predict", h.PredictFees)
	router.POST("/optimize", h.OptimizeTransaction)
	router.GET("/stats", h.GetStats)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decEq(n int64) interface{} {
	want := decimal.NewFromInt(n)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestArbitrageHandler_DetectOpportunity(t *testing.T) {
	pair := models.TokenPair{Base: "WETH", Quote: "USDC"}
	opp := &models.Opportunity{ID: "opp-1", PairID: "WETH/USDC", BuyVenue: "uniswap", Profitable: true}

	t.Run("detected with net profit", func(t *testing.T) {
		engine := &MockEngine{}
		engine.On("DetectArbitrage",
			mock.MatchedBy(func(q models.PriceQuote) bool { return q.VenueID == "uniswap" && q.Pair == pair }),
			mock.MatchedBy(func(q models.PriceQuote) bool { return q.VenueID == "sushiswap" }),
			pair,
		).Return(opp)
		engine.On("EstimateNetProfit", mock.Anything, opp, decEq(2)).
			Return(models.NetProfitEstimate{NetProfit: decimal.NewFromInt(7)})

		w := do(newArbitrageRouter(engine), http.MethodPost, "/opportunities/detect", map[string]interface{}{
			"pair":         "WETH/USDC",
			"quote_a":      map[string]interface{}{"venue_id": "uniswap", "price": "2000"},
			"quote_b":      map[string]interface{}{"venue_id": "sushiswap", "price": "2020"},
			"trade_amount": "2",
		})

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["detected"])
		assert.Equal(t, "opp-1", body["opportunity"].(map[string]interface{})["id"])
		assert.Equal(t, "7", body["net_profit"].(map[string]interface{})["net_profit"])
		engine.AssertExpectations(t)
	})

	t.Run("nothing detected", func(t *testing.T) {
		engine := &MockEngine{}
		engine.On("DetectArbitrage", mock.Anything, mock.Anything, pair).Return(nil)

		w := do(newArbitrageRouter(engine), http.MethodPost, "/opportunities/detect", map[string]interface{}{
			"pair":    "WETH/USDC",
			"quote_a": map[string]interface{}{"venue_id": "uniswap", "price": "0"},
			"quote_b": map[string]interface{}{"venue_id": "sushiswap", "price": "2020"},
		})

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["detected"])
		assert.NotContains(t, body, "opportunity")
		engine.AssertNotCalled(t, "EstimateNetProfit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid input", func(t *testing.T) {
		engine := &MockEngine{}
		router := newArbitrageRouter(engine)

		assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/opportunities/detect", "{").Code)
		assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/opportunities/detect",
			map[string]interface{}{"pair": "WETH-USDC"}).Code)
		engine.AssertNotCalled(t, "DetectArbitrage", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestArbitrageHandler_GetOpportunityHistory(t *testing.T) {
	engine := &MockEngine{}
	engine.On("OpportunityHistory", defaultHistoryLimit).Return([]models.Opportunity{{ID: "a"}, {ID: "b"}})
	engine.On("OpportunityHistory", 5).Return([]models.Opportunity{{ID: "a"}})
	router := newArbitrageRouter(engine)

	w := do(router, http.MethodGet, "/opportunities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = do(router, http.MethodGet, "/opportunities?limit=5", nil)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/opportunities?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/opportunities?limit=abc", nil).Code)
	engine.AssertExpectations(t)
}

func TestArbitrageHandler_GetOptimalRoute(t *testing.T) {
	best := &models.RouteEvaluation{Valid: true, NetOutputAmount: decimal.NewFromInt(2011)}

	t.Run("options are parsed", func(t *testing.T) {
		engine := &MockEngine{}
		want := models.RouteOptions{
			MaxHops:     2,
			Venues:      []string{"uniswap", "sushiswap"},
			MaxSlippage: decimal.RequireFromString("0.01"),
			SkipCache:   true,
		}
		engine.On("FindOptimalRoute", mock.Anything, "WETH", "USDC", decEq(1),
			mock.MatchedBy(func(o models.RouteOptions) bool {
				return o.MaxHops == want.MaxHops &&
					assert.ObjectsAreEqual(want.Venues, o.Venues) &&
					o.MaxSlippage.Equal(want.MaxSlippage) &&
					o.GasPriceGwei.IsZero() &&
					o.SkipCache
			}),
		).Return(best, nil)

		w := do(newArbitrageRouter(engine), http.MethodGet,
			"/routes/optimal?token_in=WETH&token_out=USDC&amount=1&max_hops=2&venues=uniswap,%20sushiswap&max_slippage=0.01&skip_cache=true", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2011", decodeBody(t, w)["net_output_amount"])
		engine.AssertExpectations(t)
	})

	t.Run("engine errors map to status codes", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			code int
		}{
			{"validation", utils.NewValidationError("token identifiers must not be empty"), http.StatusBadRequest},
			{"no route", utils.ErrNoRouteFound, http.StatusNotFound},
			{"no venues", utils.ErrNoVenuesConfigured, http.StatusServiceUnavailable},
			{"data source", utils.DataUnavailable("venue registry", assert.AnError), http.StatusBadGateway},
			{"unexpected", assert.AnError, http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				engine := &MockEngine{}
				engine.On("FindOptimalRoute", mock.Anything, "WETH", "USDC", decEq(1), mock.Anything).Return(nil, tt.err)

				w := do(newArbitrageRouter(engine), http.MethodGet, "/routes/optimal?token_in=WETH&token_out=USDC&amount=1", nil)
				assert.Equal(t, tt.code, w.Code)
				assert.Equal(t, tt.err.Error(), decodeBody(t, w)["error"])
			})
		}
	})

	t.Run("bad query parameters", func(t *testing.T) {
		engine := &MockEngine{}
		router := newArbitrageRouter(engine)
		for _, q := range []string{
			"token_in=WETH&token_out=USDC",
			"token_in=WETH&token_out=USDC&amount=lots",
			"token_in=WETH&token_out=USDC&amount=1&max_hops=0",
			"token_in=WETH&token_out=USDC&amount=1&max_slippage=-1",
			"token_in=WETH&token_out=USDC&amount=1&skip_cache=maybe",
		} {
			assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/routes/optimal?"+q, nil).Code, q)
		}
		engine.AssertNotCalled(t, "FindOptimalRoute", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestArbitrageHandler_GetArbitrageRoutes(t *testing.T) {
	engine := &MockEngine{}
	engine.On("FindArbitrageRoutes", mock.Anything, "USDC", "WETH", decEq(1000)).Return(nil, nil)
	engine.On("FindArbitrageRoutes", mock.Anything, "USDC", "DAI", decEq(1000)).Return(nil, utils.ErrNoVenuesConfigured)
	router := newArbitrageRouter(engine)

	w := do(router, http.MethodGet, "/routes/arbitrage?token_a=USDC&token_b=WETH&amount=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []interface{}{}, body["routes"])

	w = do(router, http.MethodGet, "/routes/arbitrage?token_a=USDC&token_b=DAI&amount=1000", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	engine.AssertExpectations(t)
}

func TestArbitrageHandler_PredictFees(t *testing.T) {
	engine := &MockEngine{}
	req := models.FeeRequest{TradeSizeUSD: 5000, ExpectedProfitUSD: 200}
	engine.On("PredictFees", mock.Anything, req).Return(models.FeeEstimate{GasLimit: 375000, Source: models.FeeSourceBlended})
	router := newArbitrageRouter(engine)

	w := do(router, http.MethodPost, "/fees/predict", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(375000), decodeBody(t, w)["gas_limit"])

	w = do(router, http.MethodPost, "/fees/predict", models.FeeRequest{TradeSizeUSD: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertExpectations(t)
}

func TestArbitrageHandler_OptimizeTransaction(t *testing.T) {
	engine := &MockEngine{}
	engine.On("OptimizeTransaction", mock.Anything,
		mock.MatchedBy(func(d models.OpportunityData) bool { return d.ID != "" && d.PairID == "WETH/USDC" }),
		models.OptimizeOptions{StrategyOverride: "BALANCED", BatchSize: 2},
	).Return(&models.OptimizationResult{Strategy: "BALANCED"})
	router := newArbitrageRouter(engine)

	w := do(router, http.MethodPost, "/optimize", map[string]interface{}{
		"opportunity": map[string]interface{}{"pair_id": "WETH/USDC", "trade_value_usd": "5000", "profit_margin_pct": "1"},
		"options":     map[string]interface{}{"strategy_override": "BALANCED", "batch_size": 2},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BALANCED", decodeBody(t, w)["strategy"])

	w = do(router, http.MethodPost, "/optimize", map[string]interface{}{
		"opportunity": map[string]interface{}{"trade_value_usd": "-5"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	engine.AssertNumberOfCalls(t, "OptimizeTransaction", 1)
}

func TestArbitrageHandler_GetStats(t *testing.T) {
	engine := &MockEngine{}
	engine.On("GetStats").Return(services.EngineStats{Running: true, FeeHistorySize: 3, OpenBreakers: []string{}})

	w := do(newArbitrageRouter(engine), http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, float64(3), body["fee_history_size"])
}
