package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/services"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Engine is the part of the arbitrage engine the HTTP surface serves.
type Engine interface {
	DetectArbitrage(quoteA, quoteB models.PriceQuote, pair models.TokenPair) *models.Opportunity
	EstimateNetProfit(ctx context.Context, opp *models.Opportunity, tradeAmount decimal.Decimal) models.NetProfitEstimate
	OpportunityHistory(limit int) []models.Opportunity
	FindOptimalRoute(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) (*models.RouteEvaluation, error)
	FindArbitrageRoutes(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal) ([]models.ArbitrageRoute, error)
	PredictFees(ctx context.Context, req models.FeeRequest) models.FeeEstimate
	OptimizeTransaction(ctx context.Context, data models.OpportunityData, opts models.OptimizeOptions) *models.OptimizationResult
	GetStats() services.EngineStats
}

type ArbitrageHandler struct {
	engine Engine
}

func NewArbitrageHandler(engine Engine) *ArbitrageHandler {
	return &ArbitrageHandler{engine: engine}
}

type QuoteInput struct {
	VenueID   string          `json:"venue_id"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
}

type DetectRequest struct {
	Pair        string          `json:"pair" binding:"required"`
	QuoteA      QuoteInput      `json:"quote_a"`
	QuoteB      QuoteInput      `json:"quote_b"`
	TradeAmount decimal.Decimal `json:"trade_amount"`
}

type DetectResponse struct {
	Detected    bool                      `json:"detected"`
	Opportunity *models.Opportunity       `json:"opportunity,omitempty"`
	NetProfit   *models.NetProfitEstimate `json:"net_profit,omitempty"`
}

type OptimizeRequest struct {
	Opportunity models.OpportunityData `json:"opportunity"`
	Options     models.OptimizeOptions `json:"options"`
}

// DetectOpportunity compares two quotes for one pair and, when a trade
// amount is given, prices the trade.
func (h *ArbitrageHandler) DetectOpportunity(c *gin.Context) {
	var req DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	pair, ok := models.ParseTokenPair(req.Pair)
	if !ok {
		badRequest(c, "Invalid pair, expected BASE/QUOTE")
		return
	}

	opp := h.engine.DetectArbitrage(req.QuoteA.toQuote(pair), req.QuoteB.toQuote(pair), pair)
	if opp == nil {
		c.JSON(http.StatusOK, DetectResponse{Detected: false})
		return
	}

	resp := DetectResponse{Detected: true, Opportunity: opp}
	if req.TradeAmount.IsPositive() {
		est := h.engine.EstimateNetProfit(c.Request.Context(), opp, req.TradeAmount)
		resp.NetProfit = &est
	}
	c.JSON(http.StatusOK, resp)
}

func (q QuoteInput) toQuote(pair models.TokenPair) models.PriceQuote {
	return models.PriceQuote{VenueID: q.VenueID, Pair: pair, Price: q.Price, Liquidity: q.Liquidity}
}

// GetOpportunityHistory returns recent detections, newest first.
func (h *ArbitrageHandler) GetOpportunityHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			badRequest(c, "Invalid limit parameter (1-1000)")
			return
		}
		limit = n
	}

	opportunities := h.engine.OpportunityHistory(limit)
	c.JSON(http.StatusOK, gin.H{
		"opportunities": opportunities,
		"count":         len(opportunities),
	})
}

// GetOptimalRoute searches the best route for token_in -> token_out.
func (h *ArbitrageHandler) GetOptimalRoute(c *gin.Context) {
	amount, ok := parseAmount(c)
	if !ok {
		return
	}
	opts, ok := parseRouteOptions(c)
	if !ok {
		return
	}

	best, err := h.engine.FindOptimalRoute(c.Request.Context(), c.Query("token_in"), c.Query("token_out"), amount, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, best)
}

// GetArbitrageRoutes scans venue pairs for profitable round trips.
func (h *ArbitrageHandler) GetArbitrageRoutes(c *gin.Context) {
	amount, ok := parseAmount(c)
	if !ok {
		return
	}

	routes, err := h.engine.FindArbitrageRoutes(c.Request.Context(), c.Query("token_a"), c.Query("token_b"), amount)
	if err != nil {
		writeError(c, err)
		return
	}
	if routes == nil {
		routes = []models.ArbitrageRoute{}
	}
	c.JSON(http.StatusOK, gin.H{
		"routes": routes,
		"count":  len(routes),
	})
}

// PredictFees returns blended fee parameters for a trade.
func (h *ArbitrageHandler) PredictFees(c *gin.Context) {
	var req models.FeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.TradeSizeUSD < 0 || req.ExpectedProfitUSD < 0 {
		badRequest(c, "Trade size and expected profit must not be negative")
		return
	}
	c.JSON(http.StatusOK, h.engine.PredictFees(c.Request.Context(), req))
}

// OptimizeTransaction runs one optimization. Failures come back as a
// fallback result, never as an error status.
func (h *ArbitrageHandler) OptimizeTransaction(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Opportunity.TradeValueUSD.IsNegative() {
		badRequest(c, "Trade value must not be negative")
		return
	}
	if req.Opportunity.ID == "" {
		req.Opportunity.ID = uuid.New().String()
	}

	c.JSON(http.StatusOK, h.engine.OptimizeTransaction(c.Request.Context(), req.Opportunity, req.Options))
}

// GetStats returns the engine snapshot.
func (h *ArbitrageHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetStats())
}

func parseAmount(c *gin.Context) (decimal.Decimal, bool) {
	raw := c.Query("amount")
	if raw == "" {
		badRequest(c, "amount parameter is required")
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		badRequest(c, "Invalid amount parameter")
		return decimal.Zero, false
	}
	return amount, true
}

func parseRouteOptions(c *gin.Context) (models.RouteOptions, bool) {
	var opts models.RouteOptions
	if raw := c.Query("max_hops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "Invalid max_hops parameter")
			return opts, false
		}
		opts.MaxHops = n
	}
	if raw := c.Query("venues"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				opts.Venues = append(opts.Venues, v)
			}
		}
	}
	for name, dst := range map[string]*decimal.Decimal{
		"max_slippage":   &opts.MaxSlippage,
		"gas_price_gwei": &opts.GasPriceGwei,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil || v.IsNegative() {
			badRequest(c, "Invalid "+name+" parameter")
			return opts, false
		}
		*dst = v
	}
	if raw := c.Query("skip_cache"); raw != "" {
		skip, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid skip_cache parameter")
			return opts, false
		}
		opts.SkipCache = skip
	}
	return opts, true
}
