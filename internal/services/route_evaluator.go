package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-arb-go/internal/cache"
	"github.com/irfndi/celebrum-arb-go/internal/metrics"
	"github.com/irfndi/celebrum-arb-go/internal/models"
	"github.com/irfndi/celebrum-arb-go/internal/telemetry"
	"github.com/irfndi/celebrum-arb-go/internal/utils"
)

var gweiToNative = decimal.New(1, -9)

// RouteConfig holds configuration for the route evaluator
type RouteConfig struct {
	MaxHops            int
	IntermediateTokens []string
	NativeToken        string
	MinLiquidity       decimal.NullDecimal
	MaxSlippage        decimal.NullDecimal // fraction, summed over hops
	MaxGasRatio        decimal.NullDecimal // gas cost over trade value
	GasPriceGwei       decimal.Decimal
	MaxConcurrency     int
	MaxCandidateRoutes int
	CacheTTL           time.Duration
	JanitorInterval    time.Duration
}

// DefaultRouteConfig returns the route evaluator defaults.
func DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		MaxHops:            3,
		IntermediateTokens: []string{"WETH", "USDC", "USDT", "DAI"},
		NativeToken:        "WETH",
		MinLiquidity:       decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		MaxSlippage:        decimal.NewNullDecimal(decimal.NewFromFloat(0.03)),
		MaxGasRatio:        decimal.NewNullDecimal(decimal.NewFromFloat(0.05)),
		GasPriceGwei:       decimal.NewFromInt(30),
		MaxConcurrency:     8,
		MaxCandidateRoutes: 512,
		CacheTTL:           30 * time.Second,
		JanitorInterval:    time.Minute,
	}
}

// RouteEvaluatorDeps are the collaborators of a RouteEvaluator. Quotes and
// Venues are required.
type RouteEvaluatorDeps struct {
	Quotes    QuoteProvider
	Venues    VenueRegistry
	Pricer    TokenPricer
	Cache     cache.Store
	Breakers  *CircuitBreakerManager
	Timeouts  *TimeoutManager
	Collector *metrics.Collector
}

// RouteEvaluator enumerates and scores multi-hop routes between two tokens.
type RouteEvaluator struct {
	config    RouteConfig
	quotes    QuoteProvider
	venues    VenueRegistry
	pricer    TokenPricer
	cache     cache.Store
	breakers  *CircuitBreakerManager
	timeouts  *TimeoutManager
	collector *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time

	mu    sync.Mutex
	stats models.RouteStats
}

type evalParams struct {
	gasPriceGwei decimal.Decimal
	maxSlippage  decimal.Decimal
}

// NewRouteEvaluator creates a route evaluator.
func NewRouteEvaluator(cfg RouteConfig, deps RouteEvaluatorDeps, logger *logrus.Logger) (*RouteEvaluator, error) {
	if deps.Quotes == nil {
		return nil, errors.New("route evaluator requires a quote provider")
	}
	if deps.Venues == nil {
		return nil, errors.New("route evaluator requires a venue registry")
	}
	if logger == nil {
		logger = logrus.New()
	}

	defaults := DefaultRouteConfig()
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = defaults.MaxHops
	}
	if cfg.MaxHops > models.MaxRouteHops {
		cfg.MaxHops = models.MaxRouteHops
	}
	if len(cfg.IntermediateTokens) == 0 {
		cfg.IntermediateTokens = defaults.IntermediateTokens
	}
	if cfg.NativeToken == "" {
		cfg.NativeToken = defaults.NativeToken
	}
	cfg.MinLiquidity = orDefault(cfg.MinLiquidity, defaults.MinLiquidity)
	cfg.MaxSlippage = orDefault(cfg.MaxSlippage, defaults.MaxSlippage)
	cfg.MaxGasRatio = orDefault(cfg.MaxGasRatio, defaults.MaxGasRatio)
	if cfg.GasPriceGwei.IsZero() {
		cfg.GasPriceGwei = defaults.GasPriceGwei
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaults.MaxConcurrency
	}
	if cfg.MaxCandidateRoutes <= 0 {
		cfg.MaxCandidateRoutes = defaults.MaxCandidateRoutes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaults.JanitorInterval
	}

	if deps.Pricer == nil {
		deps.Pricer = NewStaticTokenPricer(nil)
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryStore(0, nil, logger)
	}
	if deps.Breakers == nil {
		deps.Breakers = NewCircuitBreakerManager(CircuitBreakerConfig{}, logger)
	}
	if deps.Timeouts == nil {
		deps.Timeouts = NewTimeoutManager(nil, logger)
	}

	return &RouteEvaluator{
		config:    cfg,
		quotes:    deps.Quotes,
		venues:    deps.Venues,
		pricer:    deps.Pricer,
		cache:     deps.Cache,
		breakers:  deps.Breakers,
		timeouts:  deps.Timeouts,
		collector: deps.Collector,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RunJanitor sweeps the route cache until ctx is done, when the store needs it.
func (e *RouteEvaluator) RunJanitor(ctx context.Context) {
	if j, ok := e.cache.(interface {
		RunJanitor(context.Context, time.Duration)
	}); ok {
		j.RunJanitor(ctx, e.config.JanitorInterval)
	}
}

// GenerateRoutes enumerates candidate routes from tokenA to tokenB over the
// enabled venues: direct routes first, then 2-, 3- and 4-hop routes through
// distinct intermediate tokens. maxHops is clamped to [1, MaxRouteHops] and
// the list is truncated at MaxCandidateRoutes in generation order.
func (e *RouteEvaluator) GenerateRoutes(venues []models.Venue, tokenA, tokenB string, maxHops int) []models.Route {
	if maxHops < 1 {
		maxHops = 1
	}
	if maxHops > models.MaxRouteHops {
		maxHops = models.MaxRouteHops
	}

	enabled := make([]string, 0, len(venues))
	for _, v := range venues {
		if v.Enabled {
			enabled = append(enabled, v.ID)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	intermediates := make([]string, 0, len(e.config.IntermediateTokens))
	seen := map[string]bool{strings.ToUpper(tokenA): true, strings.ToUpper(tokenB): true}
	for _, token := range e.config.IntermediateTokens {
		key := strings.ToUpper(token)
		if !seen[key] {
			seen[key] = true
			intermediates = append(intermediates, token)
		}
	}

	limit := e.config.MaxCandidateRoutes
	routes := make([]models.Route, 0, min(limit, len(enabled)*4))

	for hops := 1; hops <= maxHops && len(routes) < limit; hops++ {
		forEachPermutation(intermediates, hops-1, func(mid []string) bool {
			path := make([]string, 0, hops+1)
			path = append(path, tokenA)
			path = append(path, mid...)
			path = append(path, tokenB)

			forEachVenueAssignment(len(enabled), hops, func(choice []int) bool {
				route := models.Route{Hops: make([]models.Hop, hops)}
				for i := 0; i < hops; i++ {
					route.Hops[i] = models.Hop{TokenIn: path[i], TokenOut: path[i+1], VenueID: enabled[choice[i]]}
				}
				routes = append(routes, route)
				return len(routes) < limit
			})
			return len(routes) < limit
		})
	}
	return routes
}

// forEachPermutation calls fn with every ordered selection of k distinct
// items, in lexicographic index order, until fn returns false.
func forEachPermutation(items []string, k int, fn func([]string) bool) bool {
	if k == 0 {
		return fn(nil)
	}
	if k > len(items) {
		return true
	}
	used := make([]bool, len(items))
	picked := make([]string, 0, k)
	var walk func() bool
	walk = func() bool {
		if len(picked) == k {
			out := make([]string, k)
			copy(out, picked)
			return fn(out)
		}
		for i, item := range items {
			if used[i] {
				continue
			}
			used[i] = true
			picked = append(picked, item)
			cont := walk()
			picked = picked[:len(picked)-1]
			used[i] = false
			if !cont {
				return false
			}
		}
		return true
	}
	return walk()
}

// forEachVenueAssignment walks the cross product of n venues over hops
// positions, last hop varying fastest, until fn returns false.
func forEachVenueAssignment(n, hops int, fn func([]int) bool) {
	choice := make([]int, hops)
	for {
		if !fn(choice) {
			return
		}
		i := hops - 1
		for i >= 0 {
			choice[i]++
			if choice[i] < n {
				break
			}
			choice[i] = 0
			i--
		}
		if i < 0 {
			return
		}
	}
}

// EvaluateRoute walks route with amountIn using the default gas price and
// slippage limit. A failure marks the evaluation invalid instead of erroring.
func (e *RouteEvaluator) EvaluateRoute(ctx context.Context, route models.Route, amountIn decimal.Decimal) models.RouteEvaluation {
	if !amountIn.IsPositive() {
		eval := e.newEvaluation(route, amountIn)
		return e.invalidate(eval, fmt.Sprintf("amount in must be positive, got %s", amountIn.String()))
	}
	venues, err := e.listVenues(ctx)
	if err != nil {
		eval := e.newEvaluation(route, amountIn)
		return e.invalidate(eval, err.Error())
	}
	return e.evaluate(ctx, route, amountIn, indexVenues(venues), e.params(models.RouteOptions{}))
}

func (e *RouteEvaluator) params(opts models.RouteOptions) evalParams {
	p := evalParams{gasPriceGwei: e.config.GasPriceGwei, maxSlippage: e.config.MaxSlippage.Decimal}
	if opts.GasPriceGwei.IsPositive() {
		p.gasPriceGwei = opts.GasPriceGwei
	}
	if opts.MaxSlippage.IsPositive() {
		p.maxSlippage = opts.MaxSlippage
	}
	return p
}

func (e *RouteEvaluator) newEvaluation(route models.Route, amountIn decimal.Decimal) models.RouteEvaluation {
	return models.RouteEvaluation{
		Route:           route,
		InputAmount:     amountIn,
		OutputAmount:    decimal.Zero,
		NetOutputAmount: decimal.Zero,
		TotalSlippage:   decimal.Zero,
		TotalFees:       decimal.Zero,
		GasCostUSD:      decimal.Zero,
		GasRatio:        decimal.Zero,
		EvaluatedAt:     e.now().UTC(),
	}
}

func (e *RouteEvaluator) invalidate(eval models.RouteEvaluation, reason string) models.RouteEvaluation {
	eval.Valid = false
	eval.InvalidReason = reason
	e.logger.WithFields(logrus.Fields{
		"route":  eval.Route.String(),
		"reason": reason,
	}).Debug("Route rejected")
	return eval
}

func (e *RouteEvaluator) evaluate(ctx context.Context, route models.Route, amountIn decimal.Decimal, venues map[string]models.Venue, p evalParams) (eval models.RouteEvaluation) {
	eval = e.newEvaluation(route, amountIn)
	defer func() {
		e.mu.Lock()
		e.stats.RoutesEvaluated++
		if eval.Valid {
			e.stats.ValidRoutes++
		}
		e.mu.Unlock()
		e.collector.RecordRouteEvaluation(eval.Valid)
	}()

	if err := route.Validate(); err != nil {
		return e.invalidate(eval, err.Error())
	}

	amount := amountIn
	for i, hop := range route.Hops {
		venue, ok := venues[hop.VenueID]
		if !ok {
			return e.invalidate(eval, fmt.Sprintf("hop %d: unknown venue %s", i, hop.VenueID))
		}
		if !venue.Enabled {
			return e.invalidate(eval, fmt.Sprintf("hop %d: venue %s disabled", i, hop.VenueID))
		}

		q, err := e.quote(ctx, hop, amount)
		if err != nil {
			e.collector.RecordQuoteFailure(hop.VenueID)
			return e.invalidate(eval, fmt.Sprintf("hop %d: %v", i, err))
		}
		if q.Liquidity.LessThan(e.config.MinLiquidity.Decimal) {
			return e.invalidate(eval, fmt.Sprintf("hop %d: liquidity %s below minimum %s on %s",
				i, q.Liquidity.String(), e.config.MinLiquidity.Decimal.String(), hop.VenueID))
		}

		fee := q.Fee
		if fee.IsZero() {
			fee = amount.Mul(venue.FeeRate)
		}
		eval.TotalFees = eval.TotalFees.Add(fee)
		eval.TotalSlippage = eval.TotalSlippage.Add(q.Slippage)
		eval.TotalGas += venue.GasPerSwap
		amount = q.OutputAmount
	}
	eval.OutputAmount = amount

	nativeUSD, err := e.priceUSD(ctx, e.config.NativeToken)
	if err != nil {
		return e.invalidate(eval, err.Error())
	}
	outUSD, err := e.priceUSD(ctx, route.TokenOut())
	if err != nil {
		return e.invalidate(eval, err.Error())
	}
	inUSD, err := e.priceUSD(ctx, route.TokenIn())
	if err != nil {
		return e.invalidate(eval, err.Error())
	}

	inValue := amountIn.Mul(inUSD)
	if !inValue.IsPositive() {
		return e.invalidate(eval, fmt.Sprintf("input value %s is not positive", inValue.String()))
	}
	eval.GasCostUSD = decimal.NewFromInt(int64(eval.TotalGas)).Mul(p.gasPriceGwei).Mul(gweiToNative).Mul(nativeUSD)
	eval.NetOutputAmount = amount.Sub(eval.GasCostUSD.Div(outUSD))
	eval.GasRatio = eval.GasCostUSD.Div(inValue)

	if eval.TotalSlippage.GreaterThan(p.maxSlippage) {
		return e.invalidate(eval, fmt.Sprintf("slippage %s exceeds %s", eval.TotalSlippage.String(), p.maxSlippage.String()))
	}
	if eval.GasRatio.GreaterThan(e.config.MaxGasRatio.Decimal) {
		return e.invalidate(eval, fmt.Sprintf("gas ratio %s exceeds %s", eval.GasRatio.StringFixed(6), e.config.MaxGasRatio.Decimal.String()))
	}

	eval.Valid = true
	return eval
}

func (e *RouteEvaluator) quote(ctx context.Context, hop models.Hop, amountIn decimal.Decimal) (*models.VenueQuote, error) {
	var q *models.VenueQuote
	err := e.breakers.Get(hop.VenueID).Execute(ctx, func(ctx context.Context) error {
		res, err := withTimeout(ctx, e.timeouts, OpQuote, func(ctx context.Context) (*models.VenueQuote, error) {
			return e.quotes.GetQuote(ctx, hop.TokenIn, hop.TokenOut, amountIn, hop.VenueID)
		})
		if err != nil {
			return err
		}
		if res == nil || !res.OutputAmount.IsPositive() {
			return fmt.Errorf("empty quote from %s", hop.VenueID)
		}
		q = res
		return nil
	})
	if err != nil {
		return nil, utils.DataUnavailable("quote "+hop.VenueID, err)
	}
	return q, nil
}

func (e *RouteEvaluator) priceUSD(ctx context.Context, token string) (decimal.Decimal, error) {
	price, err := withTimeout(ctx, e.timeouts, OpTokenPrice, func(ctx context.Context) (decimal.Decimal, error) {
		return e.pricer.GetTokenPriceUSD(ctx, token)
	})
	if err != nil {
		return decimal.Zero, utils.DataUnavailable("price "+token, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, utils.DataUnavailable("price "+token, fmt.Errorf("non-positive price %s", price.String()))
	}
	return price, nil
}

func (e *RouteEvaluator) listVenues(ctx context.Context) ([]models.Venue, error) {
	venues, err := withTimeout(ctx, e.timeouts, OpVenueRegistry, e.venues.ListVenues)
	if err != nil {
		return nil, utils.DataUnavailable("venue registry", err)
	}
	if len(venues) == 0 {
		return nil, utils.ErrNoVenuesConfigured
	}
	return venues, nil
}

func indexVenues(venues []models.Venue) map[string]models.Venue {
	out := make(map[string]models.Venue, len(venues))
	for _, v := range venues {
		out[v.ID] = v
	}
	return out
}

func validateRouteRequest(tokenA, tokenB string, amountIn decimal.Decimal) error {
	if strings.TrimSpace(tokenA) == "" || strings.TrimSpace(tokenB) == "" {
		return utils.NewValidationError("token identifiers must not be empty")
	}
	if strings.EqualFold(strings.TrimSpace(tokenA), strings.TrimSpace(tokenB)) {
		return utils.NewValidationErrorf("token in and token out must differ, both are %s", tokenA)
	}
	if !amountIn.IsPositive() {
		return utils.NewValidationErrorf("amount in must be positive, got %s", amountIn.String())
	}
	return nil
}

// normalizeToken is applied before route generation so hops and cache keys
// share one spelling.
func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (e *RouteEvaluator) cacheKey(tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) string {
	raw, _ := json.Marshal(opts)
	return fmt.Sprintf("%s|%s|%s|%016x", tokenA, tokenB, amountIn.String(), xxhash.Sum64(raw))
}

// FindOptimalRoute evaluates every candidate route concurrently and returns
// the valid one with the highest net output. Equal net outputs keep the
// first-generated route. Results are cached for CacheTTL.
func (e *RouteEvaluator) FindOptimalRoute(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) (*models.RouteEvaluation, error) {
	if err := validateRouteRequest(tokenA, tokenB, amountIn); err != nil {
		return nil, err
	}
	tokenA, tokenB = normalizeToken(tokenA), normalizeToken(tokenB)

	ctx, span := telemetry.TraceRouteSearch(ctx, tokenA, tokenB, amountIn.String())
	best, candidates, valid, hit, err := e.findOptimalRoute(ctx, tokenA, tokenB, amountIn, opts)
	telemetry.RecordRouteSearch(span, candidates, valid, hit, best)
	telemetry.EndSpan(span, err)
	return best, err
}

func (e *RouteEvaluator) findOptimalRoute(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal, opts models.RouteOptions) (*models.RouteEvaluation, int, int, bool, error) {
	e.mu.Lock()
	e.stats.Searches++
	e.mu.Unlock()

	key := e.cacheKey(tokenA, tokenB, amountIn, opts)
	if !opts.SkipCache {
		if raw, ok := e.cache.Get(ctx, key); ok {
			var cached models.RouteEvaluation
			if err := json.Unmarshal(raw, &cached); err == nil {
				e.recordCache(true)
				return &cached, 0, 0, true, nil
			}
			e.cache.Delete(ctx, key)
		}
		e.recordCache(false)
	}

	venues, err := e.listVenues(ctx)
	if err != nil {
		return nil, 0, 0, false, err
	}
	venues = filterVenues(venues, opts.Venues)

	maxHops := e.config.MaxHops
	if opts.MaxHops > 0 {
		maxHops = opts.MaxHops
	}

	routes := e.GenerateRoutes(venues, tokenA, tokenB, maxHops)
	e.mu.Lock()
	e.stats.RoutesGenerated += int64(len(routes))
	e.mu.Unlock()
	if len(routes) == 0 {
		return nil, 0, 0, false, fmt.Errorf("%s to %s: no candidate routes: %w", tokenA, tokenB, utils.ErrNoRouteFound)
	}

	results := make([]models.RouteEvaluation, len(routes))
	byID := indexVenues(venues)
	params := e.params(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrency)
	for i := range routes {
		g.Go(func() error {
			results[i] = e.evaluate(gctx, routes[i], amountIn, byID, params)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, len(routes), 0, false, err
	}

	var best *models.RouteEvaluation
	valid := 0
	for i := range results {
		if !results[i].Valid {
			continue
		}
		valid++
		if best == nil || results[i].NetOutputAmount.GreaterThan(best.NetOutputAmount) {
			best = &results[i]
		}
	}
	if best == nil {
		e.logger.WithFields(logrus.Fields{
			"token_in":   tokenA,
			"token_out":  tokenB,
			"candidates": len(routes),
		}).Info("No valid route found")
		return nil, len(routes), 0, false, fmt.Errorf("%s to %s: %d candidates rejected: %w", tokenA, tokenB, len(routes), utils.ErrNoRouteFound)
	}

	if raw, err := json.Marshal(best); err == nil {
		e.cache.Set(ctx, key, raw, e.config.CacheTTL)
	}

	e.logger.WithFields(logrus.Fields{
		"token_in":   tokenA,
		"token_out":  tokenB,
		"candidates": len(routes),
		"valid":      valid,
		"best_route": best.Route.String(),
		"net_output": best.NetOutputAmount.String(),
	}).Debug("Optimal route selected")

	out := *best
	return &out, len(routes), valid, false, nil
}

func (e *RouteEvaluator) recordCache(hit bool) {
	e.mu.Lock()
	if hit {
		e.stats.CacheHits++
	} else {
		e.stats.CacheMisses++
	}
	e.mu.Unlock()
	e.collector.RecordCacheLookup(hit)
}

func filterVenues(venues []models.Venue, only []string) []models.Venue {
	if len(only) == 0 {
		return venues
	}
	allowed := make(map[string]bool, len(only))
	for _, id := range only {
		allowed[id] = true
	}
	out := make([]models.Venue, 0, len(only))
	for _, v := range venues {
		if allowed[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

// FindArbitrageRoutes scans every unordered pair of enabled venues in both
// directions: buy tokenB with tokenA on one venue, sell it back on the other.
// Net-profitable round trips are returned, most profitable first.
func (e *RouteEvaluator) FindArbitrageRoutes(ctx context.Context, tokenA, tokenB string, amountIn decimal.Decimal) ([]models.ArbitrageRoute, error) {
	if err := validateRouteRequest(tokenA, tokenB, amountIn); err != nil {
		return nil, err
	}
	tokenA, tokenB = normalizeToken(tokenA), normalizeToken(tokenB)
	venues, err := e.listVenues(ctx)
	if err != nil {
		return nil, err
	}

	enabled := make([]models.Venue, 0, len(venues))
	for _, v := range venues {
		if v.Enabled {
			enabled = append(enabled, v)
		}
	}

	type direction struct{ buy, sell string }
	var directions []direction
	for i := 0; i < len(enabled); i++ {
		for j := i + 1; j < len(enabled); j++ {
			directions = append(directions,
				direction{buy: enabled[i].ID, sell: enabled[j].ID},
				direction{buy: enabled[j].ID, sell: enabled[i].ID},
			)
		}
	}

	byID := indexVenues(venues)
	params := e.params(models.RouteOptions{})
	results := make([]*models.ArbitrageRoute, len(directions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrency)
	for i, d := range directions {
		g.Go(func() error {
			buy := e.evaluate(gctx, models.NewRoute(models.Hop{TokenIn: tokenA, TokenOut: tokenB, VenueID: d.buy}), amountIn, byID, params)
			if !buy.Valid || !buy.NetOutputAmount.IsPositive() {
				return nil
			}
			sell := e.evaluate(gctx, models.NewRoute(models.Hop{TokenIn: tokenB, TokenOut: tokenA, VenueID: d.sell}), buy.NetOutputAmount, byID, params)
			if !sell.Valid {
				return nil
			}
			net := sell.NetOutputAmount.Sub(amountIn)
			if !net.IsPositive() {
				return nil
			}
			results[i] = &models.ArbitrageRoute{
				BuyVenue:         d.buy,
				SellVenue:        d.sell,
				Buy:              buy,
				Sell:             sell,
				NetProfit:        net,
				ProfitPercentage: net.Div(amountIn).Mul(decimal.NewFromInt(100)),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	routes := make([]models.ArbitrageRoute, 0)
	for _, r := range results {
		if r != nil {
			routes = append(routes, *r)
		}
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].NetProfit.GreaterThan(routes[j].NetProfit)
	})

	e.logger.WithFields(logrus.Fields{
		"token_a":    tokenA,
		"token_b":    tokenB,
		"pairs":      len(directions) / 2,
		"profitable": len(routes),
	}).Debug("Arbitrage route scan complete")
	return routes, nil
}

// Stats returns a snapshot of the evaluator counters.
func (e *RouteEvaluator) Stats() models.RouteStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CacheStats returns the route cache counters.
func (e *RouteEvaluator) CacheStats() cache.StoreStats {
	return e.cache.GetStats()
}

// BreakerStats returns per-venue circuit breaker statistics.
func (e *RouteEvaluator) BreakerStats() map[string]CircuitBreakerStats {
	return e.breakers.GetAllStats()
}
