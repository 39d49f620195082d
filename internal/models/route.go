package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxRouteHops bounds the length of any route.
const MaxRouteHops = 4

// Hop is one swap leg executed on one venue.
type Hop struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	VenueID  string `json:"venue_id"`
}

// Route is an ordered list of hops.
type Route struct {
	Hops []Hop `json:"hops"`
}

// NewRoute builds a route from hops.
func NewRoute(hops ...Hop) Route {
	return Route{Hops: hops}
}

// Validate checks the hop count bound and that consecutive hops chain.
func (r Route) Validate() error {
	if len(r.Hops) == 0 {
		return fmt.Errorf("route has no hops")
	}
	if len(r.Hops) > MaxRouteHops {
		return fmt.Errorf("route has %d hops, max is %d", len(r.Hops), MaxRouteHops)
	}
	for i := 1; i < len(r.Hops); i++ {
		if !strings.EqualFold(r.Hops[i].TokenIn, r.Hops[i-1].TokenOut) {
			return fmt.Errorf("hop %d input %s does not match hop %d output %s",
				i, r.Hops[i].TokenIn, i-1, r.Hops[i-1].TokenOut)
		}
	}
	return nil
}

// TokenIn is the first input token of the route.
func (r Route) TokenIn() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[0].TokenIn
}

// TokenOut is the final output token of the route.
func (r Route) TokenOut() string {
	if len(r.Hops) == 0 {
		return ""
	}
	return r.Hops[len(r.Hops)-1].TokenOut
}

// Venues returns the distinct venues used by the route, in hop order.
func (r Route) Venues() []string {
	seen := make(map[string]bool, len(r.Hops))
	venues := make([]string, 0, len(r.Hops))
	for _, h := range r.Hops {
		if !seen[h.VenueID] {
			seen[h.VenueID] = true
			venues = append(venues, h.VenueID)
		}
	}
	return venues
}

// String renders the route as "A -(v1)-> B -(v2)-> C".
func (r Route) String() string {
	if len(r.Hops) == 0 {
		return "<empty>"
	}
	var b strings.Builder
	b.WriteString(r.Hops[0].TokenIn)
	for _, h := range r.Hops {
		fmt.Fprintf(&b, " -(%s)-> %s", h.VenueID, h.TokenOut)
	}
	return b.String()
}

// RouteEvaluation is the scored result of walking a route with an input amount.
type RouteEvaluation struct {
	Route           Route           `json:"route"`
	InputAmount     decimal.Decimal `json:"input_amount"`
	OutputAmount    decimal.Decimal `json:"output_amount"`
	NetOutputAmount decimal.Decimal `json:"net_output_amount"`
	TotalGas        uint64          `json:"total_gas"`
	TotalSlippage   decimal.Decimal `json:"total_slippage"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	GasCostUSD      decimal.Decimal `json:"gas_cost_usd"`
	GasRatio        decimal.Decimal `json:"gas_ratio"`
	Valid           bool            `json:"valid"`
	InvalidReason   string          `json:"invalid_reason,omitempty"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
}

// ArbitrageRoute is a round trip that buys on one venue and sells on another.
type ArbitrageRoute struct {
	BuyVenue         string          `json:"buy_venue"`
	SellVenue        string          `json:"sell_venue"`
	Buy              RouteEvaluation `json:"buy"`
	Sell             RouteEvaluation `json:"sell"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
}

// RouteOptions tune a single route search. The zero value uses evaluator defaults.
type RouteOptions struct {
	MaxHops      int             `json:"max_hops,omitempty"`
	Venues       []string        `json:"venues,omitempty"`
	GasPriceGwei decimal.Decimal `json:"gas_price_gwei"`
	MaxSlippage  decimal.Decimal `json:"max_slippage"`
	SkipCache    bool            `json:"-"`
}

// RouteStats holds the running counters of the route evaluator.
type RouteStats struct {
	Searches        int64 `json:"searches"`
	RoutesGenerated int64 `json:"routes_generated"`
	RoutesEvaluated int64 `json:"routes_evaluated"`
	ValidRoutes     int64 `json:"valid_routes"`
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
}
