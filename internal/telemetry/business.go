package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-arb-go/internal/models"
)

// TraceRouteSearch starts a span around one optimal-route search.
func TraceRouteSearch(ctx context.Context, tokenA, tokenB, amountIn string) (context.Context, trace.Span) {
	return StartSpan(ctx, "route_search",
		attribute.String("route.token_in", tokenA),
		attribute.String("route.token_out", tokenB),
		attribute.String("route.amount_in", amountIn),
	)
}

// RecordRouteSearch annotates span with the search outcome. best may be nil.
func RecordRouteSearch(span trace.Span, candidates, valid int, cacheHit bool, best *models.RouteEvaluation) {
	span.SetAttributes(
		attribute.Int("route.candidates", candidates),
		attribute.Int("route.valid", valid),
		attribute.Bool("route.cache_hit", cacheHit),
	)
	if best != nil {
		span.SetAttributes(
			attribute.String("route.best", best.Route.String()),
			attribute.String("route.net_output", best.NetOutputAmount.String()),
			attribute.Int("route.hops", len(best.Route.Hops)),
		)
	}
}

// TraceOptimization starts a span around one optimization attempt.
func TraceOptimization(ctx context.Context, opportunityID string, sequence uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, "optimize_transaction",
		attribute.String("optimization.opportunity_id", opportunityID),
		attribute.Int64("optimization.sequence", int64(sequence)),
	)
}

// RecordOptimization annotates span with the result.
func RecordOptimization(span trace.Span, result *models.OptimizationResult) {
	span.SetAttributes(
		attribute.String("optimization.strategy", result.Strategy),
		attribute.Bool("optimization.fallback_used", result.FallbackUsed),
		attribute.Float64("optimization.savings_pct", result.SavingsPercentage),
		attribute.Int64("optimization.gas_limit", int64(result.FeeParameters.GasLimit)),
		attribute.Float64("optimization.gas_price", result.FeeParameters.GasPrice),
		attribute.Int("optimization.warnings", len(result.Warnings)),
	)
}
