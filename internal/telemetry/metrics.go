package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("clawcart")

var (
	ordersCreated       metric.Int64Counter
	orderTransitions    metric.Int64Counter
	purchasesCompleted  metric.Int64Counter
	purchasesFailed     metric.Int64Counter
	purchaseDuration    metric.Float64Histogram
	checkoutStepsRun    metric.Int64Counter
	checkoutFallbacks   metric.Int64Counter
	flowsLearned        metric.Int64Counter
	searchCacheHits     metric.Int64Counter
	searchCacheMisses   metric.Int64Counter
	walletOffRamps      metric.Int64Counter
	refundsIssued       metric.Int64Counter
)

func init() {
	var err error
	ordersCreated, err = meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders accepted into the pipeline"))
	if err != nil {
		panic(err)
	}
	orderTransitions, err = meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Order status transitions by from/to pair"))
	if err != nil {
		panic(err)
	}
	purchasesCompleted, err = meter.Int64Counter("purchases_completed_total",
		metric.WithDescription("Purchases that reached confirmed"))
	if err != nil {
		panic(err)
	}
	purchasesFailed, err = meter.Int64Counter("purchases_failed_total",
		metric.WithDescription("Purchases that ended in failed"))
	if err != nil {
		panic(err)
	}
	purchaseDuration, err = meter.Float64Histogram("purchase_duration_seconds",
		metric.WithDescription("Wall time from processing to a terminal purchase outcome"),
		metric.WithUnit("s"))
	if err != nil {
		panic(err)
	}
	checkoutStepsRun, err = meter.Int64Counter("checkout_steps_total",
		metric.WithDescription("Checkout steps executed, by outcome"))
	if err != nil {
		panic(err)
	}
	checkoutFallbacks, err = meter.Int64Counter("checkout_fallbacks_total",
		metric.WithDescription("Steps rescued or lost via reasoner fallback"))
	if err != nil {
		panic(err)
	}
	flowsLearned, err = meter.Int64Counter("checkout_flows_learned_total",
		metric.WithDescription("Checkout flows learned or relearned from scratch"))
	if err != nil {
		panic(err)
	}
	searchCacheHits, err = meter.Int64Counter("search_cache_hits_total",
		metric.WithDescription("Search requests answered from the cache"))
	if err != nil {
		panic(err)
	}
	searchCacheMisses, err = meter.Int64Counter("search_cache_misses_total",
		metric.WithDescription("Search requests that went to the providers"))
	if err != nil {
		panic(err)
	}
	walletOffRamps, err = meter.Int64Counter("wallet_offramps_total",
		metric.WithDescription("Stablecoin off-ramp operations by outcome"))
	if err != nil {
		panic(err)
	}
	refundsIssued, err = meter.Int64Counter("refunds_issued_total",
		metric.WithDescription("Refunds issued after failed purchases"))
	if err != nil {
		panic(err)
	}
}

func RecordOrderCreated(ctx context.Context, autoApproved bool) {
	ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("auto_approved", autoApproved),
	))
}

func RecordOrderTransition(ctx context.Context, from, to string) {
	orderTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func RecordPurchaseOutcome(ctx context.Context, confirmed bool, durationSeconds float64) {
	if confirmed {
		purchasesCompleted.Add(ctx, 1)
	} else {
		purchasesFailed.Add(ctx, 1)
	}
	purchaseDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.Bool("confirmed", confirmed),
	))
}

func RecordCheckoutStep(ctx context.Context, domain, outcome string) {
	checkoutStepsRun.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("outcome", outcome),
	))
}

func RecordCheckoutFallback(ctx context.Context, domain string, rescued bool) {
	checkoutFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.Bool("rescued", rescued),
	))
}

func RecordFlowLearned(ctx context.Context, domain string, relearn bool) {
	flowsLearned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.Bool("relearn", relearn),
	))
}

func RecordSearchCacheHit(ctx context.Context)  { searchCacheHits.Add(ctx, 1) }
func RecordSearchCacheMiss(ctx context.Context) { searchCacheMisses.Add(ctx, 1) }

func RecordOffRamp(ctx context.Context, outcome string) {
	walletOffRamps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func RecordRefund(ctx context.Context) { refundsIssued.Add(ctx, 1) }
