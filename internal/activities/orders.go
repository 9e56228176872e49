package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/telemetry"
)

// TransitionOrder moves an order to the given status through the state
// machine. Illegal transitions are non-retryable: replaying them cannot
// make them legal.
func (a *Activities) TransitionOrder(ctx context.Context, input TransitionInput) error {
	info := activity.GetInfo(ctx)

	ctx, span := otel.Tracer("activities").Start(ctx, "transition_order",
		trace.WithAttributes(
			attribute.String("order.id", input.OrderID),
			attribute.String("order.to", input.To),
			attribute.String("temporal.workflow_id", info.WorkflowExecution.ID),
		),
	)
	defer span.End()

	order, err := a.orders.Transition(ctx, input.OrderID, models.OrderStatus(input.To), input.Note)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		if errors.Is(err, orders.ErrIllegalTransition) {
			return temporal.NewNonRetryableApplicationError(err.Error(), "IllegalTransition", err)
		}
		return err
	}

	slog.InfoContext(ctx, "order transitioned",
		slog.String("order_id", input.OrderID),
		slog.String("to", input.To),
		slog.Int("version", order.Version),
		slog.String("workflow_id", info.WorkflowExecution.ID),
		slog.String("trace_id", span.SpanContext().TraceID().String()),
	)
	return nil
}

// FinalizePurchase lands the terminal purchase outcome on the order row:
// confirmed with its tracking reference, or failed with the reason. It also
// bumps the catalog's purchase signal and notifies the user.
func (a *Activities) FinalizePurchase(ctx context.Context, input FinalizeInput) error {
	info := activity.GetInfo(ctx)

	ctx, span := otel.Tracer("activities").Start(ctx, "finalize_purchase",
		trace.WithAttributes(
			attribute.String("order.id", input.OrderID),
			attribute.Bool("purchase.success", input.Success),
			attribute.String("temporal.workflow_id", info.WorkflowExecution.ID),
		),
	)
	defer span.End()

	if input.Success {
		order, err := a.orders.Transition(ctx, input.OrderID, models.OrderStatusConfirmed, "purchase completed",
			func(o *models.Order) {
				o.Tracking.RetailerOrderID = input.RetailerOrderID
				o.ExecutionMs = input.ExecutionMs
				o.RetryCount = input.Attempts - 1
			},
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		// Close the ledger: the captured off-ramp has bought something.
		lerr := a.db.WithContext(ctx).Model(&models.Transaction{}).
			Where("order_ref = ? AND type = ? AND status = ?",
				order.ID, models.TransactionPurchase, models.TxStatusOffRampComplete).
			Update("status", models.TxStatusCompleted).Error
		if lerr != nil {
			slog.WarnContext(ctx, "ledger not marked completed",
				slog.String("order_id", input.OrderID),
				slog.String("error", lerr.Error()),
			)
		}
		a.catalog.RecordPurchase(ctx, input.ProductURL)
		a.notifications.Notify(ctx, input.UserID, input.OrderID, notifications.TypeOrderConfirmed,
			fmt.Sprintf("Order %s confirmed (retailer ref %s).", input.OrderID, input.RetailerOrderID))
		return nil
	}

	_, err := a.orders.Transition(ctx, input.OrderID, models.OrderStatusFailed, input.FailureReason,
		func(o *models.Order) {
			o.ExecutionMs = input.ExecutionMs
			o.RetryCount = input.Attempts - 1
			o.FailureReason = input.FailureReason
		},
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	a.notifications.Notify(ctx, input.UserID, input.OrderID, notifications.TypeOrderFailed,
		fmt.Sprintf("Order %s could not be completed: %s", input.OrderID, input.FailureReason))
	return nil
}

// RecordPurchaseMetrics closes out the purchase counters for one workflow
// run. Kept as its own activity so a metrics pipeline outage never fails a
// purchase.
func (a *Activities) RecordPurchaseMetrics(ctx context.Context, input RecordMetricsInput) error {
	telemetry.RecordPurchaseOutcome(ctx, input.Confirmed, input.DurationSecs)
	slog.InfoContext(ctx, "purchase finished",
		slog.String("order_id", input.OrderID),
		slog.Bool("confirmed", input.Confirmed),
		slog.Float64("duration_secs", input.DurationSecs),
		slog.String("failure_reason", input.FailureReason),
	)
	return nil
}
