package activities

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/clawcart/clawcart/internal/checkout"
	"github.com/clawcart/clawcart/internal/models"
)

// ExecuteCheckout drives the browser through the merchant's checkout. It
// heartbeats after every step so the workflow can distinguish a slow page
// from a wedged one, and maps workflow cancellation to a clean stop.
func (a *Activities) ExecuteCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	info := activity.GetInfo(ctx)

	ctx, span := otel.Tracer("activities").Start(ctx, "execute_checkout",
		trace.WithAttributes(
			attribute.String("order.id", input.OrderID),
			attribute.String("checkout.product_url", input.ProductURL),
			attribute.Bool("checkout.dry_run", input.DryRun),
			attribute.String("temporal.workflow_id", info.WorkflowExecution.ID),
			attribute.Int("temporal.attempt", int(info.Attempt)),
		),
	)
	defer span.End()

	var user models.User
	if err := a.db.WithContext(ctx).Where("user_id = ?", input.UserID).First(&user).Error; err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("load user %s: %v", input.UserID, err), "UnknownUser", err)
	}

	req := checkout.Request{
		OrderID:    input.OrderID,
		ProductURL: input.ProductURL,
		DryRun:     input.DryRun,
		Profile: checkout.Profile{
			Card: checkout.Card{
				Number:   input.Card.Number,
				ExpMonth: input.Card.ExpMonth,
				ExpYear:  input.Card.ExpYear,
				CVC:      input.Card.CVC,
				Holder:   input.Card.Holder,
			},
			Address: user.Address,
			Email:   user.Email,
			Phone:   user.Address.Phone,
		},
		OnStep: func(index int, note string) {
			activity.RecordHeartbeat(ctx, fmt.Sprintf("step %d (%s)", index, note))
		},
	}

	res, err := a.engine.Execute(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		if errors.Is(err, checkout.ErrCancelled) {
			// Surface cancellation as such; the workflow decides the
			// order's fate, not the retry policy.
			return nil, temporal.NewCanceledError(err.Error())
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("checkout.success", res.Success),
		attribute.String("checkout.mode", res.Mode),
	)
	return res, nil
}
