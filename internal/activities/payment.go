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

	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/telemetry"
	"github.com/clawcart/clawcart/internal/wallet"
)

// ProcessPayment off-ramps stablecoin into a single-use virtual card for
// the order amount. The ledger row is created first so a crash between
// off-ramp and record leaves evidence to reconcile against; the order id
// doubles as the provider-side idempotency reference.
func (a *Activities) ProcessPayment(ctx context.Context, input PaymentInput) (*PaymentResult, error) {
	info := activity.GetInfo(ctx)

	ctx, span := otel.Tracer("activities").Start(ctx, "process_payment",
		trace.WithAttributes(
			attribute.String("order.id", input.OrderID),
			attribute.String("user.id", input.UserID),
			attribute.Float64("payment.amount", input.Amount),
			attribute.String("temporal.workflow_id", info.WorkflowExecution.ID),
		),
	)
	defer span.End()
	traceID := span.SpanContext().TraceID().String()

	order, err := a.orders.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	tx := models.Transaction{
		OrderRef:      &order.ID,
		UserID:        input.UserID,
		Type:          models.TransactionPurchase,
		Status:        models.TxStatusPending,
		FiatAmount:    input.Amount,
		Currency:      input.Currency,
		WalletAddress: input.WalletAddress,
	}
	if err := a.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if err := a.advanceLedger(ctx, tx.TxID, models.TxStatusPending, models.TxStatusOffRamping); err != nil {
		return nil, err
	}

	ramp, err := a.wallet.OffRamp(ctx, wallet.OffRampRequest{
		WalletAddress: input.WalletAddress,
		FiatAmount:    input.Amount,
		Currency:      input.Currency,
		Reference:     input.OrderID,
	})
	if err != nil {
		if lerr := a.advanceLedger(ctx, tx.TxID, models.TxStatusOffRamping, models.TxStatusFailed); lerr != nil {
			slog.WarnContext(ctx, "ledger not marked failed",
				slog.String("tx_id", tx.TxID),
				slog.String("error", lerr.Error()),
			)
		}
		telemetry.RecordOffRamp(ctx, "failed")
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		slog.ErrorContext(ctx, "off-ramp failed",
			slog.String("order_id", input.OrderID),
			slog.String("error", err.Error()),
			slog.String("trace_id", traceID),
		)
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			return &PaymentResult{Success: false, TxID: tx.TxID, Reason: "insufficient wallet balance"}, nil
		}
		return nil, err
	}

	err = a.db.WithContext(ctx).Model(&tx).
		Where("status = ?", models.TxStatusOffRamping).
		Updates(map[string]interface{}{
			"status":            models.TxStatusOffRampComplete,
			"stablecoin_amount": ramp.StablecoinAmount,
			"off_ramp_fee":      ramp.Fee,
			"exchange_rate":     ramp.ExchangeRate,
			"provider_tx_id":    ramp.ProviderTxID,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("record off-ramp: %w", err)
	}

	_, err = a.orders.Transition(ctx, input.OrderID, models.OrderStatusPurchasing, "funds captured",
		func(o *models.Order) {
			o.Payment.Method = "virtual_card"
			o.Payment.StablecoinAmount = ramp.StablecoinAmount
			o.Payment.OffRampFee = ramp.Fee
			o.Payment.ProviderTxID = ramp.ProviderTxID
		},
	)
	if err != nil {
		return nil, err
	}

	telemetry.RecordOffRamp(ctx, "completed")
	slog.InfoContext(ctx, "payment captured",
		slog.String("order_id", input.OrderID),
		slog.String("tx_id", tx.TxID),
		slog.String("provider_tx_id", ramp.ProviderTxID),
		slog.Float64("amount", input.Amount),
		slog.Float64("fee", ramp.Fee),
		slog.String("workflow_id", info.WorkflowExecution.ID),
		slog.String("trace_id", traceID),
	)

	return &PaymentResult{
		Success:          true,
		TxID:             tx.TxID,
		ProviderTxID:     ramp.ProviderTxID,
		Card:             ramp.Card,
		Fee:              ramp.Fee,
		StablecoinAmount: ramp.StablecoinAmount,
	}, nil
}

// RefundPayment reverses a captured off-ramp after a failed purchase and
// walks the ledger row through the refund states.
func (a *Activities) RefundPayment(ctx context.Context, input RefundInput) error {
	ctx, span := otel.Tracer("activities").Start(ctx, "refund_payment",
		trace.WithAttributes(
			attribute.String("order.id", input.OrderID),
			attribute.String("tx.provider_id", input.ProviderTxID),
		),
	)
	defer span.End()

	if err := a.advanceLedger(ctx, input.TxID, models.TxStatusOffRampComplete, models.TxStatusRefundPending); err != nil {
		return fmt.Errorf("mark refund pending: %w", err)
	}

	if err := a.wallet.Refund(ctx, input.ProviderTxID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return err
	}

	if err := a.advanceLedger(ctx, input.TxID, models.TxStatusRefundPending, models.TxStatusRefunded); err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}

	if _, err := a.orders.Transition(ctx, input.OrderID, models.OrderStatusRefunded, "off-ramp reversed"); err != nil {
		// A retried refund lands here with the order already refunded; the
		// money movement above is idempotent, so absorb it.
		if errors.Is(err, orders.ErrIllegalTransition) {
			return nil
		}
		return err
	}

	telemetry.RecordRefund(ctx)
	slog.InfoContext(ctx, "payment refunded",
		slog.String("order_id", input.OrderID),
		slog.String("tx_id", input.TxID),
	)
	return nil
}

// advanceLedger moves a transaction one step along its status chain. The
// from-state guard makes a replayed update a no-op, so an activity retry
// that already advanced the row does not error.
func (a *Activities) advanceLedger(ctx context.Context, txID string, from, to models.TransactionStatus) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("illegal ledger transition: %s -> %s", from, to)
	}
	return a.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("tx_id = ? AND status = ?", txID, from).
		Update("status", to).Error
}
