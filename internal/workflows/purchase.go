package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/clawcart/clawcart/internal/activities"
	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/notifications"
	"github.com/clawcart/clawcart/internal/wallet"
)

const (
	PurchaseTaskQueue = "purchase-queue"
	SearchTaskQueue   = "search-queue"

	// CancelPurchaseSignal stops an in-flight purchase. Observed cancellation
	// always wins: the order never reaches confirmed after the signal is
	// seen, and captured funds are returned.
	CancelPurchaseSignal = "cancel-purchase"

	// checkoutAttemptCap bounds definitive checkout failures per order. The
	// first failure updates the flow's counters, so the second attempt may
	// replay a healed flow or relearn; after the cap the order fails.
	checkoutAttemptCap = 2
)

type PurchaseInput struct {
	OrderID       string  `json:"order_id"`
	UserID        string  `json:"user_id"`
	WalletAddress string  `json:"wallet_address"`
	ProductURL    string  `json:"product_url"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	DryRun        bool    `json:"dry_run,omitempty"`
}

type PurchaseResult struct {
	OrderID         string `json:"order_id"`
	Status          string `json:"status"`
	RetailerOrderID string `json:"retailer_order_id,omitempty"`
	Message         string `json:"message,omitempty"`
}

// dryRunCard is the throwaway card used when walking a checkout without
// buying. The run stops before submission, so it is never charged.
var dryRunCard = wallet.VirtualCard{
	Number: "4111111111111111", ExpMonth: "12", ExpYear: "2030", CVC: "000", Holder: "DRY RUN",
}

func PurchaseWorkflow(ctx workflow.Context, input PurchaseInput) (*PurchaseResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting purchase workflow", "order_id", input.OrderID, "dry_run", input.DryRun)

	startTime := workflow.Now(ctx)

	defaultRetryPolicy := &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         defaultRetryPolicy,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Checkout drives a real browser: generous timeout, heartbeat so a
	// wedged session is caught, and no policy-level retries. Definitive
	// failures are retried by the loop below, which knows the difference.
	checkoutAO := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    90 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{"UnknownUser"},
		},
		WaitForCancellation: true,
	}
	checkoutCtx, cancelCheckout := workflow.WithCancel(workflow.WithActivityOptions(ctx, checkoutAO))

	var a *activities.Activities

	cancelled := false
	cancelReason := ""
	workflow.Go(ctx, func(gctx workflow.Context) {
		ch := workflow.GetSignalChannel(gctx, CancelPurchaseSignal)
		ch.Receive(gctx, &cancelReason)
		cancelled = true
		cancelCheckout()
	})

	recordMetrics := func(confirmed bool, failureReason string) {
		duration := workflow.Now(ctx).Sub(startTime).Seconds()
		_ = workflow.ExecuteActivity(ctx, a.RecordPurchaseMetrics, activities.RecordMetricsInput{
			OrderID:       input.OrderID,
			Confirmed:     confirmed,
			DurationSecs:  duration,
			FailureReason: failureReason,
		}).Get(ctx, nil)
	}

	notify := func(eventType, message string) {
		_ = workflow.ExecuteActivity(ctx, a.SendNotification, activities.NotifyInput{
			UserID:  input.UserID,
			OrderID: input.OrderID,
			Type:    eventType,
			Message: message,
		}).Get(ctx, nil)
	}

	fail := func(reason string) (*PurchaseResult, error) {
		if err := transition(ctx, a, input.OrderID, models.OrderStatusFailed, reason); err != nil {
			return nil, err
		}
		notify(notifications.TypeOrderFailed, "Your order could not be completed: "+reason)
		recordMetrics(false, reason)
		return &PurchaseResult{OrderID: input.OrderID, Status: "failed", Message: reason}, nil
	}

	cancelOrder := func(payment *activities.PaymentResult) (*PurchaseResult, error) {
		reason := cancelReason
		if reason == "" {
			reason = "cancelled by user"
		}
		if err := transition(ctx, a, input.OrderID, models.OrderStatusCancelled, reason); err != nil {
			return nil, err
		}
		if payment != nil && payment.Success {
			_ = workflow.ExecuteActivity(ctx, a.RefundPayment, activities.RefundInput{
				OrderID:      input.OrderID,
				TxID:         payment.TxID,
				ProviderTxID: payment.ProviderTxID,
			}).Get(ctx, nil)
		}
		notify(notifications.TypeOrderCancelled, "Your order was cancelled.")
		recordMetrics(false, "cancelled")
		return &PurchaseResult{OrderID: input.OrderID, Status: "cancelled", Message: reason}, nil
	}

	if err := transition(ctx, a, input.OrderID, models.OrderStatusProcessing, "purchase started"); err != nil {
		return nil, err
	}
	notify(notifications.TypePurchaseStarted, "Your purchase is being processed.")

	if cancelled {
		return cancelOrder(nil)
	}

	var payment *activities.PaymentResult
	card := dryRunCard
	if !input.DryRun {
		var paymentResult activities.PaymentResult
		if err := workflow.ExecuteActivity(ctx, a.ProcessPayment, activities.PaymentInput{
			OrderID:       input.OrderID,
			UserID:        input.UserID,
			WalletAddress: input.WalletAddress,
			Amount:        input.Amount,
			Currency:      input.Currency,
		}).Get(ctx, &paymentResult); err != nil {
			return fail("payment failed: " + err.Error())
		}
		if !paymentResult.Success {
			return fail("payment declined: " + paymentResult.Reason)
		}
		payment = &paymentResult
		card = paymentResult.Card
	}

	if cancelled {
		return cancelOrder(payment)
	}

	var res *activities.CheckoutResult
	attempts := 0
	lastReason := ""
	for attempt := 1; attempt <= checkoutAttemptCap; attempt++ {
		attempts = attempt
		var attemptRes activities.CheckoutResult
		err := workflow.ExecuteActivity(checkoutCtx, a.ExecuteCheckout, activities.CheckoutInput{
			OrderID:    input.OrderID,
			UserID:     input.UserID,
			ProductURL: input.ProductURL,
			Card:       card,
			DryRun:     input.DryRun,
		}).Get(checkoutCtx, &attemptRes)

		if cancelled {
			return cancelOrder(payment)
		}
		if err != nil {
			lastReason = "checkout error: " + err.Error()
			res = nil
			break
		}
		res = &attemptRes
		if res.Success {
			break
		}
		lastReason = res.FailureReason
		logger.Info("Checkout attempt failed", "order_id", input.OrderID, "attempt", attempt, "reason", lastReason)
	}

	if input.DryRun {
		note := "dry run completed"
		if res == nil || !res.Success {
			note = "dry run failed: " + lastReason
		}
		if err := transition(ctx, a, input.OrderID, models.OrderStatusCancelled, note); err != nil {
			return nil, err
		}
		recordMetrics(false, "")
		return &PurchaseResult{OrderID: input.OrderID, Status: "dry_run_complete", Message: note}, nil
	}

	if res == nil || !res.Success {
		finalize := activities.FinalizeInput{
			OrderID:       input.OrderID,
			UserID:        input.UserID,
			Success:       false,
			Attempts:      attempts,
			FailureReason: lastReason,
		}
		if res != nil {
			finalize.ExecutionMs = res.ExecutionMs
		}
		if err := workflow.ExecuteActivity(ctx, a.FinalizePurchase, finalize).Get(ctx, nil); err != nil {
			return nil, err
		}
		if payment != nil {
			_ = workflow.ExecuteActivity(ctx, a.RefundPayment, activities.RefundInput{
				OrderID:      input.OrderID,
				TxID:         payment.TxID,
				ProviderTxID: payment.ProviderTxID,
			}).Get(ctx, nil)
		}
		recordMetrics(false, lastReason)
		return &PurchaseResult{OrderID: input.OrderID, Status: "failed", Message: lastReason}, nil
	}

	if err := workflow.ExecuteActivity(ctx, a.FinalizePurchase, activities.FinalizeInput{
		OrderID:         input.OrderID,
		UserID:          input.UserID,
		Success:         true,
		RetailerOrderID: res.RetailerOrderID,
		ProductURL:      input.ProductURL,
		ExecutionMs:     res.ExecutionMs,
		Attempts:        attempts,
	}).Get(ctx, nil); err != nil {
		return nil, err
	}

	recordMetrics(true, "")
	logger.Info("Purchase completed", "order_id", input.OrderID, "retailer_order_id", res.RetailerOrderID)
	return &PurchaseResult{
		OrderID:         input.OrderID,
		Status:          "confirmed",
		RetailerOrderID: res.RetailerOrderID,
	}, nil
}

func transition(ctx workflow.Context, a *activities.Activities, orderID string, to models.OrderStatus, note string) error {
	return workflow.ExecuteActivity(ctx, a.TransitionOrder, activities.TransitionInput{
		OrderID: orderID,
		To:      string(to),
		Note:    note,
	}).Get(ctx, nil)
}
