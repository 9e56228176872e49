package workflows

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/clawcart/clawcart/internal/activities"
	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/orders"
	"github.com/clawcart/clawcart/internal/wallet"
)

func purchaseInput() PurchaseInput {
	return PurchaseInput{
		OrderID:       "ord_test0001",
		UserID:        "demo-user",
		WalletAddress: "0xabc",
		ProductURL:    "https://shop.example.com/p/headphones",
		Amount:        49.99,
		Currency:      "USD",
	}
}

func capturedPayment() *activities.PaymentResult {
	return &activities.PaymentResult{
		Success:      true,
		TxID:         "txn_test0001",
		ProviderTxID: "offramp_123",
		Card:         wallet.VirtualCard{Number: "4000000000000001", ExpMonth: "12", ExpYear: "2030", CVC: "123", Holder: "CLAWCART"},
		Fee:          0.5,
	}
}

func TestPurchaseWorkflow_Confirmed(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	env.OnActivity(a.TransitionOrder, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.SendNotification, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.RecordPurchaseMetrics, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.ProcessPayment, mock.Anything, mock.Anything).Return(capturedPayment(), nil)
	env.OnActivity(a.ExecuteCheckout, mock.Anything, mock.Anything).Return(&activities.CheckoutResult{
		Success:         true,
		Mode:            "replay",
		RetailerOrderID: "A12345",
		ExecutionMs:     8000,
	}, nil)
	env.OnActivity(a.FinalizePurchase, mock.Anything, mock.MatchedBy(func(in activities.FinalizeInput) bool {
		return in.Success && in.RetailerOrderID == "A12345"
	})).Return(nil)

	env.ExecuteWorkflow(PurchaseWorkflow, purchaseInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "confirmed", result.Status)
	require.Equal(t, "A12345", result.RetailerOrderID)
}

// The TransitionOrder mock here enforces the real lifecycle graph: a decline
// before funds capture must land the order in failed, never leave it wedged
// in processing.
func TestPurchaseWorkflow_PaymentDeclined(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	status := models.OrderStatusApproved
	env.OnActivity(a.TransitionOrder, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, in activities.TransitionInput) error {
			to := models.OrderStatus(in.To)
			if !orders.CanTransition(status, to) {
				return fmt.Errorf("illegal order status transition: %s -> %s", status, to)
			}
			status = to
			return nil
		})
	env.OnActivity(a.SendNotification, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.RecordPurchaseMetrics, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.ProcessPayment, mock.Anything, mock.Anything).Return(&activities.PaymentResult{
		Success: false,
		Reason:  "insufficient wallet balance",
	}, nil)

	env.ExecuteWorkflow(PurchaseWorkflow, purchaseInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "failed", result.Status)
	require.Contains(t, result.Message, "insufficient wallet balance")
	require.Equal(t, models.OrderStatusFailed, status, "the order must reach a terminal status, not sit in processing")
}

func TestPurchaseWorkflow_CheckoutFailsThenRefunds(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	checkoutCalls := 0
	refunded := false

	env.OnActivity(a.TransitionOrder, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.SendNotification, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.RecordPurchaseMetrics, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.ProcessPayment, mock.Anything, mock.Anything).Return(capturedPayment(), nil)
	env.OnActivity(a.ExecuteCheckout, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { checkoutCalls++ }).
		Return(&activities.CheckoutResult{
			Success:       false,
			Mode:          "replay",
			FailureReason: "step 3 failed: reasoner abandoned: captcha wall",
		}, nil)
	env.OnActivity(a.FinalizePurchase, mock.Anything, mock.MatchedBy(func(in activities.FinalizeInput) bool {
		return !in.Success && in.Attempts == 2
	})).Return(nil)
	env.OnActivity(a.RefundPayment, mock.Anything, mock.MatchedBy(func(in activities.RefundInput) bool {
		return in.ProviderTxID == "offramp_123"
	})).Run(func(args mock.Arguments) { refunded = true }).Return(nil)

	env.ExecuteWorkflow(PurchaseWorkflow, purchaseInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "failed", result.Status)
	require.Contains(t, result.Message, "captcha wall")
	require.Equal(t, 2, checkoutCalls, "a definitive failure earns exactly one more attempt")
	require.True(t, refunded, "captured funds must be returned after a failed purchase")
}

func TestPurchaseWorkflow_CancelledAfterCapture(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	refunded := false

	env.OnActivity(a.TransitionOrder, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.SendNotification, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.RecordPurchaseMetrics, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.ProcessPayment, mock.Anything, mock.Anything).
		After(5*time.Second).
		Return(capturedPayment(), nil)
	env.OnActivity(a.RefundPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { refunded = true }).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(CancelPurchaseSignal, "changed my mind")
	}, time.Second)

	env.ExecuteWorkflow(PurchaseWorkflow, purchaseInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "cancelled", result.Status)
	require.Equal(t, "changed my mind", result.Message)
	require.True(t, refunded, "cancellation after capture must return the funds")
}

func TestPurchaseWorkflow_DryRunSkipsPayment(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	env.OnActivity(a.TransitionOrder, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.SendNotification, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.RecordPurchaseMetrics, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.ExecuteCheckout, mock.Anything, mock.MatchedBy(func(in activities.CheckoutInput) bool {
		return in.DryRun
	})).Return(&activities.CheckoutResult{
		Success:             true,
		Mode:                "replay",
		StoppedBeforeSubmit: true,
	}, nil)

	input := purchaseInput()
	input.DryRun = true
	env.ExecuteWorkflow(PurchaseWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "dry_run_complete", result.Status)
}

func TestSearchWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var a *activities.Activities
	env.OnActivity(a.RunSearch, mock.Anything, mock.Anything).Return(&activities.SearchOutput{
		SessionID: "ss_abc",
		Source:    "fresh",
		Intent:    "electronics",
	}, nil)

	env.ExecuteWorkflow(SearchWorkflow, activities.SearchInput{
		UserID: "demo-user",
		Text:   "wireless headphones under $50",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out activities.SearchOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ss_abc", out.SessionID)
	require.Equal(t, "electronics", out.Intent)
}
