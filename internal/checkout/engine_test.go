package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawcart/clawcart/internal/models"
)

const (
	productURL  = "https://shop.example.com/p/headphones"
	cartURL     = "https://shop.example.com/cart"
	checkoutURL = "https://shop.example.com/checkout"
	paymentURL  = "https://shop.example.com/checkout/payment"
	reviewURL   = "https://shop.example.com/checkout/review"
	confirmURL  = "https://shop.example.com/checkout/confirmation"
)

func simSite() map[string]SimPage {
	return map[string]SimPage{
		productURL: {Title: "Headphones", Advance: map[string]string{"#add-to-cart": cartURL}},
		cartURL:    {Title: "Cart", Advance: map[string]string{"#checkout": checkoutURL}},
		checkoutURL: {
			Title:   "Checkout",
			Fields:  []string{"#email", "#street", "#city", "#zip"},
			Advance: map[string]string{"#to-payment": paymentURL},
		},
		paymentURL: {
			Title:   "Payment",
			Fields:  []string{"#card-number", "#card-exp", "#card-cvc"},
			Advance: map[string]string{"#to-review": reviewURL},
		},
		reviewURL: {Title: "Review", Advance: map[string]string{"#place-order": confirmURL}},
		confirmURL: {
			Title:   "Order confirmed",
			Content: "Thanks! Order #A12345 is on its way.",
		},
	}
}

func recordedFlow() *models.CheckoutFlow {
	steps := []models.FlowStep{
		{Index: 0, Phase: models.PhaseProduct, Action: models.StepAction{Type: models.ActionClick, Selector: "#add-to-cart"}, ExpectedURLPattern: "/cart"},
		{Index: 1, Phase: models.PhaseCart, Action: models.StepAction{Type: models.ActionClick, Selector: "#checkout"}, ExpectedURLPattern: "/checkout"},
		{Index: 2, Phase: models.PhaseShipping, Action: models.StepAction{Type: models.ActionFill, Selector: "#email", Value: "{user.email}"}},
		{Index: 3, Phase: models.PhaseShipping, Action: models.StepAction{Type: models.ActionClick, Selector: "#to-payment"}, ExpectedURLPattern: "/payment"},
		{Index: 4, Phase: models.PhasePayment, Action: models.StepAction{Type: models.ActionFill, Selector: "#card-number", Value: "{card.number}"}},
		{Index: 5, Phase: models.PhasePayment, Action: models.StepAction{Type: models.ActionClick, Selector: "#to-review"}, ExpectedURLPattern: "/review"},
		{Index: 6, Phase: models.PhaseReview, Action: models.StepAction{Type: models.ActionClick, Selector: "#place-order"}, ExpectedURLPattern: "/confirmation"},
	}
	for i := range steps {
		steps[i].SuccessCount = 3
	}
	return &models.CheckoutFlow{Domain: "shop.example.com", SuccessCount: 3, Steps: steps}
}

func testProfile() Profile {
	return Profile{
		Card:  Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2028", CVC: "123", Holder: "Demo User"},
		Email: "demo@example.com",
		Address: models.ShippingAddress{
			FullName: "Demo User", Street: "1 Main St", City: "Amsterdam", ZipCode: "1011AB", Country: "NL",
		},
	}
}

type fakeFlows struct {
	flow     *models.CheckoutFlow
	trusted  bool
	saved    *models.CheckoutFlow
	outcomes []Outcome
}

func (f *fakeFlows) ForDomain(ctx context.Context, domain string) (*models.CheckoutFlow, error) {
	if f.flow == nil {
		return nil, ErrFlowNotFound
	}
	return f.flow, nil
}

func (f *fakeFlows) Trusted(flow *models.CheckoutFlow) bool { return f.trusted }

func (f *fakeFlows) SaveLearned(ctx context.Context, flow *models.CheckoutFlow) error {
	f.saved = flow
	return nil
}

func (f *fakeFlows) ApplyOutcome(ctx context.Context, domain string, o Outcome) error {
	f.outcomes = append(f.outcomes, o)
	return nil
}

type fakeReasoner struct {
	proposals []*Proposal
	requests  []ReasonRequest
}

func (r *fakeReasoner) NextStep(ctx context.Context, req ReasonRequest) (*Proposal, error) {
	r.requests = append(r.requests, req)
	if len(r.proposals) == 0 {
		return nil, errors.New("no scripted proposal left")
	}
	p := r.proposals[0]
	r.proposals = r.proposals[1:]
	return p, nil
}

func newTestEngine(flows FlowRepository, reasoner Reasoner, driver Driver) *Engine {
	factory := func(ctx context.Context, productURL string) (Driver, error) { return driver, nil }
	return NewEngine(flows, reasoner, factory, 50, time.Minute)
}

func TestReplayTrustedFlow(t *testing.T) {
	flows := &fakeFlows{flow: recordedFlow(), trusted: true}
	reasoner := &fakeReasoner{}
	driver := NewSimDriver(productURL, simSite())
	engine := newTestEngine(flows, reasoner, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ModeReplay, res.Mode)
	assert.Equal(t, "shop.example.com", res.Domain)
	assert.Equal(t, 7, res.StepsExecuted)
	assert.Zero(t, res.FallbacksUsed)
	assert.Empty(t, reasoner.requests, "trusted replay must not consult the reasoner")
	assert.Equal(t, "A12345", res.RetailerOrderID)
	assert.Equal(t, "demo@example.com", driver.Filled("#email"))
	assert.Equal(t, "4242424242424242", driver.Filled("#card-number"))

	require.Len(t, flows.outcomes, 1)
	outcome := flows.outcomes[0]
	assert.True(t, outcome.Success)
	require.Len(t, outcome.Steps, 7)
	for _, s := range outcome.Steps {
		assert.True(t, s.Succeeded)
		assert.False(t, s.Rescued)
	}
}

func TestReplayStepRescuedByFallback(t *testing.T) {
	flows := &fakeFlows{flow: recordedFlow(), trusted: true}
	reasoner := &fakeReasoner{proposals: []*Proposal{
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#to-payment"}, Phase: models.PhaseShipping},
	}}
	driver := NewSimDriver(productURL, simSite())
	// The recorded selector is gone; the page still has #to-payment via the
	// reasoner's alternative after one transient failure.
	driver.FailSelectors["#to-payment"] = true
	engine := newTestEngine(flows, reasoner, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.FallbacksUsed)
	require.Len(t, reasoner.requests, 1)
	require.NotNil(t, reasoner.requests[0].FailedAction)
	assert.Equal(t, "#to-payment", reasoner.requests[0].FailedAction.Selector)

	require.Len(t, flows.outcomes, 1)
	var rescued int
	for _, s := range flows.outcomes[0].Steps {
		assert.True(t, s.Succeeded)
		if s.Rescued {
			rescued++
			assert.Equal(t, 3, s.Index)
			require.NotNil(t, s.UpdatedAction)
		}
	}
	assert.Equal(t, 1, rescued)
}

func TestReplayFallbackAbandonFailsRun(t *testing.T) {
	flows := &fakeFlows{flow: recordedFlow(), trusted: true}
	reasoner := &fakeReasoner{proposals: []*Proposal{
		{Abandon: true, Reason: "captcha wall"},
	}}
	driver := NewSimDriver(productURL, simSite())
	driver.DeadSelectors["#to-review"] = true
	engine := newTestEngine(flows, reasoner, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.FailureReason, "captcha wall")

	require.Len(t, flows.outcomes, 1)
	outcome := flows.outcomes[0]
	assert.False(t, outcome.Success)
	last := outcome.Steps[len(outcome.Steps)-1]
	assert.Equal(t, 5, last.Index)
	assert.False(t, last.Succeeded)
}

func TestLearnNewMerchant(t *testing.T) {
	flows := &fakeFlows{}
	reasoner := &fakeReasoner{proposals: []*Proposal{
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#add-to-cart"}, Phase: models.PhaseProduct},
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#checkout"}, Phase: models.PhaseCart},
		{Action: models.StepAction{Type: models.ActionFill, Selector: "#email", Value: "{user.email}"}, Phase: models.PhaseShipping},
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#to-payment"}, Phase: models.PhaseShipping},
		{Action: models.StepAction{Type: models.ActionFill, Selector: "#card-number", Value: "{card.number}"}, Phase: models.PhasePayment},
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#to-review"}, Phase: models.PhasePayment},
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#place-order"}, Phase: models.PhaseConfirmation},
		{Done: true, RetailerOrderID: "A12345"},
	}}
	driver := NewSimDriver(productURL, simSite())
	engine := newTestEngine(flows, reasoner, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ModeLearn, res.Mode)
	assert.Equal(t, "A12345", res.RetailerOrderID)

	require.NotNil(t, flows.saved)
	assert.Equal(t, "shop.example.com", flows.saved.Domain)
	require.Len(t, flows.saved.Steps, 7)
	// Template placeholders, never substituted values, are persisted.
	assert.Equal(t, "{card.number}", flows.saved.Steps[4].Action.Value)
	assert.Equal(t, "4242424242424242", driver.Filled("#card-number"))
	assert.True(t, flows.saved.GuestCheckout, "no step touched an account surface")

	require.Len(t, flows.outcomes, 1)
	assert.True(t, flows.outcomes[0].Success)
}

func TestLearnAbandonedByReasoner(t *testing.T) {
	flows := &fakeFlows{}
	reasoner := &fakeReasoner{proposals: []*Proposal{
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#add-to-cart"}, Phase: models.PhaseProduct},
		{Abandon: true, Reason: "login required"},
	}}
	driver := NewSimDriver(productURL, simSite())
	engine := newTestEngine(flows, reasoner, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.FailureReason, "login required")
	assert.Nil(t, flows.saved)
	assert.Empty(t, flows.outcomes)
}

func TestDryRunStopsBeforeSubmit(t *testing.T) {
	flows := &fakeFlows{flow: recordedFlow(), trusted: true}
	driver := NewSimDriver(productURL, simSite())
	engine := newTestEngine(flows, &fakeReasoner{}, driver)

	res, err := engine.Execute(context.Background(), Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(), DryRun: true,
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.StoppedBeforeSubmit)
	assert.Equal(t, 6, res.StepsExecuted)
	// Still on the review page: the order was never placed.
	state, _ := driver.State(context.Background())
	assert.Equal(t, reviewURL, state.URL)
	// Dry runs leave no trace in the flow's counters.
	assert.Empty(t, flows.outcomes)
}

func TestCancelledRunReturnsErrCancelled(t *testing.T) {
	flows := &fakeFlows{flow: recordedFlow(), trusted: true}
	driver := NewSimDriver(productURL, simSite())
	engine := newTestEngine(flows, &fakeReasoner{}, driver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Execute(ctx, Request{
		OrderID: "ord_test", ProductURL: productURL, Profile: testProfile(),
	})

	require.Error(t, err)
}

func TestIsGuestFlow(t *testing.T) {
	guest := []models.FlowStep{
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#add-to-cart"}},
		{Action: models.StepAction{Type: models.ActionFill, Selector: "#email", Value: "{user.email}"}},
		{Action: models.StepAction{Type: models.ActionClick, Selector: "#place-order"}},
	}
	assert.True(t, isGuestFlow(guest))

	withLogin := append([]models.FlowStep{
		{Action: models.StepAction{Type: models.ActionFill, Selector: "#password", Value: "{user.password}"}},
		{Action: models.StepAction{Type: models.ActionClick, Text: "Sign in"}},
	}, guest...)
	assert.False(t, isGuestFlow(withLogin))
}

func TestIsFinalSubmission(t *testing.T) {
	assert.True(t, isFinalSubmission(models.StepAction{Type: models.ActionClick, Selector: "#next"}, models.PhaseReview))
	assert.True(t, isFinalSubmission(models.StepAction{Type: models.ActionClick, Selector: "#place-order"}, models.PhaseConfirmation))
	assert.True(t, isFinalSubmission(models.StepAction{Type: models.ActionClick, Text: "Pay now"}, models.PhasePayment))
	assert.False(t, isFinalSubmission(models.StepAction{Type: models.ActionFill, Selector: "#card-number"}, models.PhaseReview))
	assert.False(t, isFinalSubmission(models.StepAction{Type: models.ActionClick, Selector: "#to-payment"}, models.PhaseShipping))
}

func TestExtractOrderID(t *testing.T) {
	got := extractOrderID(PageState{Content: "Thanks! Order #A12345 is on its way."})
	assert.Equal(t, "A12345", got)

	assert.Empty(t, extractOrderID(PageState{Content: "Thanks for shopping with us."}))
}

func TestDetectPlatform(t *testing.T) {
	assert.Equal(t, "shopify", DetectPlatform(PageState{Content: "cdn.shopify.com/assets"}))
	assert.Equal(t, "woocommerce", DetectPlatform(PageState{Content: "wp-content woocommerce-checkout"}))
	assert.Equal(t, "custom", DetectPlatform(PageState{Content: "<html>plain store</html>"}))
}
