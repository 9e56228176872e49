package checkout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawcart/clawcart/internal/models"
)

func TestDomainFromURL(t *testing.T) {
	got, err := DomainFromURL("https://www.Shop.Example.com/p/123?ref=x")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", got)

	got, err = DomainFromURL("https://store.example.co.uk/item")
	require.NoError(t, err)
	assert.Equal(t, "store.example.co.uk", got)

	_, err = DomainFromURL("not a url")
	assert.Error(t, err)
}

func TestApplyOutcomeSuccess(t *testing.T) {
	flow := &models.CheckoutFlow{
		FailureCount:        2,
		ConsecutiveFailures: 2,
		Steps: []models.FlowStep{
			{Index: 0, SuccessCount: 4},
			{Index: 1, SuccessCount: 4, FailureCount: 1},
		},
	}
	now := time.Now().UTC()

	applyOutcome(flow, Outcome{
		Success:     true,
		ExecutionMs: 12000,
		Steps: []StepResult{
			{Index: 0, Succeeded: true},
			{Index: 1, Succeeded: true},
		},
	}, now)

	assert.Equal(t, 1, flow.SuccessCount)
	assert.Equal(t, 2, flow.FailureCount)
	assert.Zero(t, flow.ConsecutiveFailures, "a success resets the consecutive failure streak")
	require.NotNil(t, flow.LastSuccess)
	assert.Equal(t, now, *flow.LastSuccess)
	assert.Equal(t, 12000.0, flow.AvgExecutionMs)
	assert.Equal(t, 5, flow.Steps[0].SuccessCount)
	assert.Equal(t, 5, flow.Steps[1].SuccessCount)
}

func TestApplyOutcomeFailure(t *testing.T) {
	flow := &models.CheckoutFlow{
		SuccessCount:        5,
		ConsecutiveFailures: 1,
		Steps:               []models.FlowStep{{Index: 0, SuccessCount: 5}},
	}
	now := time.Now().UTC()

	applyOutcome(flow, Outcome{
		Success: false,
		Error:   "step 0 failed: element gone",
		Steps:   []StepResult{{Index: 0}},
	}, now)

	assert.Equal(t, 5, flow.SuccessCount)
	assert.Equal(t, 1, flow.FailureCount)
	assert.Equal(t, 2, flow.ConsecutiveFailures)
	assert.Equal(t, "step 0 failed: element gone", flow.LastError)
	assert.Equal(t, 1, flow.Steps[0].FailureCount)
}

func TestApplyOutcomeRescuedStep(t *testing.T) {
	flow := &models.CheckoutFlow{
		Steps: []models.FlowStep{{Index: 0, SuccessCount: 3, Action: models.StepAction{
			Type: models.ActionClick, Selector: "#old-button",
		}}},
	}
	updated := &models.StepAction{Type: models.ActionClick, Selector: "#new-button"}

	applyOutcome(flow, Outcome{
		Success: true,
		Steps:   []StepResult{{Index: 0, Succeeded: true, Rescued: true, UpdatedAction: updated}},
	}, time.Now().UTC())

	// A rescued step books one failure for the stale action and one success
	// for the step, and adopts the working action.
	assert.Equal(t, 4, flow.Steps[0].SuccessCount)
	assert.Equal(t, 1, flow.Steps[0].FailureCount)
	assert.Equal(t, "#new-button", flow.Steps[0].Action.Selector)
}

func TestApplyOutcomeAvgExecutionSmoothing(t *testing.T) {
	flow := &models.CheckoutFlow{AvgExecutionMs: 10000}
	applyOutcome(flow, Outcome{Success: true, ExecutionMs: 20000}, time.Now().UTC())
	assert.InDelta(t, 12000, flow.AvgExecutionMs, 0.001)
}

func TestTrusted(t *testing.T) {
	store := NewFlowStore(nil, 0.5, 2)

	trusted := &models.CheckoutFlow{
		SuccessCount: 3,
		Steps:        []models.FlowStep{{Index: 0, SuccessCount: 3}},
	}
	assert.True(t, store.Trusted(trusted))

	assert.False(t, store.Trusted(nil))
	assert.False(t, store.Trusted(&models.CheckoutFlow{SuccessCount: 3}), "a flow with no steps cannot replay")

	neverSucceeded := &models.CheckoutFlow{
		FailureCount: 1,
		Steps:        []models.FlowStep{{Index: 0, FailureCount: 1}},
	}
	assert.False(t, store.Trusted(neverSucceeded))

	coldStreak := &models.CheckoutFlow{
		SuccessCount:        10,
		FailureCount:        2,
		ConsecutiveFailures: 2,
		Steps:               []models.FlowStep{{Index: 0, SuccessCount: 10}},
	}
	assert.False(t, store.Trusted(coldStreak), "two consecutive failures force a relearn")

	flakyStep := &models.CheckoutFlow{
		SuccessCount: 5,
		Steps: []models.FlowStep{
			{Index: 0, SuccessCount: 5},
			{Index: 1, SuccessCount: 1, FailureCount: 3},
		},
	}
	assert.False(t, store.Trusted(flakyStep), "one unreliable step distrusts the whole flow")

	untouchedStep := &models.CheckoutFlow{
		SuccessCount: 1,
		Steps: []models.FlowStep{
			{Index: 0, SuccessCount: 1},
			{Index: 1},
		},
	}
	assert.False(t, store.Trusted(untouchedStep), "a step with zero attempts has no evidence and blocks unattended replay")
}

func TestHealth(t *testing.T) {
	store := NewFlowStore(nil, 0.5, 2)

	assert.Equal(t, HealthUnproven, store.Health(&models.CheckoutFlow{}))
	assert.Equal(t, HealthHealthy, store.Health(&models.CheckoutFlow{SuccessCount: 9, FailureCount: 1}))
	assert.Equal(t, HealthDegraded, store.Health(&models.CheckoutFlow{SuccessCount: 3, FailureCount: 3, ConsecutiveFailures: 1}))
	assert.Equal(t, HealthNeedsRelearn, store.Health(&models.CheckoutFlow{SuccessCount: 9, FailureCount: 2, ConsecutiveFailures: 2}))
}
