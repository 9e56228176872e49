package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/clawcart/clawcart/internal/activities"
)

// SearchWorkflow runs one search durably: if a worker dies mid-query the
// request is retried elsewhere instead of being lost. Caching inside the
// search service keeps retries cheap.
func SearchWorkflow(ctx workflow.Context, input activities.SearchInput) (*activities.SearchOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting search workflow", "user_id", input.UserID)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *activities.Activities
	var out activities.SearchOutput
	if err := workflow.ExecuteActivity(ctx, a.RunSearch, input).Get(ctx, &out); err != nil {
		return nil, err
	}

	logger.Info("Search completed", "user_id", input.UserID, "results", len(out.Products), "source", out.Source)
	return &out, nil
}
