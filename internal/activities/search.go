package activities

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/activity"

	"github.com/clawcart/clawcart/internal/search"
)

// RunSearch executes one search request: query understanding, cache, and
// provider fan-out all live in the search service; this is the durable
// wrapper around it.
func (a *Activities) RunSearch(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	info := activity.GetInfo(ctx)

	ctx, span := otel.Tracer("activities").Start(ctx, "run_search",
		trace.WithAttributes(
			attribute.String("search.user_id", input.UserID),
			attribute.String("temporal.workflow_id", info.WorkflowExecution.ID),
		),
	)
	defer span.End()

	res, err := a.searcher.Search(ctx, search.Params{
		UserID: input.UserID,
		Text:   input.Text,
		Filter: input.Filters,
		Geo:    search.GeoForCountry(input.Country),
		Limit:  input.Limit,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	return &SearchOutput{
		SessionID: res.Meta.SessionID,
		Source:    res.Meta.Source,
		Intent:    res.Meta.Intent,
		Products:  res.Products,
	}, nil
}
