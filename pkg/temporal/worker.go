package temporal

import (
	"go.opentelemetry.io/otel"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
)

type WorkerConfig struct {
	TaskQueue string
	// MaxConcurrentActivities bounds parallel activity execution on the
	// queue. The purchase queue keeps this low: each slot drives a real
	// browser session against a merchant.
	MaxConcurrentActivities int
}

func NewWorker(c client.Client, cfg WorkerConfig) (worker.Worker, error) {
	tracingInterceptor, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{
		Tracer: otel.Tracer("temporal-worker"),
	})
	if err != nil {
		return nil, err
	}

	opts := worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{
			tracingInterceptor,
		},
	}
	if cfg.MaxConcurrentActivities > 0 {
		opts.MaxConcurrentActivityExecutionSize = cfg.MaxConcurrentActivities
	}

	return worker.New(c, cfg.TaskQueue, opts), nil
}
