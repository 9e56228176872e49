package temporal

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
)

// DefaultNamespace keeps purchase and search traffic apart from anything
// else sharing the Temporal cluster.
const DefaultNamespace = "clawcart"

type ClientConfig struct {
	HostPort  string
	Namespace string

	// Identity shows up in the Temporal UI per poller; the binaries set it
	// to their service name so a stuck task points at the right process.
	Identity string
}

// NewClient dials Temporal with trace propagation wired in, so a span opened
// at order submission continues through the workflow and its activities.
func NewClient(cfg ClientConfig) (client.Client, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	tracing, err := opentelemetry.NewTracingInterceptor(opentelemetry.TracerOptions{
		Tracer: otel.Tracer("temporal-client"),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal tracing interceptor: %w", err)
	}

	return client.Dial(client.Options{
		HostPort:     cfg.HostPort,
		Namespace:    cfg.Namespace,
		Identity:     cfg.Identity,
		Interceptors: []interceptor.ClientInterceptor{tracing},
	})
}
