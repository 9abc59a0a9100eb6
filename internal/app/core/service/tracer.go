package service

import "context"

// Tracer starts a span around a unit of work and returns a context carrying
// it plus a finish function. It exists so the scheduler and pipeline can emit
// spans without taking a hard dependency on any particular tracing backend;
// callers that want OTEL/Jaeger can supply their own implementation, but none
// ships here (observability exporters are an external collaborator).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// NoopTracer discards every span. It is the default for components that
// don't configure a tracer explicitly.
var NoopTracer Tracer = noopTracer{}
