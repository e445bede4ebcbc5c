package telemetry

import (
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := Setup(t.Context(), Config{}, "dev")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("provider = %T, want noop.TracerProvider", tp)
	}
	if err := shutdown(t.Context()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

// Not parallel: installs the global tracer provider.
func TestSetup_WithEndpoint(t *testing.T) {
	tp, shutdown, err := Setup(t.Context(), Config{
		OTLPEndpoint: "http://127.0.0.1:4318",
		ServiceName:  "nodetalk-test",
		Insecure:     true,
	}, "1.0.0")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, ok := tp.(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T, want *sdktrace.TracerProvider", tp)
	}
	if err := shutdown(t.Context()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestTracer_NilProviderUsesGlobal(t *testing.T) {
	t.Parallel()

	if Tracer(nil) == nil {
		t.Fatal("expected a tracer")
	}
}
