package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	tel, err := Init(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer())
	assert.NotNil(t, tel.Meter())

	cfg := &Config{Enabled: false, ServiceName: "test-service"}
	tel, err = Init(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, tel.Config())
	assert.Nil(t, tel.Resource())
	assert.Equal(t, tel, Get())
	assert.NoError(t, Shutdown(ctx))
}

func TestShutdown_BeforeInit(t *testing.T) {
	setGlobal(nil)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestStartSpan_BeforeInit(t *testing.T) {
	setGlobal(nil)
	ctx := context.Background()

	newCtx, span := StartSpan(ctx, "noop")
	assert.Equal(t, ctx, newCtx)
	assert.NotNil(t, span)
	assert.NotNil(t, GetMeter())
}

func TestStartSpan_Disabled(t *testing.T) {
	_, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "test-service"})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "provisioning.run")
	require.NotNil(t, span)
	assert.NotPanics(t, func() { EndSpan(span, errors.New("boom")) })
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetTraceID(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
	}))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
}

func TestNewResource(t *testing.T) {
	res := newResource(&Config{
		ServiceName:    "safeguard-membership",
		ServiceVersion: "1.2.3",
		Environment:    "test",
	})

	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "safeguard-membership", found["service.name"])
	assert.Equal(t, "1.2.3", found["service.version"])
	assert.Equal(t, "test", found["deployment.environment.name"])
	assert.Equal(t, "safeguard-membership", found["service.namespace"])
}
