package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/pgobserver/pkg/logging"
)

func TestNew_NoEndpoint(t *testing.T) {
	p, err := New(context.Background(), Config{ServiceName: "pgobserver"}, logging.Nop())
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	assert.False(t, p.Exporting())

	_, span := p.Tracer().Start(context.Background(), "watch.session")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_WithEndpoint(t *testing.T) {
	// The exporter connects lazily, so no collector is needed here
	p, err := New(context.Background(), Config{
		ServiceName:    "pgobserver",
		ServiceVersion: "test",
		Endpoint:       "127.0.0.1:4318",
	}, nil)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())
	assert.True(t, p.Exporting())
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("collector:4318"), 2)
	assert.Len(t, exporterOptions("https://collector:4318/v1/traces"), 1)
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	ctx, span := tp.Tracer("test").Start(context.Background(), "notify.send")
	AddEvent(ctx, "smtp.accepted")
	SetError(ctx, errors.New("connection refused"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "connection refused", ended[0].Status().Description)

	var names []string
	for _, ev := range ended[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "smtp.accepted")
	assert.Contains(t, names, "exception")
}
