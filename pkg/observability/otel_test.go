package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/membership/pkg/models"
)

func TestInitOTelDisabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NopLogger())
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), providers, NopLogger()))
}

func TestSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	_, ok := StartSpan(context.Background(), "ok")
	EndSpan(ok, nil)

	_, warned := StartSpan(context.Background(), "warned")
	EndSpan(warned, models.JoinWarnings("op", errors.New("audit down")))

	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, models.ErrConflict)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "warning", spans[1].Events()[0].Name)
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}
