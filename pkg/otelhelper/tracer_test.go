package otelhelper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/sequences/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tracer, shutdown, err := otelhelper.NewTracer(ctx, "sequences-test", false)
	require.NoError(t, err)

	spanCtx, span := otelhelper.StartSpan(ctx, tracer, "intake.webhook", attribute.String(otelhelper.TriggerIDKey, "trg-1"))
	otelhelper.SetError(span, errors.New("boom"))
	span.End()

	assert.NotNil(t, spanCtx)
	assert.False(t, span.SpanContext().IsValid())
	require.NoError(t, shutdown(ctx))
}
