package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "tradetrust", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled, "telemetry is opt-in")
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	_, finish := p.TrackOperation(context.Background(), "execute", ExecuteOperation("i", "paper", "BTC-USD")...)
	finish(errors.New("boom"))

	p.RecordRequest(context.Background(), attribute.String("test", "value"))
	p.RecordDuration(context.Background(), time.Millisecond)
	require.NoError(t, p.Shutdown(context.Background()))
}

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p, err := NewWithProviders(tp, mp)
	require.NoError(t, err)
	return p, rec, reader
}

func TestTrackOperation_RecordsSpanAndMetrics(t *testing.T) {
	p, rec, reader := newRecordingProvider(t)
	ctx := context.Background()

	_, finish := p.TrackOperation(ctx, "verify", VerifyOperation("r-1", "eigencloud_primary")...)
	finish(nil)
	_, finish = p.TrackOperation(ctx, "verify", VerifyOperation("r-2", "eigencloud_primary")...)
	finish(errors.New("oracle unreachable"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "verify", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					counts[m.Name] += dp.Value
				}
			}
		}
	}
	require.Equal(t, int64(2), counts["tradetrust.operations.total"])
	require.Equal(t, int64(1), counts["tradetrust.errors.total"])
	require.Equal(t, int64(0), counts["tradetrust.operations.active"])

	// Per-receipt ids stay on spans, not on metric series.
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					_, has := dp.Attributes.Value(AttrReceiptID)
					require.False(t, has, m.Name)
				}
			}
		}
	}
	_, hasReceipt := attributeValue(spans[0].Attributes(), AttrReceiptID)
	require.True(t, hasReceipt)

	require.NoError(t, p.Shutdown(ctx))
}

func TestAttributeHelpers(t *testing.T) {
	attrs := AuditOperation("intent-1", "receipt-1")
	require.Len(t, attrs, 3)
	require.Equal(t, "tradetrust.intent.id", string(attrs[1].Key))
	require.Equal(t, "intent-1", attrs[1].Value.AsString())

	// No span in context: must not panic.
	AddSpanEvent(context.Background(), "fallback.engaged", AttrBackend.String("signed_fallback"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("policy clamped", "bound", "max_leverage")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "policy clamped", line["msg"])
	require.Equal(t, "max_leverage", line["bound"])

	_, err = NewLogger("loud", "json", &buf)
	require.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	require.Error(t, err)

	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)
}

func attributeValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}
