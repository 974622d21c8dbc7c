package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestNewMetricsRecorder exercises the OTel-backed recorder against the
// default global meter provider (a no-op provider unless configured), so
// the calls must succeed without any exporter wired up.
func TestNewMetricsRecorder(t *testing.T) {
	m := NewMetricsRecorder()
	assert.NotNil(t, m)

	ctx := context.Background()
	m.RecordRun(ctx, "completed", 120*time.Millisecond)
	m.RecordRun(ctx, "error", time.Millisecond)
	m.RecordStep(ctx, 4, 10*time.Millisecond)
	m.RecordTask(ctx, "deploy", 5*time.Millisecond, nil)
	m.RecordTask(ctx, "deploy", 5*time.Millisecond, errors.New("boom"))
	m.RecordCheckpoint(ctx, 2, 1024)
}

// TestNewMetricsRecorder_SharedInstance checks the recorder is built once
// and reused across calls.
func TestNewMetricsRecorder_SharedInstance(t *testing.T) {
	assert.Equal(t, NewMetricsRecorder(), NewMetricsRecorder())
}

// TestMetricsRecorder_RecordsThroughSDK installs an SDK meter provider
// with a manual reader and checks the recorder's instruments show up in
// a collection. The global provider delegates, so instruments created
// before SetMeterProvider still land on the SDK provider.
func TestMetricsRecorder_RecordsThroughSDK(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := NewMetricsRecorder()
	ctx := context.Background()
	m.RecordRun(ctx, "completed", 80*time.Millisecond)
	m.RecordStep(ctx, 3, 12*time.Millisecond)
	m.RecordTask(ctx, "worker", 4*time.Millisecond, errors.New("boom"))
	m.RecordCheckpoint(ctx, 1, 512)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, inst := range sm.Metrics {
			names[inst.Name] = true
		}
	}
	assert.True(t, names["stepgraph.run.total"])
	assert.True(t, names["stepgraph.step.latency_ms"])
	assert.True(t, names["stepgraph.task.errors"])
	assert.True(t, names["stepgraph.checkpoint.size_bytes"])
}
