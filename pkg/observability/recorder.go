package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records the engine's operational counters and latencies.
type Metrics interface {
	RecordRun(ctx context.Context, duration time.Duration, turns int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordDedupeHit(ctx context.Context, tool string)
}

// OTelMetrics implements Metrics on OpenTelemetry instruments.
type OTelMetrics struct {
	runDuration     metric.Float64Histogram
	runTurnsTotal   metric.Int64Counter
	runErrorsTotal  metric.Int64Counter
	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter
	dedupeHitsTotal metric.Int64Counter
	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter
}

// NewOTelMetrics creates the engine's instruments on the named meter.
func NewOTelMetrics(meterName string) (*OTelMetrics, error) {
	meter := otel.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	if m.runDuration, err = meter.Float64Histogram("engine.run.duration_seconds"); err != nil {
		return nil, err
	}
	if m.runTurnsTotal, err = meter.Int64Counter("engine.run.turns_total"); err != nil {
		return nil, err
	}
	if m.runErrorsTotal, err = meter.Int64Counter("engine.run.errors_total"); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram("engine.tool.duration_seconds"); err != nil {
		return nil, err
	}
	if m.toolCallsTotal, err = meter.Int64Counter("engine.tool.calls_total"); err != nil {
		return nil, err
	}
	if m.toolErrorsTotal, err = meter.Int64Counter("engine.tool.errors_total"); err != nil {
		return nil, err
	}
	if m.dedupeHitsTotal, err = meter.Int64Counter("engine.dedupe.hits_total"); err != nil {
		return nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram("engine.llm.duration_seconds"); err != nil {
		return nil, err
	}
	if m.llmInputTokens, err = meter.Int64Counter("engine.llm.input_tokens_total"); err != nil {
		return nil, err
	}
	if m.llmOutputTokens, err = meter.Int64Counter("engine.llm.output_tokens_total"); err != nil {
		return nil, err
	}
	if m.llmErrorsTotal, err = meter.Int64Counter("engine.llm.errors_total"); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OTelMetrics) RecordRun(ctx context.Context, duration time.Duration, turns int, err error) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds())
	m.runTurnsTotal.Add(ctx, int64(turns))
	if err != nil {
		m.runErrorsTotal.Add(ctx, 1)
	}
}

func (m *OTelMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *OTelMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *OTelMetrics) RecordDedupeHit(ctx context.Context, tool string) {
	if m == nil {
		return
	}
	m.dedupeHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, or nil when metrics
// are not configured.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
