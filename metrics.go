package ripple

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine operations.
var (
	tracer = otel.Tracer("ripple")
	meter  = otel.Meter("ripple")
)

var (
	planLatency      metric.Float64Histogram
	planImpacts      metric.Int64Histogram
	patchesGenerated metric.Int64Counter
	applyTotal       metric.Int64Counter
	filesWritten     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		planLatency, err = meter.Float64Histogram(
			"ripple_plan_duration_seconds",
			metric.WithDescription("Duration of propagation planning"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		planImpacts, err = meter.Int64Histogram(
			"ripple_plan_impacts",
			metric.WithDescription("Downstream impacts per plan"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		patchesGenerated, err = meter.Int64Counter(
			"ripple_patches_generated_total",
			metric.WithDescription("Patches emitted by generators"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		applyTotal, err = meter.Int64Counter(
			"ripple_apply_total",
			metric.WithDescription("Manifest apply attempts by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesWritten, err = meter.Int64Counter(
			"ripple_files_written_total",
			metric.WithDescription("Files rewritten by apply"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPlanMetrics(ctx context.Context, kind ChangeKind, duration time.Duration, impacts int, risk Risk) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("change", string(kind)),
		attribute.String("risk", string(risk)),
	)
	planLatency.Record(ctx, duration.Seconds(), attrs)
	planImpacts.Record(ctx, int64(impacts), attrs)
}

func recordGenerateMetrics(ctx context.Context, kind ChangeKind, patches int) {
	if err := initMetrics(); err != nil {
		return
	}
	patchesGenerated.Add(ctx, int64(patches), metric.WithAttributes(attribute.String("change", string(kind))))
}

func recordApplyMetrics(ctx context.Context, outcome string, files int) {
	if err := initMetrics(); err != nil {
		return
	}
	applyTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if files > 0 {
		filesWritten.Add(ctx, int64(files))
	}
}

// startSpan starts an engine span tagged with the change being handled.
func startSpan(ctx context.Context, name string, spec ChangeSpec) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+name,
		trace.WithAttributes(
			attribute.String("ripple.change", string(spec.Kind)),
			attribute.String("ripple.target", spec.Target),
		),
	)
}
