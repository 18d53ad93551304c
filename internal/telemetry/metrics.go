// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	applog "spectra/internal/log"
)

const meterName = "spectra"

// Metrics bundles the engine's instruments. A nil *Metrics is a valid
// receiver with no-op record methods.
type Metrics struct {
	framesProcessed metric.Int64Counter
	resultsEmitted  metric.Int64Counter
	framesDropped   metric.Int64Counter
	levelRMS        metric.Float64Histogram
	activeSessions  metric.Int64UpDownCounter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide Metrics bound to the global
// meter provider, building them on first use. Without an installed
// provider the instruments are no-ops.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider().Meter(meterName))
		if err != nil {
			applog.Warnf("telemetry instruments unavailable: %v", err)
			m = nil
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// NewMetrics creates the engine instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	framesProcessed, err := meter.Int64Counter("spectra.frames.processed",
		metric.WithDescription("Analysis frames run through the DSP pipeline"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, err
	}

	resultsEmitted, err := meter.Int64Counter("spectra.results.emitted",
		metric.WithDescription("Analysis results emitted to subscribers"),
		metric.WithUnit("{result}"))
	if err != nil {
		return nil, err
	}

	framesDropped, err := meter.Int64Counter("spectra.frames.dropped",
		metric.WithDescription("Capture frames dropped because the ring was full"),
		metric.WithUnit("{frame}"))
	if err != nil {
		return nil, err
	}

	levelRMS, err := meter.Float64Histogram("spectra.level.rms",
		metric.WithDescription("Smoothed RMS level sampled at emission time"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	activeSessions, err := meter.Int64UpDownCounter("spectra.sessions.active",
		metric.WithDescription("Analysis sessions currently running"),
		metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		framesProcessed: framesProcessed,
		resultsEmitted:  resultsEmitted,
		framesDropped:   framesDropped,
		levelRMS:        levelRMS,
		activeSessions:  activeSessions,
	}, nil
}

// RecordFrames adds n processed frames.
func (m *Metrics) RecordFrames(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.framesProcessed.Add(ctx, n)
}

// RecordEmit counts one emitted result and samples its RMS level.
func (m *Metrics) RecordEmit(ctx context.Context, rms float64) {
	if m == nil {
		return
	}
	m.resultsEmitted.Add(ctx, 1)
	m.levelRMS.Record(ctx, rms)
}

// RecordDrops adds n dropped capture frames.
func (m *Metrics) RecordDrops(ctx context.Context, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.framesDropped.Add(ctx, n)
}

// RecordSessionStart marks one analysis session as running.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// RecordSessionStop marks one analysis session as ended.
func (m *Metrics) RecordSessionStop(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
