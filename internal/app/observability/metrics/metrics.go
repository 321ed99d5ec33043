package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	SessionsActive      metric.Int64UpDownCounter
	DispatchesTotal     metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
	MarkersCreatedTotal metric.Int64Counter
	MarkersPurgedTotal  metric.Int64Counter
	MarkersActive       metric.Int64Gauge
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("pinpoint")
		var err error
		m := &AppMetrics{}

		m.SessionsActive, err = meter.Int64UpDownCounter(
			"ws_sessions_active",
			metric.WithDescription("Number of open WebSocket sessions"),
			metric.WithUnit("{session}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create ws_sessions_active: %v", err)
		}

		m.DispatchesTotal, err = meter.Int64Counter(
			"dispatches_total",
			metric.WithDescription("Total number of dispatched requests"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create dispatches_total: %v", err)
		}

		m.DispatchDuration, err = meter.Float64Histogram(
			"dispatch_duration_seconds",
			metric.WithDescription("Duration of request dispatches in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create dispatch_duration_seconds: %v", err)
		}

		m.MarkersCreatedTotal, err = meter.Int64Counter(
			"markers_created_total",
			metric.WithDescription("Total number of markers created"),
			metric.WithUnit("{marker}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create markers_created_total: %v", err)
		}

		m.MarkersPurgedTotal, err = meter.Int64Counter(
			"markers_purged_total",
			metric.WithDescription("Total number of expired markers purged"),
			metric.WithUnit("{marker}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create markers_purged_total: %v", err)
		}

		m.MarkersActive, err = meter.Int64Gauge(
			"markers_active",
			metric.WithDescription("Number of non-expired markers in the store"),
			metric.WithUnit("{marker}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create markers_active: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global metric instruments, initializing them on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
