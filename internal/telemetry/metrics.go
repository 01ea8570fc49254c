package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/assetpipe"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal   metric.Int64Counter
	BuildDuration metric.Float64Histogram
	OutputBytes   metric.Int64Counter

	// Watch metrics
	RebuildsTotal       metric.Int64Counter
	RebuildRetriesTotal metric.Int64Counter

	// Serve metrics
	RequestsTotal     metric.Int64Counter
	PrecompressedHits metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build spans
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	// Build metrics
	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds by status"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	m.OutputBytes, _ = meter.Int64Counter(
		"assetpipe.outputs.bytes",
		metric.WithDescription("Bytes written to the output directory"),
		metric.WithUnit("By"),
	)

	// Watch metrics
	m.RebuildsTotal, _ = meter.Int64Counter(
		"assetpipe.watch.rebuilds.total",
		metric.WithDescription("Total number of rebuilds triggered by file changes"),
		metric.WithUnit("{build}"),
	)

	m.RebuildRetriesTotal, _ = meter.Int64Counter(
		"assetpipe.watch.rebuild_retries.total",
		metric.WithDescription("Total number of rebuild retries after resolution errors"),
		metric.WithUnit("{retry}"),
	)

	// Serve metrics
	m.RequestsTotal, _ = meter.Int64Counter(
		"assetpipe.serve.requests.total",
		metric.WithDescription("Total number of asset requests"),
		metric.WithUnit("{request}"),
	)

	m.PrecompressedHits, _ = meter.Int64Counter(
		"assetpipe.serve.precompressed.total",
		metric.WithDescription("Requests answered with a precompressed variant"),
		metric.WithUnit("{request}"),
	)

	return m
}
