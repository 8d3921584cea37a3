package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/landmonitor/sampledata"

// Fetch outcomes recorded against the fetch counter.
const (
	OutcomeHit     = "hit"     // verified local copy reused
	OutcomeMiss    = "miss"    // downloaded for the first time
	OutcomeRefetch = "refetch" // local copy failed verification, re-downloaded
	OutcomeError   = "error"
)

// instruments holds the metric instruments, created lazily on first use so
// that the host application's meter provider is picked up.
type instruments struct {
	fetchTotal      metric.Int64Counter
	fetchBytesTotal metric.Int64Counter
	fetchDuration   metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     *instruments
)

func get() *instruments {
	instOnce.Do(func() {
		meter := otel.Meter(meterName)

		fetchTotal, _ := meter.Int64Counter("sampledata.fetch.total",
			metric.WithDescription("Number of dataset fetch operations"))
		fetchBytes, _ := meter.Int64Counter("sampledata.fetch.bytes.total",
			metric.WithDescription("Bytes downloaded from remote origins"),
			metric.WithUnit("By"))
		fetchDuration, _ := meter.Float64Histogram("sampledata.fetch.duration",
			metric.WithDescription("Duration of dataset fetch operations"),
			metric.WithUnit("s"))

		inst = &instruments{
			fetchTotal:      fetchTotal,
			fetchBytesTotal: fetchBytes,
			fetchDuration:   fetchDuration,
		}
	})
	return inst
}

// RecordFetch records one fetch operation for an asset.
func RecordFetch(ctx context.Context, asset, outcome string, duration time.Duration, bytes int64) {
	i := get()

	attrs := metric.WithAttributes(
		attribute.String("asset", asset),
		attribute.String("outcome", outcome),
	)

	i.fetchTotal.Add(ctx, 1, attrs)
	i.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	if bytes > 0 {
		i.fetchBytesTotal.Add(ctx, bytes, attrs)
	}
}
