package extents

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for extent operations.
type Metrics struct {
	segmentsEnumerated metric.Int64Counter
	bytesRead          metric.Int64Counter
}

func newExtentMetrics(meter metric.Meter) (*Metrics, error) {
	segments, err := meter.Int64Counter(
		"precache_extents_enumerated_total",
		metric.WithDescription("Extent segments produced by enumeration"),
	)
	if err != nil {
		return nil, err
	}

	bytesRead, err := meter.Int64Counter(
		"precache_extents_bytes_read_total",
		metric.WithDescription("Bytes pulled through the page cache"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		segmentsEnumerated: segments,
		bytesRead:          bytesRead,
	}, nil
}
