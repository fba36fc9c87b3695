package readdirtrack

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for tracker operations.
type Metrics struct {
	bursts          metric.Int64Counter
	filesPrefetched metric.Int64Counter
}

func newTrackerMetrics(meter metric.Meter) (*Metrics, error) {
	bursts, err := meter.Int64Counter(
		"precache_tracker_bursts_total",
		metric.WithDescription("Precache bursts triggered by the listing detector"),
	)
	if err != nil {
		return nil, err
	}

	files, err := meter.Int64Counter(
		"precache_tracker_files_prefetched_total",
		metric.WithDescription("Directory entries covered by precache bursts"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		bursts:          bursts,
		filesPrefetched: files,
	}, nil
}
