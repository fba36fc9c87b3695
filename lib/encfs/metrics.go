package encfs

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metrics instruments for resolver operations.
type Metrics struct {
	refreshes   metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

func newResolverMetrics(meter metric.Meter) (*Metrics, error) {
	refreshes, err := meter.Int64Counter(
		"precache_resolver_mount_refreshes_total",
		metric.WithDescription("Process-table scans performed to refresh the mount table"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"precache_resolver_inode_cache_hits_total",
		metric.WithDescription("Resolutions served from the inode cache"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"precache_resolver_inode_cache_misses_total",
		metric.WithDescription("Resolutions that required walking the backing tree"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		refreshes:   refreshes,
		cacheHits:   cacheHits,
		cacheMisses: cacheMisses,
	}, nil
}
