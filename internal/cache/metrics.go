package cache

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const statsTimeout = 2 * time.Second

// RegisterMetrics exposes the store's counters on the default Prometheus registerer.
// Clear resets the store's counters, so they are published as gauges.
func RegisterMetrics(store Store, logger *zap.Logger) error {
	return registerMetrics(prometheus.DefaultRegisterer, store, logger)
}

func registerMetrics(reg prometheus.Registerer, store Store, logger *zap.Logger) error {
	read := func(pick func(Stats) float64) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
			defer cancel()
			stats, err := store.Stats(ctx)
			if err != nil {
				if logger != nil {
					logger.Warn("query cache stats unavailable", zap.Error(err))
				}
				return 0
			}
			return pick(stats)
		}
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storefront_query_cache_hits",
			Help: "Query cache lookups served from cache since the last clear",
		}, read(func(s Stats) float64 { return float64(s.Hits) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storefront_query_cache_misses",
			Help: "Query cache lookups that found nothing or an expired entry since the last clear",
		}, read(func(s Stats) float64 { return float64(s.Misses) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storefront_query_cache_sets",
			Help: "Query cache writes since the last clear",
		}, read(func(s Stats) float64 { return float64(s.Sets) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storefront_query_cache_invalidations",
			Help: "Query cache entries removed by expiry or pattern invalidation since the last clear",
		}, read(func(s Stats) float64 { return float64(s.Invalidations) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storefront_query_cache_entries",
			Help: "Live query cache entries",
		}, read(func(s Stats) float64 { return float64(s.CurrentSize) })),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
