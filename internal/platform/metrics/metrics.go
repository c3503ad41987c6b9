// Package metrics exposes process-wide collectors that are not owned by a
// single domain package, plus the /metrics handler.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RegisterDBStats exports connection pool statistics for the Postgres pool.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(db, "docverify"))
}

// RegisterRedisPool exports go-redis pool statistics.
func RegisterRedisPool(reg prometheus.Registerer, client *redis.Client) error {
	gauges := []struct {
		name string
		help string
		fn   func(*redis.PoolStats) float64
	}{
		{"docverify_redis_pool_total_conns", "Total connections in the Redis pool", func(s *redis.PoolStats) float64 { return float64(s.TotalConns) }},
		{"docverify_redis_pool_idle_conns", "Idle connections in the Redis pool", func(s *redis.PoolStats) float64 { return float64(s.IdleConns) }},
		{"docverify_redis_pool_timeouts", "Times a wait for a Redis connection timed out", func(s *redis.PoolStats) float64 { return float64(s.Timeouts) }},
	}
	for _, g := range gauges {
		fn := g.fn
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: g.name, Help: g.help}, func() float64 {
			return fn(client.PoolStats())
		})
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
