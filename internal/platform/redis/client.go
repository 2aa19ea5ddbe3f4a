package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"hie-gateway/internal/platform/config"
)

// Client wraps go-redis with pool metrics.
type Client struct {
	*redis.Client

	mu        sync.Mutex
	lastStats *redis.PoolStats

	poolHits     prometheus.Counter
	poolMisses   prometheus.Counter
	poolTimeouts prometheus.Counter
	totalConns   prometheus.Gauge
	idleConns    prometheus.Gauge
}

// New connects and pings. An empty URL yields (nil, nil): Redis is optional
// and only used to fan scheduler kicks out across instances.
func New(ctx context.Context, cfg config.RedisConfig, reg prometheus.Registerer) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return wrap(client, reg), nil
}

func wrap(client *redis.Client, reg prometheus.Registerer) *Client {
	f := promauto.With(reg)
	return &Client{
		Client: client,
		poolHits: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_redis_pool_hits_total",
			Help: "Connections found in the pool",
		}),
		poolMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_redis_pool_misses_total",
			Help: "Connections not found in the pool",
		}),
		poolTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "hie_redis_pool_timeouts_total",
			Help: "Connection waits that timed out",
		}),
		totalConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "hie_redis_pool_total_conns",
			Help: "Total connections in the pool",
		}),
		idleConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "hie_redis_pool_idle_conns",
			Help: "Idle connections in the pool",
		}),
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats publishes pool counters as deltas since the last call.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalConns.Set(float64(stats.TotalConns))
	c.idleConns.Set(float64(stats.IdleConns))

	prev := c.lastStats
	if prev == nil {
		prev = &redis.PoolStats{}
	}
	if stats.Hits > prev.Hits {
		c.poolHits.Add(float64(stats.Hits - prev.Hits))
	}
	if stats.Misses > prev.Misses {
		c.poolMisses.Add(float64(stats.Misses - prev.Misses))
	}
	if stats.Timeouts > prev.Timeouts {
		c.poolTimeouts.Add(float64(stats.Timeouts - prev.Timeouts))
	}
	c.lastStats = stats
}
