package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/platform/envutil"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge
	rateLimited *prometheus.CounterVec

	messagesSent    *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	realtimeDropped *prometheus.CounterVec
	streamClients   prometheus.Gauge
	presenceOnline  prometheus.Gauge
	unreadFanout    prometheus.Histogram

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Enabled is on unless METRICS_ENABLED says otherwise.
func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Current returns the process metrics, or nil when metrics are disabled. Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoworld_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "echoworld_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoworld_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoworld_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}, []string{"route"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoworld_messages_sent_total",
			Help: "Message sends by result (created, resubmit, failed).",
		}, []string{"result"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoworld_realtime_broadcasts_total",
			Help: "Realtime broadcasts by event and result.",
		}, []string{"event", "result"}),
		realtimeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoworld_realtime_dropped_total",
			Help: "Realtime envelopes dropped by reason.",
		}, []string{"reason"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoworld_realtime_stream_clients",
			Help: "Open realtime streams.",
		}),
		presenceOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoworld_presence_online",
			Help: "Users currently tracked as online.",
		}),
		unreadFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "echoworld_unread_fanout_conversations",
			Help:    "Conversations counted per unread request.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "echoworld_postgres_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoworld_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoworld_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight, m.rateLimited,
		m.messagesSent, m.broadcasts, m.realtimeDropped, m.streamClients, m.presenceOnline, m.unreadFanout,
		m.pgStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) IncMessageSent(result string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(result).Inc()
}

func (m *Metrics) IncBroadcast(event string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.broadcasts.WithLabelValues(event, result).Inc()
}

func (m *Metrics) IncRealtimeDropped(reason string) {
	if m == nil {
		return
	}
	m.realtimeDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) StreamClientsInc() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *Metrics) StreamClientsDec() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}

func (m *Metrics) SetPresenceOnline(n int) {
	if m == nil {
		return
	}
	m.presenceOnline.Set(float64(n))
}

func (m *Metrics) ObserveUnreadFanout(conversations int) {
	if m == nil {
		return
	}
	m.unreadFanout.Observe(float64(conversations))
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

// StartRedisCollector pings through the bus client instead of dialing a second connection.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
