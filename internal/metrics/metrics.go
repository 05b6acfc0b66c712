package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. Init must run before any of them
// is used; until then they are nil and the helpers below are no-ops.
var Metrics = struct {
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	TransportOps     *prometheus.CounterVec
	MediaEvents      *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}{}

var initOnce sync.Once

// Init registers all collectors with the default registry. pool may be nil.
func Init(pool *pgxpool.Pool) {
	initOnce.Do(func() { register(pool) })
}

func register(pool *pgxpool.Pool) {
	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vpplayer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route, method and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
	Metrics.RequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vpplayer_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})
	Metrics.ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vpplayer_playback_sessions_active",
		Help: "Number of live playback sessions.",
	})
	Metrics.TransportOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpplayer_playback_operations_total",
			Help: "Transport and queue operations applied to playback sessions.",
		},
		[]string{"op"},
	)
	Metrics.MediaEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpplayer_media_events_total",
			Help: "Media element events received, by type and outcome.",
		},
		[]string{"type", "applied"},
	)
	Metrics.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpplayer_cache_hits_total",
		Help: "Video list cache hits.",
	})
	Metrics.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpplayer_cache_misses_total",
		Help: "Video list cache misses.",
	})

	if pool != nil {
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "vpplayer_db_pool_acquired_connections",
				Help: "Database connections currently in use.",
			}, func() float64 { return float64(pool.Stat().AcquiredConns()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "vpplayer_db_pool_idle_connections",
				Help: "Idle database connections.",
			}, func() float64 { return float64(pool.Stat().IdleConns()) }),
		)
	}

	prometheus.MustRegister(
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.ActiveSessions,
		Metrics.TransportOps,
		Metrics.MediaEvents,
		Metrics.CacheHits,
		Metrics.CacheMisses,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func SetActiveSessions(n int) {
	if Metrics.ActiveSessions != nil {
		Metrics.ActiveSessions.Set(float64(n))
	}
}

func ObserveOperation(op string) {
	if Metrics.TransportOps != nil {
		Metrics.TransportOps.WithLabelValues(op).Inc()
	}
}

func ObserveMediaEvent(eventType string, applied bool) {
	if Metrics.MediaEvents != nil {
		Metrics.MediaEvents.WithLabelValues(eventType, strconv.FormatBool(applied)).Inc()
	}
}

func ObserveCache(hit bool) {
	if Metrics.CacheHits == nil {
		return
	}
	if hit {
		Metrics.CacheHits.Inc()
		return
	}
	Metrics.CacheMisses.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request duration labelled by the matched chi route
// pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// websocket lifetimes are not request latencies
		if Metrics.RequestDuration == nil || r.URL.Path == "/metrics" || websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		Metrics.RequestsInFlight.Inc()
		defer Metrics.RequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		Metrics.RequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
