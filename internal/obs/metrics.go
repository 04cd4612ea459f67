package obs

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики live-сессий и брокера уведомлений
var (
	liveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_sessions",
			Help: "Currently open notification sessions.",
		},
		[]string{"kind"},
	)

	brokerChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "broker_channels",
		Help: "Currently active broker channels.",
	})

	brokerEventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_events_published_total",
		Help: "Events accepted by the notification broker.",
	})

	brokerEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broker_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		liveSessions, brokerChannels,
		brokerEventsPublished, brokerEventsDropped,
	)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SessionOpened records a new live notification session of the given kind.
func SessionOpened(kind string) { liveSessions.WithLabelValues(kind).Inc() }

// SessionClosed records session teardown.
func SessionClosed(kind string) { liveSessions.WithLabelValues(kind).Dec() }

// ChannelOpened / ChannelClosed track the broker channel population.
func ChannelOpened() { brokerChannels.Inc() }
func ChannelClosed() { brokerChannels.Dec() }

// EventPublished counts one broker publish.
func EventPublished() { brokerEventsPublished.Inc() }

// EventDropped counts one per-subscriber drop.
func EventDropped() { brokerEventsDropped.Inc() }

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path // без роутера берём как есть
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack is required so websocket upgrades keep working through Instrument.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}
