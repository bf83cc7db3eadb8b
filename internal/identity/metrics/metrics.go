// Package metrics holds the identity service's Prometheus collectors. All
// recorders are nil-safe so services can be constructed without metrics in
// tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity"

type Metrics struct {
	registry *prometheus.Registry

	Registrations     prometheus.Counter
	Logins            *prometheus.CounterVec // result
	OTPIssued         *prometheus.CounterVec // purpose
	OTPVerifications  *prometheus.CounterVec // purpose, result
	TokenRefreshes    *prometheus.CounterVec // result
	TokenReuse        prometheus.Counter
	SessionsRevoked   *prometheus.CounterVec // reason
	Notifications     *prometheus.CounterVec // path, status
	QueueDepth        prometheus.Gauge
	HousekeepingRows  *prometheus.CounterVec // table
	HTTPRequests      *prometheus.CounterVec // method, route, status
	HTTPRequestTiming *prometheus.HistogramVec
}

// New registers every collector on a fresh registry along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of accounts registered",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		OTPIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "One-time codes issued",
		}, []string{"purpose"}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "One-time code verifications by result",
		}, []string{"purpose", "result"}),
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Refresh token rotations by result",
		}, []string{"result"}),
		TokenReuse: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_reuse_detected_total",
			Help:      "Presentations of an already rotated or revoked refresh token",
		}),
		SessionsRevoked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Refresh sessions revoked by reason",
		}, []string{"reason"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification sends by delivery path and status",
		}, []string{"path", "status"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Notifications waiting in the queue, sampled by the worker",
		}),
		HousekeepingRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "housekeeping_deleted_total",
			Help:      "Expired rows removed by housekeeping",
		}, []string{"table"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestTiming: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registered() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.OTPIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) CodeVerified(purpose, result string) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(purpose, result).Inc()
}

func (m *Metrics) Refreshed(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.TokenReuse.Inc()
}

func (m *Metrics) Revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Notified(path, status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(path, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) Deleted(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HousekeepingRows.WithLabelValues(table).Add(float64(n))
}

// ObserveHTTP records one request. route should be the mux pattern, never the
// raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestTiming.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
