package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the blast engine.
type Metrics struct {
	SessionsStartedTotal  *prometheus.CounterVec
	SessionsFinishedTotal *prometheus.CounterVec
	ActiveSessions        prometheus.Gauge

	MessagesTotal       *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec
	LedgerErrorsTotal   *prometheus.CounterVec

	StaleSessionsFailedTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastkeun_sessions_started_total",
				Help: "Total number of blast sessions started",
			},
			[]string{"mode"},
		),
		SessionsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastkeun_sessions_finished_total",
				Help: "Total number of blast sessions that reached a terminal status",
			},
			[]string{"mode", "status"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastkeun_sessions_active",
				Help: "Number of blast sessions currently running",
			},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastkeun_messages_total",
				Help: "Total number of processed contacts by result",
			},
			[]string{"mode", "result"},
		),
		SendDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blastkeun_gateway_send_duration_seconds",
				Help:    "Gateway send call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		LedgerErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastkeun_ledger_errors_total",
				Help: "Total number of failed ledger writes",
			},
			[]string{"op"},
		),
		StaleSessionsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blastkeun_stale_sessions_failed_total",
				Help: "Total number of orphaned running sessions marked failed",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SessionsStartedTotal,
		m.SessionsFinishedTotal,
		m.ActiveSessions,
		m.MessagesTotal,
		m.SendDurationSeconds,
		m.LedgerErrorsTotal,
		m.StaleSessionsFailedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SessionStarted(mode string) {
	m.SessionsStartedTotal.WithLabelValues(mode).Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished(mode, status string) {
	m.SessionsFinishedTotal.WithLabelValues(mode, status).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) MessageProcessed(mode string, success bool) {
	result := "failed"
	if success {
		result = "sent"
	}
	m.MessagesTotal.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) ObserveSend(mode string, d time.Duration) {
	m.SendDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) LedgerError(op string) {
	m.LedgerErrorsTotal.WithLabelValues(op).Inc()
}
