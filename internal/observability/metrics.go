// Package observability holds the Prometheus collectors of the send client.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the upload pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Send metrics
	SendsTotal     *prometheus.CounterVec
	SendsActive    prometheus.Gauge
	SendDuration   prometheus.Histogram
	RetriesTotal   prometheus.Counter
	StagedWrites   *prometheus.CounterVec
	BytesUploaded  prometheus.Counter
	PartsUploaded  *prometheus.CounterVec
	PollsTotal     *prometheus.CounterVec
	TouchesTotal   prometheus.Counter
	TrustOutcomes  *prometheus.CounterVec
	CredentialRefs *prometheus.CounterVec

	gatherer    prometheus.Gatherer
	activeSends int64
}

// NewMetrics creates all collectors and registers them on reg. reg must also
// implement prometheus.Gatherer for Handler to serve it (a *prometheus.Registry
// does).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_sends_total",
				Help: "Sends finished, by outcome",
			},
			[]string{"outcome"},
		),

		SendsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "storm4_sends_active",
				Help: "Sends currently in progress",
			},
		),

		SendDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storm4_send_duration_seconds",
				Help:    "Time from send to done or fatal error",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		RetriesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "storm4_retries_scheduled_total",
				Help: "Transient failures that entered the retry countdown",
			},
		),

		StagedWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_staged_writes_total",
				Help: "Staged object writes, by kind",
			},
			[]string{"kind"},
		),

		BytesUploaded: f.NewCounter(
			prometheus.CounterOpts{
				Name: "storm4_bytes_uploaded_total",
				Help: "Ciphertext bytes written to staging",
			},
		),

		PartsUploaded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_multipart_parts_total",
				Help: "Multipart part uploads, by result",
			},
			[]string{"result"},
		),

		PollsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_polls_total",
				Help: "Poll requests, by stage",
			},
			[]string{"stage"},
		),

		TouchesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "storm4_touches_total",
				Help: "Staging objects touched to extend their expiry",
			},
		),

		TrustOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_trust_verifications_total",
				Help: "Public key verifications, by outcome",
			},
			[]string{"outcome"},
		),

		CredentialRefs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storm4_credential_refreshes_total",
				Help: "Temporary credential refreshes, by result",
			},
			[]string{"result"},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// RecordSendStart increments active send counters.
func (m *Metrics) RecordSendStart() {
	if m == nil {
		return
	}
	m.SendsActive.Set(float64(atomic.AddInt64(&m.activeSends, 1)))
}

// RecordSendFinish records a send that reached done or a fatal error.
func (m *Metrics) RecordSendFinish(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SendsActive.Set(float64(atomic.AddInt64(&m.activeSends, -1)))
	m.SendsTotal.WithLabelValues(outcome).Inc()
	m.SendDuration.Observe(durationSeconds)
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// RecordStagedWrite counts one staged object and its ciphertext size.
func (m *Metrics) RecordStagedWrite(kind string, bytes int64) {
	if m == nil {
		return
	}
	m.StagedWrites.WithLabelValues(kind).Inc()
	m.BytesUploaded.Add(float64(bytes))
}

func (m *Metrics) RecordPart(success bool, bytes int64) {
	if m == nil {
		return
	}
	if !success {
		m.PartsUploaded.WithLabelValues("failure").Inc()
		return
	}
	m.PartsUploaded.WithLabelValues("success").Inc()
	m.BytesUploaded.Add(float64(bytes))
}

func (m *Metrics) RecordPoll(stage string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordTouch() {
	if m == nil {
		return
	}
	m.TouchesTotal.Inc()
}

func (m *Metrics) RecordTrust(outcome string) {
	if m == nil {
		return
	}
	m.TrustOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCredentialRefresh(success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.CredentialRefs.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
