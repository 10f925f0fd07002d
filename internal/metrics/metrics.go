// Package metrics exposes dispatcher counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/policy"
)

const namespace = "go2voice"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	utterances     *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	actionsSent    *prometheus.CounterVec
	sendFailures   prometheus.Counter
	intentScore    prometheus.Histogram
	decisionLag    prometheus.Histogram
	executorUp     prometheus.Gauge
	posture        prometheus.Gauge
	ingressRejects *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Transcripts received, by kind (final or partial).",
		}, []string{"kind"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_decisions_total",
			Help:      "Dispatch decisions for final transcripts, by reason.",
		}, []string{"reason"}),
		actionsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_sent_total",
			Help:      "Lines delivered to the executor, by action.",
		}, []string{"action"}),
		sendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Executor writes that failed.",
		}),
		intentScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_best_score",
			Help:      "Best intent score per final transcript that matched anything.",
			Buckets:   []float64{0.5, 1, 1.2, 1.5, 2, 3, 4, 6},
		}),
		decisionLag: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_latency_seconds",
			Help:      "Time from transcript timestamp to completed dispatch.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		executorUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_up",
			Help:      "1 while the executor process is ready or active.",
		}),
		posture: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "posture",
			Help:      "Inferred posture: 0 unknown, 1 sit, 2 stand.",
		}),
		ingressRejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_rejected_total",
			Help:      "Ingress requests refused, by cause.",
		}, []string{"cause"}),
	}
}

// Registry is exposed for tests and custom gatherers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveUtterance(final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	m.utterances.WithLabelValues(kind).Inc()
}

// ObserveDecision records one final-transcript outcome.
func (m *Metrics) ObserveDecision(d policy.Decision, score float64, lag time.Duration) {
	m.decisions.WithLabelValues(string(d.Reason)).Inc()
	if score > 0 {
		m.intentScore.Observe(score)
	}
	if lag >= 0 {
		m.decisionLag.Observe(lag.Seconds())
	}
}

func (m *Metrics) ObserveSent(action intent.ActionCode) {
	m.actionsSent.WithLabelValues(action.String()).Inc()
}

func (m *Metrics) ObserveSendFailure() {
	m.sendFailures.Inc()
}

func (m *Metrics) SetExecutorUp(up bool) {
	if up {
		m.executorUp.Set(1)
		return
	}
	m.executorUp.Set(0)
}

func (m *Metrics) SetPosture(p policy.Posture) {
	m.posture.Set(float64(p))
}

func (m *Metrics) ObserveIngressReject(cause string) {
	m.ingressRejects.WithLabelValues(cause).Inc()
}
