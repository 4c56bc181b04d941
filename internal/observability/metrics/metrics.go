package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the emotional-risk pipeline.
type PipelineMetrics struct {
	eventsTotal      *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	reactorFailures  *prometheus.CounterVec
	inferenceLatency *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serenai",
			Subsystem: "pipeline",
			Name:      "events_published_total",
			Help:      "Total risk events published to the dispatcher",
		}, []string{"emotion", "risk_level"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serenai",
			Subsystem: "pipeline",
			Name:      "alerts_created_total",
			Help:      "Total alerts created by the alert reactor",
		}, []string{"severity"}),
		reactorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serenai",
			Subsystem: "pipeline",
			Name:      "reactor_failures_total",
			Help:      "Total reactor invocations that failed and were isolated",
		}, []string{"reactor"}),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "serenai",
			Subsystem: "inference",
			Name:      "request_latency_seconds",
			Help:      "Latency of inference provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.alertsTotal, m.reactorFailures, m.inferenceLatency)
	return m
}

func (m *PipelineMetrics) ObserveEvent(emotion, riskLevel string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(emotion, riskLevel).Inc()
}

func (m *PipelineMetrics) ObserveAlert(severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(severity).Inc()
}

func (m *PipelineMetrics) ObserveReactorFailure(reactor string) {
	if m == nil {
		return
	}
	m.reactorFailures.WithLabelValues(reactor).Inc()
}

func (m *PipelineMetrics) ObserveInference(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.inferenceLatency.WithLabelValues(operation, status).Observe(seconds)
}
