// Package telemetry exports interview metrics in Prometheus format.
package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mockview"

// Metrics holds per-process interview collectors. All methods are safe on a
// nil receiver so callers can leave telemetry disabled.
type Metrics struct {
	registry *prometheus.Registry

	QuestionsTotal     *prometheus.CounterVec
	TurnsTotal         *prometheus.CounterVec
	BargeInsTotal      prometheus.Counter
	ReopensTotal       prometheus.Counter
	DecisionsTotal     *prometheus.CounterVec
	DegradationsTotal  *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	GenerationDuration prometheus.Histogram
	SessionsTotal      *prometheus.CounterVec
}

// NewMetrics creates collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Questions asked by source",
			},
			[]string{"source"},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Closed turns by outcome",
			},
			[]string{"outcome"},
		),
		BargeInsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "barge_ins_total",
				Help:      "Candidate interruptions of system speech",
			},
		),
		ReopensTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reopens_total",
				Help:      "Turns reopened after the candidate resumed speaking",
			},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Follow-up decisions by kind",
			},
			[]string{"decision"},
		),
		DegradationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degradations_total",
				Help:      "Degraded capability calls by capability",
			},
			[]string{"capability"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Answer evaluation latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Question generation latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Finished sessions by end reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) Question(source string) {
	if m != nil {
		m.QuestionsTotal.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) Turn(outcome string) {
	if m != nil {
		m.TurnsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) BargeIn() {
	if m != nil {
		m.BargeInsTotal.Inc()
	}
}

func (m *Metrics) Reopen() {
	if m != nil {
		m.ReopensTotal.Inc()
	}
}

func (m *Metrics) Decision(decision string) {
	if m != nil {
		m.DecisionsTotal.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) Degraded(capability string) {
	if m != nil {
		m.DegradationsTotal.WithLabelValues(capability).Inc()
	}
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m != nil {
		m.EvaluationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	if m != nil {
		m.GenerationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SessionEnded(reason string) {
	if m != nil {
		m.SessionsTotal.WithLabelValues(reason).Inc()
	}
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
