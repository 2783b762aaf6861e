package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casegate/internal/domain"
	"casegate/internal/webhook"
)

// Collector owns every casegate metric and the registry they live in. It
// satisfies compliance.Recorder, webhook.FailureRecorder and webhook.Handler.
type Collector struct {
	registry *prometheus.Registry

	evaluations      prometheus.Counter
	evaluationTime   prometheus.Histogram
	rulesEvaluated   prometheus.Histogram
	violations       prometheus.Histogram
	blockersCreated  prometheus.Counter
	blockersResolved prometheus.Counter
	gateDecisions    *prometheus.CounterVec
	events           *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	sweepRuns        *prometheus.CounterVec
}

func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "casegate"
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "evaluations_total",
			Help:      "Rule engine evaluations.",
		}),
		evaluationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating rules for one case.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		rulesEvaluated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "rules_evaluated",
			Help:      "Active rules considered per evaluation.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		violations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "violations_per_evaluation",
			Help:      "Violated rules per evaluation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		blockersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "blockers_created_total",
			Help:      "Blockers opened by reconciliation.",
		}),
		blockersResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "blockers_resolved_total",
			Help:      "Blockers resolved by reconciliation.",
		}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "gate_decisions_total",
			Help:      "Stage gate decisions by target stage and outcome.",
		}, []string{"target", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signature",
			Name:      "events_total",
			Help:      "Envelope events published.",
		}, []string{"type"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "handler_failures_total",
			Help:      "Event handler failures by handler and event type.",
		}, []string{"handler", "type"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "sweep_cases_total",
			Help:      "Cases visited by the periodic sweep by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		c.evaluations,
		c.evaluationTime,
		c.rulesEvaluated,
		c.violations,
		c.blockersCreated,
		c.blockersResolved,
		c.gateDecisions,
		c.events,
		c.handlerFailures,
		c.sweepRuns,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (c *Collector) ObserveEvaluation(rules, violations int, d time.Duration) {
	c.evaluations.Inc()
	c.evaluationTime.Observe(d.Seconds())
	c.rulesEvaluated.Observe(float64(rules))
	c.violations.Observe(float64(violations))
}

func (c *Collector) BlockersCreated(n int) {
	c.blockersCreated.Add(float64(n))
}

func (c *Collector) BlockersResolved(n int) {
	c.blockersResolved.Add(float64(n))
}

func (c *Collector) GateDecision(target domain.Stage, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	c.gateDecisions.WithLabelValues(string(target), outcome).Inc()
}

func (c *Collector) HandlerFailed(handler string, eventType webhook.EventType) {
	c.handlerFailures.WithLabelValues(handler, string(eventType)).Inc()
}

func (c *Collector) SweepCase(ok bool) {
	outcome := "synced"
	if !ok {
		outcome = "failed"
	}
	c.sweepRuns.WithLabelValues(outcome).Inc()
}

// HandleEvent counts published events.
func (c *Collector) HandleEvent(_ context.Context, ev webhook.Event) error {
	c.events.WithLabelValues(string(ev.Type)).Inc()
	return nil
}
