package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_order_engine"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry             *prometheus.Registry
	ordersPlaced         prometheus.Counter
	ordersFailed         prometheus.Counter
	leverageUpdates      prometheus.Counter
	conditionalsCanceled prometheus.Counter
	partialSequences     prometheus.Counter
	unprotected          prometheus.Counter
	confirmSkipped       prometheus.Counter
	flowsSubmitted       *prometheus.CounterVec
	flowsFailed          *prometheus.CounterVec
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:             registry,
		ordersPlaced:         newCounter("orders_placed_total", "Total number of orders accepted by the exchange."),
		ordersFailed:         newCounter("orders_failed_total", "Total number of order placement failures."),
		leverageUpdates:      newCounter("leverage_updates_total", "Total number of leverage or margin mode updates."),
		conditionalsCanceled: newCounter("conditionals_cancelled_total", "Total number of TP/SL orders cancelled for replacement."),
		partialSequences:     newCounter("partial_sequences_total", "Total number of submission sequences that failed after a step succeeded."),
		unprotected:          newCounter("unprotected_positions_total", "Total number of TP/SL edits that left a position without conditional orders."),
		confirmSkipped:       newCounter("confirmations_skipped_total", "Total number of flows that skipped the confirm step by preference."),
		flowsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "flows_submitted_total",
			Help:      "Total number of transactional flows submitted, by action class.",
		}, []string{"class"}),
		flowsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "flows_failed_total",
			Help:      "Total number of transactional flows that ended in error, by action class.",
		}, []string{"class"}),
	}
	registry.MustRegister(
		p.ordersPlaced,
		p.ordersFailed,
		p.leverageUpdates,
		p.conditionalsCanceled,
		p.partialSequences,
		p.unprotected,
		p.confirmSkipped,
		p.flowsSubmitted,
		p.flowsFailed,
	)
	p.Metrics = &Metrics{
		OrdersPlaced:          promCounter{p.ordersPlaced},
		OrdersFailed:          promCounter{p.ordersFailed},
		LeverageUpdates:       promCounter{p.leverageUpdates},
		ConditionalsCancelled: promCounter{p.conditionalsCanceled},
		PartialSequences:      promCounter{p.partialSequences},
		UnprotectedPositions:  promCounter{p.unprotected},
		ConfirmationsSkipped:  promCounter{p.confirmSkipped},
		FlowsSubmitted:        promCounter{p.flowsSubmitted.WithLabelValues("all")},
		FlowsFailed:           promCounter{p.flowsFailed.WithLabelValues("all")},
	}
	return p
}

// ForClass returns a copy of the counter set whose flow counters carry the
// given action class label.
func (p *Prometheus) ForClass(class string) *Metrics {
	m := *p.Metrics
	m.FlowsSubmitted = promCounter{p.flowsSubmitted.WithLabelValues(class)}
	m.FlowsFailed = promCounter{p.flowsFailed.WithLabelValues(class)}
	return &m
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
