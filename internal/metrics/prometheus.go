package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "spread_sniper_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	ordersCancelled  prometheus.Counter
	rolloverStarted  prometheus.Counter
	rolloverComplete prometheus.Counter
	feedReconnects   prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of leg orders placed.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order placement failures.",
	})
	ordersCancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_cancelled_total",
		Help:      "Total number of timed-out orders cancelled.",
	})
	rolloverStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rollovers_started_total",
		Help:      "Total number of rollover unwinds started.",
	})
	rolloverComplete := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rollovers_completed_total",
		Help:      "Total number of rollover rebuilds completed.",
	})
	feedReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "feed_reconnects_total",
		Help:      "Total number of market data feed reconnects.",
	})

	registry.MustRegister(ordersPlaced, ordersFailed, ordersCancelled, rolloverStarted, rolloverComplete, feedReconnects)

	m := &Metrics{
		OrdersPlaced:       promCounter{ordersPlaced},
		OrdersFailed:       promCounter{ordersFailed},
		OrdersCancelled:    promCounter{ordersCancelled},
		RolloversStarted:   promCounter{rolloverStarted},
		RolloversCompleted: promCounter{rolloverComplete},
		FeedReconnects:     promCounter{feedReconnects},
	}

	return &Prometheus{
		Metrics:          m,
		registry:         registry,
		ordersPlaced:     ordersPlaced,
		ordersFailed:     ordersFailed,
		ordersCancelled:  ordersCancelled,
		rolloverStarted:  rolloverStarted,
		rolloverComplete: rolloverComplete,
		feedReconnects:   feedReconnects,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
