// Package metrics holds the prometheus collectors of the pipeline.
//
// Exposed series (all prefixed intrabot_):
//   - bars_closed_total{instrument}            bars emitted by the aggregator
//   - bars_out_of_order_total{instrument}      bars whose start precedes the previous one
//   - signal_outcomes_total{outcome}           evaluation cycles by outcome
//   - signals_total{instrument,kind}           signals offered to the coordinator
//   - latch_rejections_total{reason}           offers rejected before the queue
//   - queue_depth                              coordinator queue length
//   - coordinator_idle_ticks_total             poll timeouts with no signal
//   - orders_total{type,action}                orders handed to the gateway
//   - submission_failures_total{reason}        failed submissions
//   - reconnects_total{result}                 reconnect attempts
//   - state_transitions_total{from,to}         position phase transitions
//
// Collectors are registered in init() and served by the live HTTP server at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_bars_closed_total", Help: "Bars emitted by the aggregator"},
		[]string{"instrument"},
	)
	BarsOutOfOrder = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_bars_out_of_order_total", Help: "Bars appended with a timestamp older than the previous bar"},
		[]string{"instrument"},
	)
	SignalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_signal_outcomes_total", Help: "Signal evaluation cycles by outcome"},
		[]string{"outcome"},
	)
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_signals_total", Help: "Signals offered to the coordinator"},
		[]string{"instrument", "kind"},
	)
	LatchRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_latch_rejections_total", Help: "Signals rejected before reaching the queue"},
		[]string{"reason"},
	)
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_decisions_total", Help: "Queued signals by consumer result"},
		[]string{"result"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "intrabot_queue_depth", Help: "Signals waiting for the consumer"},
	)
	IdleTicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "intrabot_coordinator_idle_ticks_total", Help: "Consumer poll timeouts without a signal"},
	)
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_orders_total", Help: "Orders placed at the gateway"},
		[]string{"type", "action"},
	)
	SubmissionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_submission_failures_total", Help: "Order submissions that failed"},
		[]string{"reason"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_reconnects_total", Help: "Gateway reconnect attempts"},
		[]string{"result"},
	)
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_state_transitions_total", Help: "Position phase transitions"},
		[]string{"from", "to"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "intrabot_breaker_state", Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open"},
		[]string{"name"},
	)
	UnprotectedPositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intrabot_unprotected_positions_total", Help: "Positions left open without bracket legs after a failed exit"},
		[]string{"instrument"},
	)
)

func init() {
	prometheus.MustRegister(BarsClosed, BarsOutOfOrder)
	prometheus.MustRegister(SignalOutcomes, Signals, LatchRejections, Decisions, QueueDepth, IdleTicks)
	prometheus.MustRegister(Orders, SubmissionFailures, Reconnects, StateTransitions, BreakerState, UnprotectedPositions)
}

// Handler serves the default registry in the text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
