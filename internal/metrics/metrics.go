// Package metrics exposes the controller's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxTotal counts successfully transmitted frames.
	TxTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsc_tx_frames_total",
		Help: "Frames successfully written to the serial device.",
	})

	// TxDropped counts commands dropped because the link was down.
	TxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsc_tx_dropped_total",
		Help: "Commands dropped while disconnected.",
	})

	// TxErrors counts write faults.
	TxErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsc_tx_errors_total",
		Help: "Serial write failures.",
	})

	// RxLines counts received lines.
	RxLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rsc_rx_lines_total",
		Help: "Lines received from the serial device.",
	})

	// SequenceRuns counts terminated sequence runs by outcome.
	SequenceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsc_sequence_runs_total",
		Help: "Reward sequence runs by terminal outcome.",
	}, []string{"outcome"})
)
