package catalogue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dailyproblem",
		Subsystem: "catalogue",
		Name:      "lookups_total",
		Help:      "Envelope lookups by where they were served from.",
	}, []string{"source"}) // memory, store, rebuild

	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dailyproblem",
		Subsystem: "catalogue",
		Name:      "rebuilds_total",
		Help:      "Catalogue rebuilds by outcome.",
	}, []string{"outcome"}) // ok, fetch_error, extract_error

	storeWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dailyproblem",
		Subsystem: "catalogue",
		Name:      "store_write_failures_total",
		Help:      "Envelope writes that could not be persisted.",
	})

	recordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dailyproblem",
		Subsystem: "catalogue",
		Name:      "records",
		Help:      "Number of problems in the current envelope.",
	})
)
