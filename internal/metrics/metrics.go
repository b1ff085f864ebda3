package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PortalAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltflux_portal_api_calls_total",
			Help: "Total water-data portal API calls",
		},
		[]string{"endpoint", "status"},
	)

	PortalAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saltflux_portal_api_latency_seconds",
			Help:    "Portal API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltflux_records_dropped_total",
			Help: "Records excluded during harmonization, by reason",
		},
		[]string{"reason"},
	)

	JoinRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltflux_join_rows_dropped_total",
			Help: "Rows dropped by inner joins for lack of a matching key",
		},
		[]string{"side"},
	)

	PartitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saltflux_partitions_total",
			Help: "Model partitions processed, by terminal state",
		},
		[]string{"status"},
	)
)
