package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion path
	PacketsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_packets_accepted_total",
		Help: "Total number of packets accepted and stored",
	})

	PacketsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_packets_rejected_total",
		Help: "Total number of packets rejected before storage",
	}, []string{"reason"})

	PacketsLostInferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_packets_lost_inferred_total",
		Help: "Total number of packets inferred lost from sequence gaps, across all devices",
	})

	// Store
	AppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_append_duration_seconds",
		Help:    "Packet append duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Broadcast path
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_subscribers",
		Help: "Current number of connected viewer subscriptions",
	})

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_events_published_total",
		Help: "Total number of packet events published to the broadcaster",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_events_dropped_total",
		Help: "Total number of events dropped because a subscriber buffer was full",
	})
)
