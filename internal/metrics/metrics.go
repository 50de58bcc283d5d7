package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_events_total",
			Help: "Outbox event lifecycle counter by stage",
		},
		[]string{"stage"}, // stored|published|retry_failed|dead_lettered
	)

	StreamEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_stream_entries_total",
			Help: "Broker stream entries seen by the tailer, by outcome",
		},
		[]string{"outcome"}, // forwarded|skipped
	)

	HubBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_hub_broadcasts_total",
			Help: "Messages broadcast to tenant subscriber sets",
		},
	)

	HubClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_hub_clients",
			Help: "Currently connected realtime subscribers",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		StreamEntriesTotal,
		HubBroadcastsTotal,
		HubClients,
	)
}
