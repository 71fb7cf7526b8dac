package sync

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the pipeline. In daemon mode they are served over
// promhttp; one-shot runs register them on a private registry.
type Metrics struct {
	Cycles             prometheus.Counter
	CycleDuration      prometheus.Gauge
	EventsDiscovered   prometheus.Counter
	EventsProcessed    prometheus.Counter
	EventsFailed       prometheus.Counter
	SegmentsDownloaded prometheus.Counter
	DeviceFailures     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_sync_cycles_total", Help: "Completed sync cycles.",
		}),
		CycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "midoorbell_sync_cycle_duration_seconds", Help: "Duration of the last sync cycle.",
		}),
		EventsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_events_discovered_total", Help: "New (not yet checkpointed) events discovered.",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_events_processed_total", Help: "Events downloaded, merged and checkpointed.",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_events_failed_total", Help: "Events abandoned due to a pipeline failure.",
		}),
		SegmentsDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_segments_downloaded_total", Help: "Decrypted media segments written to disk.",
		}),
		DeviceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "midoorbell_device_failures_total", Help: "Devices whose event discovery failed.",
		}),
	}
	reg.MustRegister(
		m.Cycles, m.CycleDuration,
		m.EventsDiscovered, m.EventsProcessed, m.EventsFailed,
		m.SegmentsDownloaded, m.DeviceFailures,
	)
	return m
}
