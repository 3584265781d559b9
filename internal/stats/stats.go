package stats

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "chatclient"

const (
	ChannelsOpen        = "channels_open"
	ChannelDials        = "channel_dials_total"
	FramesReceived      = "frames_received_total"
	FramesDropped       = "frames_dropped_total"
	StaleEventsDropped  = "stale_events_dropped_total"
	StaleResultsDropped = "stale_results_dropped_total"
	MessagesSent        = "messages_sent_total"
	RestErrors          = "rest_errors_total"
	Reconnects          = "reconnects_total"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
}

// StatsUpdater exposes named gauges through a private Prometheus registry.
type StatsUpdater struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	gauges   map[string]prometheus.Gauge
}

// NewStatsUpdater creates a new stats updater instance and mounts its
// handler on mux when mux is non-nil.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]prometheus.Gauge),
	}

	if mux != nil {
		mux.Handle("GET /metrics", su.Handler())
	}

	su.initializeMetrics()
	return su
}

func (su *StatsUpdater) initializeMetrics() {
	for _, name := range []string{
		ChannelsOpen,
		ChannelDials,
		FramesReceived,
		FramesDropped,
		StaleEventsDropped,
		StaleResultsDropped,
		MessagesSent,
		RestErrors,
		Reconnects,
	} {
		su.RegisterMetric(name)
	}
}

func (su *StatsUpdater) Handler() http.Handler {
	return promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{})
}

func (su *StatsUpdater) gauge(name string) prometheus.Gauge {
	su.mu.Lock()
	defer su.mu.Unlock()

	g, ok := su.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
		})
		su.registry.MustRegister(g)
		su.gauges[name] = g
	}

	return g
}

func (su *StatsUpdater) Incr(name string) {
	su.gauge(name).Inc()
}

func (su *StatsUpdater) Decr(name string) {
	su.gauge(name).Dec()
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.gauge(name)
}

// Value reports the current value of a metric.
func (su *StatsUpdater) Value(name string) float64 {
	su.mu.Lock()
	g, ok := su.gauges[name]
	su.mu.Unlock()
	if !ok {
		return 0
	}

	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}

	return m.GetGauge().GetValue()
}
