package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trafficdeck"

// Default holds the process-wide collectors. Registered once at init.
var Default = initMetrics()

type Metrics struct {
	Handler http.Handler

	FramesReceived    *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	ReconnectAttempts prometheus.Counter
	Connected         prometheus.Gauge
	Services          prometheus.Gauge
	LastApplied       prometheus.Gauge
	WriteBacks        *prometheus.CounterVec
}

func initMetrics() Metrics {
	m := Metrics{
		Handler: promhttp.Handler(),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "frames_received_total", Help: "Inbound channel frames by type"},
			[]string{"type"}),
		FramesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "frames_dropped_total", Help: "Inbound frames dropped as malformed or unusable"}),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "reconnect_attempts_total", Help: "Channel reconnect attempts"}),
		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "connected", Help: "1 when the realtime channel is connected"}),
		Services: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "services", Help: "Number of services in the registry"}),
		LastApplied: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "last_applied_at", Help: "Unix timestamp of the last registry apply"}),
		WriteBacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "writebacks_total", Help: "Traffic write-back calls by result"},
			[]string{"result"}),
	}

	prometheus.MustRegister(
		m.FramesReceived,
		m.FramesDropped,
		m.ReconnectAttempts,
		m.Connected,
		m.Services,
		m.LastApplied,
		m.WriteBacks,
	)

	return m
}

// ObserveApply records a successful registry apply.
func ObserveApply(serviceCount int) {
	Default.Services.Set(float64(serviceCount))
	Default.LastApplied.SetToCurrentTime()
}

// ObserveWriteBack records the outcome of a traffic write-back call.
func ObserveWriteBack(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	Default.WriteBacks.WithLabelValues(result).Inc()
}
