// Package metrics exposes streamer counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-pitchside/pkg/posestream"
)

const namespace = "pitchside"

// Source is what the collectors read from. *posestream.Streamer satisfies it.
type Source interface {
	Stats() posestream.Stats
	State() posestream.State
}

// Metrics holds a private registry with collectors over a Source.
type Metrics struct {
	registry *prometheus.Registry
	src      Source
}

// New creates the registry and registers the stream collectors.
func New(src Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		src:      src,
	}
	m.registerStreamMetrics()
	return m
}

func (m *Metrics) counter(name, help string, value func(posestream.Stats) uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		func() float64 { return float64(value(m.src.Stats())) },
	))
}

func (m *Metrics) registerStreamMetrics() {
	m.counter("sessions_started_total", "Streaming sessions started",
		func(s posestream.Stats) uint64 { return s.SessionsStarted })
	m.counter("frames_captured_total", "Frames captured and encoded",
		func(s posestream.Stats) uint64 { return s.FramesCaptured })
	m.counter("frames_skipped_total", "Loop iterations skipped because a frame was in flight",
		func(s posestream.Stats) uint64 { return s.FramesSkipped })
	m.counter("frames_sent_total", "Frames sent to the pose service",
		func(s posestream.Stats) uint64 { return s.FramesSent })
	m.counter("bytes_sent_total", "Encoded bytes sent to the pose service",
		func(s posestream.Stats) uint64 { return s.BytesSent })
	m.counter("frames_received_total", "Annotated frames received",
		func(s posestream.Stats) uint64 { return s.FramesReceived })
	m.counter("frames_painted_total", "Annotated frames painted",
		func(s posestream.Stats) uint64 { return s.FramesPainted })
	m.counter("frames_stale_total", "Annotated frames dropped for a newer one",
		func(s posestream.Stats) uint64 { return s.FramesStale })
	m.counter("decode_errors_total", "Annotated frames that could not be decoded",
		func(s posestream.Stats) uint64 { return s.DecodeErrors })
	m.counter("capture_errors_total", "Failed frame captures",
		func(s posestream.Stats) uint64 { return s.CaptureErrors })
	m.counter("transport_errors_total", "Connection failures during a session",
		func(s posestream.Stats) uint64 { return s.TransportErrors })
	m.counter("buffer_resizes_total", "Frame buffer reallocations",
		func(s posestream.Stats) uint64 { return s.BufferResizes })

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open connections to the pose service",
		},
		func() float64 { return float64(m.src.Stats().ActiveConnections) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming",
			Help:      "1 while a session is streaming",
		},
		func() float64 {
			if m.src.State() == posestream.StateStreaming {
				return 1
			}
			return 0
		},
	))
}

// RegisterViewers adds a gauge for connected dashboard viewers.
func (m *Metrics) RegisterViewers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Connected dashboard viewers",
		},
		func() float64 { return float64(count()) },
	))
}

// RegisterDropped adds a counter for viewer broadcasts dropped because a
// queue was full.
func (m *Metrics) RegisterDropped(dropped func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewer_broadcasts_dropped_total",
			Help:      "Viewer broadcasts dropped on a full queue",
		},
		func() float64 { return float64(dropped()) },
	))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
