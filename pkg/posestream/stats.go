package posestream

import "sync/atomic"

// Stats is a snapshot of streamer counters. Counters are cumulative across
// sessions; ActiveConnections is a gauge.
type Stats struct {
	SessionsStarted   uint64 `json:"sessions_started"`
	FramesCaptured    uint64 `json:"frames_captured"`
	FramesSkipped     uint64 `json:"frames_skipped"`
	FramesSent        uint64 `json:"frames_sent"`
	BytesSent         uint64 `json:"bytes_sent"`
	FramesReceived    uint64 `json:"frames_received"`
	FramesPainted     uint64 `json:"frames_painted"`
	FramesStale       uint64 `json:"frames_stale"`
	DecodeErrors      uint64 `json:"decode_errors"`
	CaptureErrors     uint64 `json:"capture_errors"`
	TransportErrors   uint64 `json:"transport_errors"`
	BufferResizes     uint64 `json:"buffer_resizes"`
	ActiveConnections int64  `json:"active_connections"`
}

type counters struct {
	sessionsStarted   atomic.Uint64
	framesCaptured    atomic.Uint64
	framesSkipped     atomic.Uint64
	framesSent        atomic.Uint64
	bytesSent         atomic.Uint64
	framesReceived    atomic.Uint64
	framesPainted     atomic.Uint64
	framesStale       atomic.Uint64
	decodeErrors      atomic.Uint64
	captureErrors     atomic.Uint64
	transportErrors   atomic.Uint64
	bufferResizes     atomic.Uint64
	activeConnections atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		SessionsStarted:   c.sessionsStarted.Load(),
		FramesCaptured:    c.framesCaptured.Load(),
		FramesSkipped:     c.framesSkipped.Load(),
		FramesSent:        c.framesSent.Load(),
		BytesSent:         c.bytesSent.Load(),
		FramesReceived:    c.framesReceived.Load(),
		FramesPainted:     c.framesPainted.Load(),
		FramesStale:       c.framesStale.Load(),
		DecodeErrors:      c.decodeErrors.Load(),
		CaptureErrors:     c.captureErrors.Load(),
		TransportErrors:   c.transportErrors.Load(),
		BufferResizes:     c.bufferResizes.Load(),
		ActiveConnections: c.activeConnections.Load(),
	}
}
