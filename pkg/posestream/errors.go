package posestream

import "errors"

// Session failures. Causes are wrapped, so errors.Is works for both the
// category and the underlying error (for example capture.ErrPermissionDenied).
var (
	// ErrAcquisition means the camera could not be acquired. The streamer
	// returns to Idle and no connection is attempted.
	ErrAcquisition = errors.New("posestream: capture acquisition failed")

	// ErrTransportOpen means the connection to the service could not be
	// opened. The streamer ends Stopped; it is not retried.
	ErrTransportOpen = errors.New("posestream: transport open failed")

	// ErrTransportLost means an open connection failed mid-session. The
	// session ends Stopped; there is no reconnect.
	ErrTransportLost = errors.New("posestream: transport lost")

	// ErrDecode marks an inbound frame that could not be decoded. It never
	// ends a session.
	ErrDecode = errors.New("posestream: decode failed")

	// ErrAlreadyStreaming is returned by Start while a session is active.
	ErrAlreadyStreaming = errors.New("posestream: already streaming")

	// ErrNoAcquirer and ErrNoDialer are configuration errors.
	ErrNoAcquirer = errors.New("posestream: capture acquirer required")
	ErrNoDialer   = errors.New("posestream: transport dialer required")
)
