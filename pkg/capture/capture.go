// Package capture defines live video sources for the pose-estimation stream.
//
// A Source is acquired once per streaming session and released when the
// session ends. Implementations must tolerate Size and Frame being called
// from a single loop goroutine and Close being called exactly once from the
// same goroutine; Close must also be idempotent.
package capture

import (
	"context"
	"errors"
	"image"

	"github.com/teslashibe/go-pitchside/pkg/camera"
)

// Source is a live camera feed providing successive frames.
type Source interface {
	// Size returns the resolution the source currently produces. It may
	// change between frames.
	Size() (width, height int)

	// Frame returns the current image. The returned image is only valid
	// until the next call to Frame.
	Frame() (image.Image, error)

	// Close releases the underlying hardware. Safe to call more than once.
	Close() error
}

// Acquirer opens a capture source with the preferred settings.
type Acquirer func(ctx context.Context, cfg camera.Config) (Source, error)

// Sentinel errors for acquisition and capture.
var (
	// ErrPermissionDenied is returned when the platform or user refuses
	// camera access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrDeviceUnavailable is returned when the device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrClosed is returned when reading from a released source.
	ErrClosed = errors.New("capture: source closed")

	// ErrNoFrame is returned when the source has no image ready.
	ErrNoFrame = errors.New("capture: no frame available")
)

// IsAcquisitionError reports whether err is one of the acquisition
// failures a user needs to see (permission or hardware).
func IsAcquisitionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable)
}

// Denied returns an Acquirer that always fails with err, defaulting to
// ErrPermissionDenied.
func Denied(err error) Acquirer {
	if err == nil {
		err = ErrPermissionDenied
	}
	return func(ctx context.Context, cfg camera.Config) (Source, error) {
		return nil, err
	}
}
