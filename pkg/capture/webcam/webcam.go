// Package webcam provides a capture.Source backed by an OpenCV video
// capture device. It lives in its own package so that only binaries that
// talk to real hardware link against OpenCV.
package webcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/capture"
	"gocv.io/x/gocv"
)

// Warmup bounds how long Acquire waits for a first frame. Platforms that
// refuse camera access typically open the device and then never deliver.
const (
	warmupReads    = 30
	warmupInterval = 50 * time.Millisecond
)

// Source reads frames from a gocv.VideoCapture.
type Source struct {
	device string
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	logger *slog.Logger

	mu     sync.Mutex
	width  int
	height int
	closed bool
}

// Acquirer returns a capture.Acquirer that opens webcams with gocv.
func Acquirer(logger *slog.Logger) capture.Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, cfg camera.Config) (capture.Source, error) {
		return Open(ctx, cfg, logger)
	}
}

// Open opens the configured device, requests the preferred resolution and
// frame rate, and waits for the first frame.
func Open(ctx context.Context, cfg camera.Config, logger *slog.Logger) (*Source, error) {
	vc, err := gocv.OpenVideoCapture(deviceID(cfg.Device))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", capture.ErrDeviceUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s not opened", capture.ErrDeviceUnavailable, cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	s := &Source{
		device: cfg.Device,
		vc:     vc,
		mat:    gocv.NewMat(),
		logger: logger.With("device", cfg.Device),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}

	if err := s.warmup(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("webcam opened",
		"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"actual", fmt.Sprintf("%dx%d", s.width, s.height),
	)
	return s, nil
}

func (s *Source) warmup(ctx context.Context) error {
	for range warmupReads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.vc.Read(&s.mat) && !s.mat.Empty() {
			s.width, s.height = s.mat.Cols(), s.mat.Rows()
			return nil
		}
		time.Sleep(warmupInterval)
	}
	return fmt.Errorf("%w: no frames from %s", capture.ErrPermissionDenied, s.device)
}

// Size implements capture.Source. It reports the resolution of the most
// recent frame, which may differ from what was requested.
func (s *Source) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Frame implements capture.Source.
func (s *Source) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, capture.ErrClosed
	}
	if !s.vc.Read(&s.mat) || s.mat.Empty() {
		return nil, capture.ErrNoFrame
	}
	s.width, s.height = s.mat.Cols(), s.mat.Rows()

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("webcam: convert frame: %w", err)
	}
	return img, nil
}

// Close implements capture.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	if err := s.vc.Close(); err != nil {
		return fmt.Errorf("webcam: close %s: %w", s.device, err)
	}
	s.logger.Info("webcam released")
	return nil
}

// deviceID turns "0" into an index and leaves paths and URLs as strings.
func deviceID(device string) any {
	if n, err := strconv.Atoi(device); err == nil {
		return n
	}
	return device
}
