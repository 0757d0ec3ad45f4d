package posestream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/teslashibe/go-pitchside/internal/log"
	"github.com/teslashibe/go-pitchside/pkg/capture"
	"github.com/teslashibe/go-pitchside/pkg/display"
)

func newTestSession(t *testing.T, src capture.Source, conn *fakeConn, surface display.Surface) (*session, *counters) {
	t.Helper()
	stats := &counters{}
	s := newSession(context.Background(), sessionParams{
		id:          "test",
		src:         src,
		conn:        conn,
		surface:     surface,
		quality:     80,
		interval:    time.Hour,
		sendTimeout: time.Second,
		logger:      log.Discard(),
		stats:       stats,
	})
	t.Cleanup(s.cancel)
	return s, stats
}

func decodeSize(t *testing.T, payload []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("payload is not a JPEG: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestCaptureSkipsWhileInFlight(t *testing.T) {
	src := capture.NewSynthetic(320, 240)
	conn := newFakeConn()
	release := make(chan struct{})
	conn.block = release

	s, stats := newTestSession(t, src, conn, display.Discard{})
	s.wg.Add(1)
	go s.sendLoop()
	t.Cleanup(func() {
		s.cancel()
		conn.Close()
		s.wg.Wait()
	})

	s.captureAndSend()
	select {
	case <-conn.sending:
	case <-time.After(time.Second):
		t.Fatal("first frame never reached the connection")
	}

	// The first send is blocked; these iterations must not capture.
	s.captureAndSend()
	s.captureAndSend()

	if got := stats.framesSkipped.Load(); got != 2 {
		t.Errorf("framesSkipped = %d, want 2", got)
	}
	if got := stats.framesCaptured.Load(); got != 1 {
		t.Errorf("framesCaptured = %d, want 1", got)
	}
	if got := src.FramesRead(); got != 1 {
		t.Errorf("source read %d frames, want 1", got)
	}

	close(release)
	eventually(t, time.Second, func() bool { return !s.inFlight.Load() }, "gate released after send")

	s.captureAndSend()
	eventually(t, time.Second, func() bool { return conn.Sent() == 2 }, "second frame sent")

	if got := stats.framesSent.Load(); got != 2 {
		t.Errorf("framesSent = %d, want 2", got)
	}
	if stats.bytesSent.Load() == 0 {
		t.Error("bytesSent should be counted")
	}
}

func TestCaptureFollowsSourceResolution(t *testing.T) {
	src := capture.NewSynthetic(320, 240)
	s, stats := newTestSession(t, src, newFakeConn(), display.Discard{})

	s.captureAndSend()
	if w, h := decodeSize(t, <-s.outbox); w != 320 || h != 240 {
		t.Errorf("first frame %dx%d, want 320x240", w, h)
	}
	s.inFlight.Store(false)

	src.SetSize(640, 360)
	s.captureAndSend()
	if w, h := decodeSize(t, <-s.outbox); w != 640 || h != 360 {
		t.Errorf("second frame %dx%d, want 640x360", w, h)
	}
	s.inFlight.Store(false)

	s.captureAndSend()
	<-s.outbox

	if got := stats.bufferResizes.Load(); got != 2 {
		t.Errorf("bufferResizes = %d, want 2", got)
	}
}

// shrinkingSource reports one size but delivers frames of another, like a
// device that changed mode between the two calls.
type shrinkingSource struct {
	*capture.Synthetic
	reported image.Point
}

func (s *shrinkingSource) Size() (int, int) { return s.reported.X, s.reported.Y }

func TestCaptureUsesDeliveredFrameSize(t *testing.T) {
	src := &shrinkingSource{Synthetic: capture.NewSynthetic(160, 120), reported: image.Pt(320, 240)}
	s, _ := newTestSession(t, src, newFakeConn(), display.Discard{})

	s.captureAndSend()
	if w, h := decodeSize(t, <-s.outbox); w != 160 || h != 120 {
		t.Errorf("frame %dx%d, want 160x120", w, h)
	}
}

func TestCaptureErrorReleasesGate(t *testing.T) {
	src := capture.NewSynthetic(320, 240)
	s, stats := newTestSession(t, src, newFakeConn(), display.Discard{})
	src.Close()

	s.captureAndSend()

	if s.inFlight.Load() {
		t.Error("gate should be released after a capture error")
	}
	if got := stats.captureErrors.Load(); got != 1 {
		t.Errorf("captureErrors = %d, want 1", got)
	}
	if len(s.outbox) != 0 {
		t.Error("nothing should be queued for sending")
	}
}

func TestZeroSizeSourceIsSkipped(t *testing.T) {
	src := capture.NewSynthetic(0, 0)
	s, stats := newTestSession(t, src, newFakeConn(), display.Discard{})

	s.captureAndSend()

	if s.inFlight.Load() {
		t.Error("gate should be released")
	}
	if stats.framesCaptured.Load() != 0 {
		t.Error("no frame should be captured from a 0x0 source")
	}
}

func TestDecodeErrorIsNotFatal(t *testing.T) {
	canvas := display.NewCanvas()
	s, stats := newTestSession(t, capture.NewSynthetic(320, 240), newFakeConn(), canvas)

	s.onFrameReceived([]byte("not an image"))
	s.paint(<-s.inbox)

	if got := stats.decodeErrors.Load(); got != 1 {
		t.Errorf("decodeErrors = %d, want 1", got)
	}
	if canvas.Paints() != 0 {
		t.Error("undecodable frame must not be painted")
	}

	s.onFrameReceived(encodeJPEG(t, 64, 48))
	s.paint(<-s.inbox)

	if canvas.Paints() != 1 {
		t.Fatalf("paints = %d, want 1", canvas.Paints())
	}
	if w, h := canvas.Size(); w != 64 || h != 48 {
		t.Errorf("canvas %dx%d, want 64x48", w, h)
	}
	if s.ctx.Err() != nil {
		t.Error("session should still be live")
	}
}

func TestNewerFrameReplacesQueued(t *testing.T) {
	canvas := display.NewCanvas()
	s, stats := newTestSession(t, capture.NewSynthetic(320, 240), newFakeConn(), canvas)

	s.onFrameReceived(encodeJPEG(t, 32, 32))
	s.onFrameReceived(encodeJPEG(t, 64, 64))

	if got := stats.framesStale.Load(); got != 1 {
		t.Errorf("framesStale = %d, want 1", got)
	}
	if len(s.inbox) != 1 {
		t.Fatalf("inbox holds %d frames, want 1", len(s.inbox))
	}

	s.paint(<-s.inbox)
	if canvas.Seq() != 2 {
		t.Errorf("painted seq %d, want 2", canvas.Seq())
	}
	if w, _ := canvas.Size(); w != 64 {
		t.Errorf("painted the older frame (width %d)", w)
	}
}

func TestStaleDecodeIsDiscarded(t *testing.T) {
	canvas := display.NewCanvas()
	s, stats := newTestSession(t, capture.NewSynthetic(320, 240), newFakeConn(), canvas)

	s.onFrameReceived(encodeJPEG(t, 32, 32))
	older := <-s.inbox

	// A newer frame arrives while the older one is being decoded.
	s.onFrameReceived(encodeJPEG(t, 64, 64))
	s.paint(older)

	if canvas.Paints() != 0 {
		t.Error("stale frame must not be painted")
	}
	if got := stats.framesStale.Load(); got != 1 {
		t.Errorf("framesStale = %d, want 1", got)
	}

	s.paint(<-s.inbox)
	if canvas.Paints() != 1 || canvas.Seq() != 2 {
		t.Errorf("paints=%d seq=%d, want 1 and 2", canvas.Paints(), canvas.Seq())
	}
}

func TestTeardownReleasesEverything(t *testing.T) {
	src := capture.NewSynthetic(320, 240)
	conn := newFakeConn()
	canvas := display.NewCanvas()
	s, stats := newTestSession(t, src, conn, canvas)
	stats.activeConnections.Add(1)

	canvas.Paint(display.Frame{Seq: 1, Image: image.NewRGBA(image.Rect(0, 0, 8, 8))})

	go s.run()
	s.stop()

	if !conn.isClosed() {
		t.Error("connection should be closed")
	}
	if src.Closes() != 1 {
		t.Errorf("source released %d times, want 1", src.Closes())
	}
	if w, h := canvas.Size(); w != 0 || h != 0 {
		t.Error("surface should be cleared")
	}
	if stats.activeConnections.Load() != 0 {
		t.Errorf("activeConnections = %d, want 0", stats.activeConnections.Load())
	}
	if s.err != nil {
		t.Errorf("clean stop recorded error %v", s.err)
	}

	// Stopping again returns immediately.
	s.stop()
}

func TestConnectionLossCountedOnce(t *testing.T) {
	src := capture.NewSynthetic(160, 120)
	s, stats := newTestSession(t, src, newFakeConn(), display.Discard{})

	lost := errors.New("connection reset by peer")
	s.report(fmt.Errorf("%w: send: %w", ErrTransportLost, lost))
	if err := <-s.fatal; !errors.Is(err, lost) {
		t.Fatalf("fatal = %v", err)
	}

	// The receiver fails on the same loss after the loop took the first one.
	s.report(fmt.Errorf("%w: receive: %w", ErrTransportLost, lost))

	if n := stats.transportErrors.Load(); n != 1 {
		t.Errorf("transportErrors = %d, want 1", n)
	}
	select {
	case err := <-s.fatal:
		t.Errorf("second failure reached the loop: %v", err)
	default:
	}
}
