package posestream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pitchside/pkg/capture"
	"github.com/teslashibe/go-pitchside/pkg/display"
	"github.com/teslashibe/go-pitchside/pkg/transport"
	"golang.org/x/image/draw"
)

// inbound is an annotated payload waiting to be decoded.
type inbound struct {
	seq      uint64
	payload  []byte
	received time.Time
}

// session is one streaming session: one capture source, one connection.
//
// The loop goroutine (run) owns the source, the frame buffer and the
// connection lifecycle. The sender, receiver and painter goroutines only
// report fatal errors back to it; teardown always happens on the loop.
type session struct {
	id        string
	startedAt time.Time

	src     capture.Source
	conn    transport.Conn
	surface display.Surface

	quality     int
	interval    time.Duration
	sendTimeout time.Duration

	logger *slog.Logger
	stats  *counters

	// Loop-owned.
	buf *image.RGBA
	enc bytes.Buffer

	// Backpressure gate: set when a payload is handed to the sender and
	// cleared when its transmission completes.
	inFlight atomic.Bool
	outbox   chan []byte

	// Last-write-wins mailbox for inbound frames.
	inbox      chan inbound
	latestSeq  atomic.Uint64
	receiveSeq uint64

	fatal    chan error
	reported atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	err    error // set by run before done is closed
}

type sessionParams struct {
	id          string
	src         capture.Source
	conn        transport.Conn
	surface     display.Surface
	quality     int
	interval    time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger
	stats       *counters
}

func newSession(parent context.Context, p sessionParams) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{
		id:          p.id,
		startedAt:   time.Now(),
		src:         p.src,
		conn:        p.conn,
		surface:     p.surface,
		quality:     p.quality,
		interval:    p.interval,
		sendTimeout: p.sendTimeout,
		logger:      p.logger.With("session", p.id),
		stats:       p.stats,
		outbox:      make(chan []byte, 1),
		inbox:       make(chan inbound, 1),
		fatal:       make(chan error, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// run drives the session until it is cancelled or a fatal transport error
// is reported, then tears it down.
func (s *session) run() {
	defer close(s.done)

	s.wg.Add(3)
	go s.sendLoop()
	go s.receiveLoop()
	go s.paintLoop()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session streaming", "interval", s.interval, "quality", s.quality)

	for {
		select {
		case <-s.ctx.Done():
			s.teardown(nil)
			return
		case err := <-s.fatal:
			s.teardown(err)
			return
		case <-ticker.C:
			// Cancellation wins over a tick that was ready at the same time.
			if s.ctx.Err() != nil {
				continue
			}
			s.captureAndSend()
		}
	}
}

// stop cancels the session and waits for teardown to finish.
func (s *session) stop() {
	s.cancel()
	<-s.done
}

func (s *session) teardown(cause error) {
	s.err = cause
	s.cancel()

	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close transport", "error", err)
	}
	s.stats.activeConnections.Add(-1)

	s.wg.Wait()

	if err := s.src.Close(); err != nil {
		s.logger.Warn("release capture source", "error", err)
	}
	s.surface.Clear()

	if cause != nil {
		s.logger.Error("session ended", "error", cause, "duration", time.Since(s.startedAt))
	} else {
		s.logger.Info("session stopped", "duration", time.Since(s.startedAt))
	}
}

// report hands a fatal error to the loop. Only the first one is counted;
// a lost connection usually fails both the sender and the receiver.
func (s *session) report(err error) {
	if !s.reported.CompareAndSwap(false, true) {
		return
	}
	s.stats.transportErrors.Add(1)
	s.fatal <- err
}

// captureAndSend runs one loop iteration: skip if a frame is in flight,
// otherwise size the buffer, copy the current camera image, encode it and
// hand it to the sender.
func (s *session) captureAndSend() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.stats.framesSkipped.Add(1)
		return
	}

	payload, err := s.capture()
	if err != nil {
		s.inFlight.Store(false)
		s.stats.captureErrors.Add(1)
		s.logger.Debug("capture failed", "error", err)
		return
	}

	select {
	case s.outbox <- payload:
		s.stats.framesCaptured.Add(1)
	default:
		// Unreachable while the gate holds; never block the loop.
		s.inFlight.Store(false)
		s.stats.framesSkipped.Add(1)
	}
}

func (s *session) capture() ([]byte, error) {
	w, h := s.src.Size()
	if w <= 0 || h <= 0 {
		return nil, capture.ErrNoFrame
	}
	s.resizeBuffer(w, h)

	frame, err := s.src.Frame()
	if err != nil {
		return nil, err
	}

	// Devices may switch resolution between Size and Frame; the frame wins.
	fb := frame.Bounds()
	s.resizeBuffer(fb.Dx(), fb.Dy())
	draw.Copy(s.buf, image.Point{}, frame, fb, draw.Src, nil)

	s.enc.Reset()
	if err := jpeg.Encode(&s.enc, s.buf, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return bytes.Clone(s.enc.Bytes()), nil
}

func (s *session) resizeBuffer(w, h int) {
	if s.buf != nil && s.buf.Rect.Dx() == w && s.buf.Rect.Dy() == h {
		return
	}
	if s.buf != nil {
		s.logger.Debug("frame buffer resized",
			"from", fmt.Sprintf("%dx%d", s.buf.Rect.Dx(), s.buf.Rect.Dy()),
			"to", fmt.Sprintf("%dx%d", w, h),
		)
	}
	s.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	s.stats.bufferResizes.Add(1)
}

// sendLoop transmits payloads one at a time and reopens the gate after
// each transmission, whatever its outcome.
func (s *session) sendLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case payload := <-s.outbox:
			ctx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
			err := s.conn.Send(ctx, payload)
			cancel()
			s.inFlight.Store(false)

			if err != nil {
				if s.ctx.Err() == nil {
					s.report(fmt.Errorf("%w: send: %w", ErrTransportLost, err))
				}
				return
			}
			s.stats.framesSent.Add(1)
			s.stats.bytesSent.Add(uint64(len(payload)))
		}
	}
}

func (s *session) receiveLoop() {
	defer s.wg.Done()

	for {
		payload, err := s.conn.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.report(fmt.Errorf("%w: receive: %w", ErrTransportLost, err))
			}
			return
		}
		s.onFrameReceived(payload)
	}
}

// onFrameReceived queues an inbound payload for painting. A payload still
// waiting in the mailbox is replaced, and any decode already in progress
// will be discarded when it finishes.
func (s *session) onFrameReceived(payload []byte) {
	s.receiveSeq++
	in := inbound{seq: s.receiveSeq, payload: payload, received: time.Now()}
	s.latestSeq.Store(in.seq)
	s.stats.framesReceived.Add(1)

	for {
		select {
		case s.inbox <- in:
			return
		default:
		}
		select {
		case <-s.inbox:
			s.stats.framesStale.Add(1)
		default:
		}
	}
}

func (s *session) paintLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.inbox:
			s.paint(in)
		}
	}
}

func (s *session) paint(in inbound) {
	img, _, err := image.Decode(bytes.NewReader(in.payload))
	if err != nil {
		s.stats.decodeErrors.Add(1)
		s.logger.Debug("dropping frame", "seq", in.seq, "error", fmt.Errorf("%w: %w", ErrDecode, err))
		return
	}
	if s.latestSeq.Load() != in.seq || s.ctx.Err() != nil {
		s.stats.framesStale.Add(1)
		return
	}

	s.surface.Paint(display.Frame{
		Seq:      in.seq,
		Image:    img,
		Payload:  in.payload,
		Received: in.received,
	})
	s.stats.framesPainted.Add(1)
}
