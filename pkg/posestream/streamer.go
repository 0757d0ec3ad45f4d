// Package posestream streams live camera frames to a pose-estimation
// service over a persistent connection and paints the annotated frames it
// sends back.
//
// A Streamer runs at most one session at a time. Each session owns one
// capture source and one connection; both are released when the session
// stops or its connection fails.
package posestream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-pitchside/pkg/camera"
)

// Status describes the streamer at a point in time.
type Status struct {
	State     State     `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Error     string    `json:"error,omitempty"`
	Stats     Stats     `json:"stats"`
}

// Streamer coordinates capture, transport and display for the pose stream.
type Streamer struct {
	cfg    *Config
	logger *slog.Logger

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	lastErr error
	sess    *session
	camera  camera.Config

	stats counters

	cbMu    sync.RWMutex
	onState func(State)
	onError func(error)
}

// New creates a Streamer.
func New(opts ...Option) (*Streamer, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Streamer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "posestream"),
		camera: cfg.Camera,
	}, nil
}

// OnStateChange registers a callback invoked after every state transition.
func (s *Streamer) OnStateChange(fn func(State)) {
	s.cbMu.Lock()
	s.onState = fn
	s.cbMu.Unlock()
}

// OnError registers a callback invoked once per user-visible failure:
// acquisition, transport open, or transport lost.
func (s *Streamer) OnError(fn func(error)) {
	s.cbMu.Lock()
	s.onError = fn
	s.cbMu.Unlock()
}

// SetCamera changes the capture configuration used by the next session.
// A running session keeps its settings.
func (s *Streamer) SetCamera(cfg camera.Config) {
	s.mu.Lock()
	s.camera = cfg
	s.mu.Unlock()
}

// Camera returns the capture configuration for the next session.
func (s *Streamer) Camera() camera.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns a snapshot of the streamer counters.
func (s *Streamer) Stats() Stats {
	return s.stats.snapshot()
}

// Status returns the state, session and counters.
func (s *Streamer) Status() Status {
	s.mu.RLock()
	st := Status{State: s.state}
	if s.sess != nil {
		st.SessionID = s.sess.id
		st.StartedAt = s.sess.startedAt
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	s.mu.RUnlock()

	st.Stats = s.stats.snapshot()
	return st
}

// Start acquires the camera, opens the connection and begins streaming.
//
// Acquisition failure returns the streamer to Idle without dialing. A
// failed dial releases the camera and leaves the streamer Stopped. The
// session outlives ctx; call Stop to end it.
func (s *Streamer) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state.Active() {
		s.mu.Unlock()
		return ErrAlreadyStreaming
	}
	camCfg := s.camera
	s.mu.Unlock()

	s.setState(StateStarting, nil)

	src, err := s.cfg.Acquire(ctx, camCfg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAcquisition, err)
		s.logger.Warn("camera unavailable", "device", camCfg.Device, "error", err)
		s.setState(StateIdle, err)
		s.emitError(err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, err := s.cfg.Dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("release capture source", "error", cerr)
		}
		err = fmt.Errorf("%w: %w", ErrTransportOpen, err)
		s.logger.Error("connect to pose service", "error", err)
		s.setState(StateStopped, err)
		s.emitError(err)
		return err
	}

	sess := newSession(context.WithoutCancel(ctx), sessionParams{
		id:          uuid.NewString(),
		src:         src,
		conn:        conn,
		surface:     s.cfg.Surface,
		quality:     camCfg.Quality,
		interval:    camCfg.FrameInterval(),
		sendTimeout: s.cfg.SendTimeout,
		logger:      s.logger,
		stats:       &s.stats,
	})
	s.stats.activeConnections.Add(1)
	s.stats.sessionsStarted.Add(1)

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	s.setState(StateStreaming, nil)

	go sess.run()
	go s.watch(sess)

	return nil
}

// Stop ends the active session, closing the connection and releasing the
// camera. It is a no-op when nothing is streaming.
func (s *Streamer) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	sess := s.sess
	s.mu.RUnlock()
	if sess == nil {
		return
	}

	sess.stop()
	s.finish(sess)
}

// watch ends the streamer's session when the loop exits on its own.
func (s *Streamer) watch(sess *session) {
	<-sess.done
	s.finish(sess)
}

// finish moves to Stopped if sess is still the current session. Both Stop
// and watch call it; only the first one for a given session has effect.
// Clearing the session and entering Stopped happen under one lock, so a
// caller never sees Streaming without a session.
func (s *Streamer) finish(sess *session) {
	s.mu.Lock()
	if s.sess != sess {
		s.mu.Unlock()
		return
	}
	s.sess = nil
	prev := s.state
	s.state = StateStopped
	if sess.err != nil {
		s.lastErr = sess.err
	}
	s.mu.Unlock()

	s.notifyState(prev, StateStopped)
	if sess.err != nil {
		s.emitError(sess.err)
	}
}

func (s *Streamer) setState(state State, err error) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	if state == StateStarting {
		s.lastErr = nil
	} else if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()

	s.notifyState(prev, state)
}

func (s *Streamer) notifyState(prev, state State) {
	if prev != state {
		s.logger.Debug("state changed", "from", prev, "to", state)
	}

	s.cbMu.RLock()
	fn := s.onState
	s.cbMu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

func (s *Streamer) emitError(err error) {
	s.cbMu.RLock()
	fn := s.onError
	s.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
