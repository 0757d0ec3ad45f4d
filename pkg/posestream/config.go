package posestream

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/capture"
	"github.com/teslashibe/go-pitchside/pkg/display"
	"github.com/teslashibe/go-pitchside/pkg/transport"
)

// Config holds Streamer configuration.
type Config struct {
	// Camera is the preferred capture configuration for new sessions.
	Camera camera.Config

	// Acquire opens the capture source when a session starts.
	Acquire capture.Acquirer

	// Dialer opens the connection to the annotation service.
	Dialer transport.Dialer

	// Surface receives decoded annotated frames.
	Surface display.Surface

	// Timeouts
	DialTimeout time.Duration
	SendTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring a Streamer.
type Option func(*Config)

// WithCamera sets the capture configuration.
func WithCamera(cfg camera.Config) Option {
	return func(c *Config) { c.Camera = cfg }
}

// WithAcquirer sets how capture sources are opened.
func WithAcquirer(a capture.Acquirer) Option {
	return func(c *Config) { c.Acquire = a }
}

// WithDialer sets the transport dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Config) { c.Dialer = d }
}

// WithSurface sets the display surface.
func WithSurface(s display.Surface) Option {
	return func(c *Config) { c.Surface = s }
}

// WithDialTimeout bounds opening the connection.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithSendTimeout bounds a single frame transmission. A send that exceeds
// it is a transport failure.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Config) { c.SendTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults: 720p at 30 fps, quality 80, a discarding
// surface and no acquirer or dialer.
func DefaultConfig() *Config {
	return &Config{
		Camera:      camera.DefaultConfig(),
		Surface:     display.Discard{},
		DialTimeout: 10 * time.Second,
		SendTimeout: 5 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Acquire == nil {
		return ErrNoAcquirer
	}
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}
