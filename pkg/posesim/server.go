// Package posesim is a local stand-in for the pose-estimation service. It
// speaks the same protocol: JPEG frames in over a websocket, annotated JPEG
// frames out, plus the video upload endpoint and a health check.
package posesim

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Routes served by the simulator.
const (
	StreamPath = "/pose-estimation/stream"
	UploadPath = "/pose-estimation/upload"
)

// Config holds simulator settings.
type Config struct {
	Annotator Annotator
	Quality   int           // JPEG quality of replies
	Latency   time.Duration // Added before each reply
	BodyLimit int           // Max upload size in bytes
	Logger    *slog.Logger
}

// Option configures the simulator.
type Option func(*Config)

// WithAnnotator replaces the default overlay.
func WithAnnotator(a Annotator) Option {
	return func(c *Config) { c.Annotator = a }
}

// WithLatency delays every reply, to exercise client backpressure.
func WithLatency(d time.Duration) Option {
	return func(c *Config) { c.Latency = d }
}

// WithQuality sets reply JPEG quality.
func WithQuality(q int) Option {
	return func(c *Config) { c.Quality = q }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns quality 80, no latency and a 512MB upload limit.
func DefaultConfig() *Config {
	return &Config{
		Annotator: DefaultOverlay(),
		Quality:   80,
		BodyLimit: 512 << 20,
		Logger:    slog.Default(),
	}
}

// Stats counts simulator activity.
type Stats struct {
	Connections   int64  `json:"connections"`
	FramesIn      uint64 `json:"frames_in"`
	FramesOut     uint64 `json:"frames_out"`
	FramesSkipped uint64 `json:"frames_skipped"`
	Uploads       uint64 `json:"uploads"`
}

// Server is the simulator.
type Server struct {
	cfg    *Config
	app    *fiber.App
	logger *slog.Logger

	connections   atomic.Int64
	framesIn      atomic.Uint64
	framesOut     atomic.Uint64
	framesSkipped atomic.Uint64
	uploads       atomic.Uint64
}

// New creates a simulator.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Annotator == nil {
		cfg.Annotator = DefaultOverlay()
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "posesim"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Pose Service Simulator",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})
	app.Use(recover.New())

	app.Get("/", s.handleHealth)
	app.Post(UploadPath, s.handleUpload)

	app.Use(StreamPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(StreamPath, websocket.New(s.handleStream))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("pose simulator listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("pose simulator listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	return Stats{
		Connections:   s.connections.Load(),
		FramesIn:      s.framesIn.Load(),
		FramesOut:     s.framesOut.Load(),
		FramesSkipped: s.framesSkipped.Load(),
		Uploads:       s.uploads.Load(),
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStream(c *websocket.Conn) {
	s.connections.Add(1)
	defer s.connections.Add(-1)

	logger := s.logger.With("remote", c.RemoteAddr().String())
	logger.Info("stream client connected")
	defer logger.Info("stream client disconnected")

	var out bytes.Buffer
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		s.framesIn.Add(1)

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			s.framesSkipped.Add(1)
			logger.Debug("skipping undecodable frame", "bytes", len(data), "error", err)
			continue
		}

		annotated, err := s.cfg.Annotator.Annotate(img)
		if err != nil {
			s.framesSkipped.Add(1)
			logger.Warn("annotate frame", "error", err)
			continue
		}

		if s.cfg.Latency > 0 {
			time.Sleep(s.cfg.Latency)
		}

		out.Reset()
		if err := jpeg.Encode(&out, annotated, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
			logger.Warn("encode frame", "error", err)
			continue
		}
		if err := c.WriteMessage(websocket.BinaryMessage, out.Bytes()); err != nil {
			return
		}
		s.framesOut.Add(1)
	}
}

// handleUpload returns the uploaded video as processed_<name>. The real
// service runs the model over every frame; the simulator echoes the file.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file field"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.uploads.Add(1)
	name := "processed_" + filepath.Base(fh.Filename)
	s.logger.Info("processed upload", "name", name, "bytes", len(data))

	c.Attachment(name)
	return c.Send(data)
}
