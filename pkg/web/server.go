// Package web serves the pitchside dashboard: stream control, the live
// annotated feed, camera settings, video upload and match statistics.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/display"
	"github.com/teslashibe/go-pitchside/pkg/hub"
	"github.com/teslashibe/go-pitchside/pkg/matchstats"
	"github.com/teslashibe/go-pitchside/pkg/posestream"
	"github.com/teslashibe/go-pitchside/pkg/protocol"
	"github.com/teslashibe/go-pitchside/pkg/upload"
)

// Controller starts and stops the pose stream. *posestream.Streamer
// satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Status() posestream.Status
}

// Config wires the server to the rest of the application. Routes for
// missing pieces answer 503.
type Config struct {
	Port       string
	StaticDir  string
	Controller Controller
	Camera     *camera.Manager
	Uploader   *upload.Client
	Stats      *matchstats.Store
	Metrics    http.Handler
	Logger     *slog.Logger

	// Debug logs every request.
	Debug bool
}

// Server is the dashboard server. It is also a display.Surface: painted
// frames are kept for snapshots and pushed to viewers.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	canvas *display.Canvas

	statusHub *hub.Hub
	frameHub  *hub.Hub
}

var _ display.Surface = (*Server)(nil)

// NewServer creates the dashboard server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		canvas:    display.NewCanvas(),
		statusHub: hub.New("status", cfg.Logger),
		frameHub:  hub.New("annotated", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Pitchside",
		DisableStartupMessage: true,
		BodyLimit:             512 << 20,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(fiberlogger.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/stream/start", s.handleStart)
	api.Post("/stream/stop", s.handleStop)
	api.Get("/frame.jpg", s.handleFrame)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handlePresets)
	api.Post("/upload", s.handleUpload)
	api.Get("/stats/team", s.handleTeamStats)
	api.Get("/stats/players", s.handlePlayerStats)
	api.Get("/stats/ball", s.handleBallStats)

	app.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/annotated", websocket.New(s.handleAnnotatedWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// App returns the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves on the configured port until Shutdown.
func (s *Server) Start() error {
	s.runHubs()
	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Serve runs the hubs and serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.runHubs()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

func (s *Server) runHubs() {
	go s.statusHub.Run()
	go s.frameHub.Run()
}

// Shutdown closes viewer connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.statusHub.Stop()
	s.frameHub.Stop()
	return s.app.ShutdownWithContext(ctx)
}

// SetController attaches the stream controller. The streamer paints onto
// the server, so the two are usually built in that order. Call before Start.
func (s *Server) SetController(c Controller) {
	s.cfg.Controller = c
}

// SetMetrics sets the handler served at /metrics. Call before Start.
func (s *Server) SetMetrics(h http.Handler) {
	s.cfg.Metrics = h
}

// Dropped returns how many viewer broadcasts were dropped on a full queue.
func (s *Server) Dropped() uint64 {
	return s.statusHub.Dropped() + s.frameHub.Dropped()
}

// Viewers returns how many websocket viewers are connected.
func (s *Server) Viewers() int {
	return s.statusHub.ClientCount() + s.frameHub.ClientCount()
}

// Paint implements display.Surface. Viewers get the frame bytes on the
// annotated socket and its metadata on the status socket.
func (s *Server) Paint(f display.Frame) {
	s.canvas.Paint(f)
	if len(f.Payload) == 0 {
		return
	}
	s.frameHub.BroadcastBinary(f.Payload)

	var w, h int
	if f.Image != nil {
		b := f.Image.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	s.publish(protocol.NewFrameMessage(f.Seq, w, h, len(f.Payload)))
}

// Clear implements display.Surface.
func (s *Server) Clear() {
	s.canvas.Clear()
}

// NotifyStatus pushes the current stream status to viewers.
func (s *Server) NotifyStatus() {
	if s.cfg.Controller == nil {
		return
	}
	s.publish(protocol.NewStatusMessage(s.cfg.Controller.Status()))
}

// NotifyError pushes a stream failure to viewers.
func (s *Server) NotifyError(err error) {
	s.publish(protocol.NewErrorMessage(err))
}

// NotifyCamera pushes new capture settings to viewers.
func (s *Server) NotifyCamera(cfg camera.Config) {
	s.publish(protocol.NewCameraMessage(cfg))
}

func (s *Server) publish(msg *protocol.Message, err error) {
	if err != nil {
		s.logger.Warn("build viewer message", "error", err)
		return
	}
	if err := s.statusHub.BroadcastJSON(msg); err != nil {
		s.logger.Warn("encode viewer message", "error", err)
	}
}
