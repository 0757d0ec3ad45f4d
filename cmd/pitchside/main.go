// pitchside: live pose-estimation dashboard.
//
// Captures the local webcam, streams frames to the pose service and shows
// the annotated frames to browser viewers, alongside video upload and match
// statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-pitchside/internal/config"
	"github.com/teslashibe/go-pitchside/internal/log"
	"github.com/teslashibe/go-pitchside/pkg/camera"
	"github.com/teslashibe/go-pitchside/pkg/capture"
	"github.com/teslashibe/go-pitchside/pkg/capture/webcam"
	"github.com/teslashibe/go-pitchside/pkg/matchstats"
	"github.com/teslashibe/go-pitchside/pkg/metrics"
	"github.com/teslashibe/go-pitchside/pkg/posestream"
	"github.com/teslashibe/go-pitchside/pkg/transport"
	"github.com/teslashibe/go-pitchside/pkg/upload"
	"github.com/teslashibe/go-pitchside/pkg/web"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default $PITCHSIDE_CONFIG)")
	port := flag.String("port", "", "Dashboard port (overrides config)")
	serviceURL := flag.String("service", "", "Pose service URL (overrides config)")
	synthetic := flag.Bool("synthetic", false, "Use a generated test pattern instead of the webcam")
	autostart := flag.Bool("autostart", false, "Start streaming immediately")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *serviceURL != "" {
		if err := cfg.SetServiceURL(*serviceURL); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("main")
	logger.Info("pitchside starting", "version", version, "service", cfg.Service.URL)

	camCfg, err := cameraConfig(cfg.Camera)
	if err != nil {
		logger.Error("invalid camera config", "error", err)
		os.Exit(1)
	}
	manager := camera.NewManager(camCfg)

	acquire := webcam.Acquirer(log.Component("webcam"))
	if *synthetic {
		acquire = capture.NewSynthetic(camCfg.Width, camCfg.Height).Acquirer()
	}

	stats, err := matchstats.Load()
	if err != nil {
		logger.Error("load match stats", "error", err)
		os.Exit(1)
	}

	// The web server is the streamer's paint surface, so it comes first.
	server := web.NewServer(web.Config{
		Port:      cfg.Web.Port,
		StaticDir: cfg.Web.StaticDir,
		Camera:    manager,
		Uploader:  upload.New(cfg.Service.UploadURL(), log.Component("upload")),
		Stats:     stats,
		Logger:    log.L(),
		Debug:     *debug,
	})

	streamer, err := posestream.New(
		posestream.WithCamera(camCfg),
		posestream.WithAcquirer(acquire),
		posestream.WithDialer(transport.NewWebSocketDialer(cfg.Service.StreamURL(), log.Component("transport"))),
		posestream.WithSurface(server),
		posestream.WithDialTimeout(cfg.Service.DialTimeout),
		posestream.WithLogger(log.L()),
	)
	if err != nil {
		logger.Error("create streamer", "error", err)
		os.Exit(1)
	}
	server.SetController(streamer)

	m := metrics.New(streamer)
	m.RegisterViewers(server.Viewers)
	m.RegisterDropped(server.Dropped)
	server.SetMetrics(m.Handler())

	streamer.OnStateChange(func(s posestream.State) {
		server.NotifyStatus()
	})
	streamer.OnError(func(err error) {
		logger.Warn("stream error", "error", err)
		server.NotifyError(err)
	})
	manager.OnConfigChange = func(c camera.Config) error {
		streamer.SetCamera(c)
		server.NotifyCamera(c)
		return nil
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if *autostart {
		if err := streamer.Start(context.Background()); err != nil {
			logger.Warn("autostart failed", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	streamer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}

	st := streamer.Stats()
	logger.Info("goodbye",
		"sessions", st.SessionsStarted,
		"sent", st.FramesSent,
		"painted", st.FramesPainted)
}

// cameraConfig builds the capture settings: the named preset (or the
// defaults), with any explicitly configured fields on top.
func cameraConfig(c config.CameraConfig) (camera.Config, error) {
	cfg := camera.DefaultConfig()
	if c.Preset != "" {
		p := camera.GetPreset(c.Preset)
		if p == nil {
			return cfg, fmt.Errorf("unknown camera preset %q", c.Preset)
		}
		cfg = *p
	}
	if c.Device != "" {
		cfg.Device = c.Device
	}
	if c.Width > 0 {
		cfg.Width = c.Width
	}
	if c.Height > 0 {
		cfg.Height = c.Height
	}
	if c.Framerate > 0 {
		cfg.Framerate = c.Framerate
	}
	if c.Quality > 0 {
		cfg.Quality = c.Quality
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("%v", errs)
	}
	return cfg, nil
}
