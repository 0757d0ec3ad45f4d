// posesim: local stand-in for the pose-estimation service.
//
// Serves the streaming and upload endpoints, drawing a placeholder skeleton
// on every frame so the dashboard can be exercised without the real model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-pitchside/internal/log"
	"github.com/teslashibe/go-pitchside/pkg/posesim"
)

func main() {
	port := flag.Int("port", 8000, "HTTP server port")
	latency := flag.Duration("latency", 0, "Artificial per-frame processing delay")
	quality := flag.Int("quality", 80, "JPEG quality of annotated frames")
	label := flag.String("label", "", "Overlay label")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.Component("main")

	overlay := posesim.DefaultOverlay()
	if *label != "" {
		overlay.Label = *label
	}

	sim := posesim.New(
		posesim.WithAnnotator(overlay),
		posesim.WithLatency(*latency),
		posesim.WithQuality(*quality),
		posesim.WithLogger(log.L()),
	)

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		logger.Info("simulator listening",
			"stream", fmt.Sprintf("ws://localhost:%d%s", *port, posesim.StreamPath),
			"upload", fmt.Sprintf("http://localhost:%d%s", *port, posesim.UploadPath))
		if err := sim.Listen(addr); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sim.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}

	st := sim.Stats()
	logger.Info("goodbye", "frames_in", st.FramesIn, "frames_out", st.FramesOut, "uploads", st.Uploads)
}
