// upload: send recorded match videos to the pose service.
//
// Each file is uploaded in turn and the processed video is written next to
// it (or into -out).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/teslashibe/go-pitchside/internal/config"
	"github.com/teslashibe/go-pitchside/internal/log"
	"github.com/teslashibe/go-pitchside/pkg/upload"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default $PITCHSIDE_CONFIG)")
	serviceURL := flag.String("service", "", "Pose service URL (overrides config)")
	outDir := flag.String("out", "", "Output directory (default: next to each input)")
	retries := flag.Int("retries", 1, "Retries after a server-side failure")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] video...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serviceURL != "" {
		if err := cfg.SetServiceURL(*serviceURL); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := upload.New(cfg.Service.UploadURL(), log.Component("upload"))
	client.Retries = *retries

	failed := 0
	for _, in := range flag.Args() {
		dir := *outDir
		if dir == "" {
			dir = filepath.Dir(in)
		}

		out, res, err := client.UploadFile(ctx, in, dir)
		if err != nil {
			logger.Error("upload failed", "file", in, "error", err)
			failed++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Printf("%s -> %s (%d bytes)\n", in, out, res.Bytes)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
