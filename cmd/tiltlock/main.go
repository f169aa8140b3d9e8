package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tiltlock/internal/config"
	"tiltlock/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./tiltlock.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logs)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}

	log.Printf("tiltlock starting device=%s source=%s", cfg.Device, cfg.Sensors.Source)
	if err := rt.Run(ctx); err != nil {
		log.Printf("tiltlock stopped: %v", err)
		rt.Close()
		os.Exit(1)
	}
	rt.Close()
	log.Printf("tiltlock stopped")
}
