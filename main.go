package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alex/sdcp_monitor/httpapi"
	"github.com/alex/sdcp_monitor/metrics"
	"github.com/alex/sdcp_monitor/monitor"
	"github.com/alex/sdcp_monitor/notify"
	"github.com/alex/sdcp_monitor/sdcp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	discover := flag.Bool("discover", false, "discover printers on the network and exit")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := httpapi.NewLogger(cfg.Log.Level)

	if *discover {
		runDiscovery(cfg)
		return
	}

	logger.Info().Msg("SDCP printer monitor starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discovery runs to completion before any monitor starts. Zero printers
	// means there is nothing to supervise at all.
	devices, err := sdcp.Discover(logger, cfg.IdleWindow())
	if err != nil {
		logger.Fatal().Err(err).Msg("discovery failed")
	}

	m := metrics.New()
	m.SetDevicesDiscovered(len(devices))

	registry := monitor.NewRegistry(devices)
	sink := notify.NewAsyncSink(logger, notify.NewConsoleSink(os.Stdout), cfg.Notify.Buffer)
	defer sink.Close()

	opts := monitor.Options{
		StatusPort: cfg.Monitor.StatusPort,
		Backoff: monitor.Exponential{
			Min:    cfg.BackoffMin(),
			Max:    cfg.BackoffMax(),
			Jitter: 0.2,
		},
	}
	monitors := make([]*monitor.Monitor, 0, len(devices))
	for _, dev := range devices {
		monitors = append(monitors, monitor.New(logger, dev, registry, sink, m, opts))
	}

	h := httpapi.NewHandler(logger, registry, m)
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	h.SetReady(true)
	logger.Info().Int("devices", len(devices)).Msg("monitoring status changes")
	monitor.RunAll(ctx, monitors)

	// Monitors have stopped; shut the HTTP surface down too.
	h.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("shut down")
}

func runDiscovery(cfg *Config) {
	fmt.Println("Searching for SDCP printers on the local network...")

	logger := httpapi.NewLogger("error")
	devices, err := sdcp.Discover(logger, cfg.IdleWindow())
	if err != nil {
		if errors.Is(err, sdcp.ErrNoDevices) {
			fmt.Println("No printers found.")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d printer(s):\n", len(devices))
	for i, d := range devices {
		fmt.Printf("  %d. %-24s @ %-16s firmware %s\n", i+1, d.Name, d.MainboardIP, d.FirmwareVersion)
	}
}
