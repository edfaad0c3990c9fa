package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"netsentry/internal/api"
	"netsentry/internal/config"
	"netsentry/internal/monitor"
	"netsentry/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	headless := flag.Bool("headless", false, "run without the terminal dashboard")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "netsentry: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(cfg, log)
	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Stop()

	if cfg.APIListen != "" {
		server := api.NewServer(mon, log)
		go func() {
			if err := server.Listen(cfg.APIListen); err != nil {
				log.Error().Err(err).Msg("api server exited")
			}
		}()
		defer server.Shutdown()
	}

	if cfg.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(monitor.NewExporter(mon))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			log.Info().Str("addr", cfg.MetricsListen).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				log.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}

	if headless {
		<-ctx.Done()
		return nil
	}

	dashboard := ui.NewDashboard(mon)
	go func() {
		<-ctx.Done()
		dashboard.Stop()
	}()
	return dashboard.Run()
}
