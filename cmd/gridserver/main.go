package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/sim"
	"github.com/Garsondee/Grid-Sense/internal/stream"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (defaults when empty)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	wander := flag.Bool("wander", true, "keep idle agents wandering so the feed stays live")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if err := config.SetupLogging(os.Stdout, *logLevel); err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			slog.Error("failed to load config", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *addr != "" {
		cfg.Stream.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *wander); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, wander bool) error {
	s, err := sim.New(
		sim.WithConfig(cfg),
		sim.WithRandomObstacles(cfg.Sim.Obstacles),
		sim.WithRandomAgents(cfg.Sim.Agents),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	feed := stream.NewServer(s.Grid)
	srv := &http.Server{
		Addr:              cfg.Stream.Addr,
		Handler:           feed.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("stream listening", "addr", cfg.Stream.Addr, "agents", len(s.Agents))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Sim.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down", "tick", s.CurrentTick(), "clients", feed.Clients())
			feed.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case <-ticker.C:
			if wander {
				s.Wander(nil)
			}
			s.Step()
		}
	}
}
