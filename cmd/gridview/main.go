package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/sim"
	"github.com/Garsondee/Grid-Sense/internal/view"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (defaults when empty)")
	seed := flag.Int64("seed", 0, "override the config seed (0 keeps it)")
	cellPx := flag.Int("cell", 6, "pixels per cell")
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

	opts := []sim.Option{sim.WithConfig(cfg)}
	if *seed != 0 {
		opts = append(opts, sim.WithSeed(*seed))
	}
	opts = append(opts,
		sim.WithRandomObstacles(cfg.Sim.Obstacles),
		sim.WithRandomAgents(cfg.Sim.Agents),
	)
	s, err := sim.New(opts...)
	if err != nil {
		slog.Error("failed to build harness", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	v := view.New(s, *cellPx)
	defer v.Close()

	w, h := v.Size()
	ebiten.SetWindowTitle("Grid Sense")
	ebiten.SetWindowSize(w, h)
	slog.Info("viewer starting", "width", cfg.Grid.Width, "height", cfg.Grid.Height, "agents", len(s.Agents), "seed", cfg.Sim.Seed)
	if err := ebiten.RunGame(v); err != nil {
		slog.Error("viewer exited", "error", err)
		os.Exit(1)
	}
}
