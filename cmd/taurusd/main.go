// Command taurusd is the fleet daemon: it loads the configuration
// directory given on the command line, boots every subsystem, and runs
// until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/taurus-fleet/taurus/internal/daemon"
	"github.com/taurus-fleet/taurus/internal/sessionlog"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taurusd: %v\n", err)
		return 1
	}

	slog.Info("taurusd starting", "config_dir", configDir)
	if err := d.Run(ctx); err != nil {
		slog.Error("taurusd exited with error", "err", err)
		return 1
	}
	slog.Info("taurusd stopped")
	return 0
}
