package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taurus-fleet/taurus/internal/fleetconfig"
)

var checkConfigDir string

// checkCmd loads config.json and every servers/ file the same way
// taurusd does at boot, and exits nonzero on the first error.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate config.json and servers/ without starting the daemon",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkConfigDir, "config", ".", "config directory")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := fleetconfig.LoadConfig(checkConfigDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	sessions, err := fleetconfig.LoadSessions(checkConfigDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessions: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("config ok: listening on %s\n", cfg.Addr())
	fmt.Printf("sessions ok: %d session(s) loaded\n", len(sessions))
	for _, s := range sessions {
		bridge := "no"
		if s.Game != nil && s.Game.ChatBridge {
			bridge = "yes"
		}
		fmt.Printf("  - %s (host=%s, chat_bridge=%s)\n", s.Name, s.Host, bridge)
	}
	return nil
}
