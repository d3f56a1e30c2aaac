// Command taurusctl is the operator CLI: it reuses internal/fleetconfig
// and internal/backup directly rather than talking to a running daemon,
// for offline config validation and backup housekeeping.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taurusctl",
	Short: "taurusctl - operator CLI for the fleet daemon",
	Long: `taurusctl - offline configuration and backup tooling for taurusd.

Available commands:
  check       - validate config.json and servers/ without starting the daemon
  backup ls   - list known backup archives
  backup rm   - remove a backup archive, or all of them`,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
