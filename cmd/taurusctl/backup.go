package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taurus-fleet/taurus/internal/backup"
	"github.com/taurus-fleet/taurus/internal/fleetconfig"
)

var backupConfigDir string

// backupCmd groups the archive-listing and archive-removal subcommands.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List or remove backup archives",
}

var backupLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List known backup archives",
	RunE:  runBackupLs,
}

var backupRmCmd = &cobra.Command{
	Use:   "rm <file|all>",
	Short: "Remove a backup archive, or all of them",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRm,
}

func init() {
	backupCmd.PersistentFlags().StringVar(&backupConfigDir, "config", ".", "config directory")
	backupCmd.AddCommand(backupLsCmd)
	backupCmd.AddCommand(backupRmCmd)
}

func backupDirs() ([]string, error) {
	cfg, err := fleetconfig.LoadConfig(backupConfigDir)
	if err != nil {
		return nil, err
	}
	sessions, err := fleetconfig.LoadSessions(backupConfigDir)
	if err != nil {
		return nil, err
	}
	dirs := []string{cfg.BackupLocation}
	for _, s := range sessions {
		dirs = append(dirs, s.Game.BackupDir(cfg.BackupLocation))
	}
	return dirs, nil
}

func runBackupLs(cmd *cobra.Command, args []string) error {
	dirs, err := backupDirs()
	if err != nil {
		return err
	}
	text, err := backup.ListBackups(dirs)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runBackupRm(cmd *cobra.Command, args []string) error {
	dirs, err := backupDirs()
	if err != nil {
		return err
	}

	target := args[0]
	if target == "all" {
		for _, dir := range dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				_ = os.Remove(filepath.Join(dir, e.Name()))
			}
		}
		fmt.Println("removed all known backup archives")
		return nil
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, target)
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", path)
			return nil
		}
	}
	return fmt.Errorf("backup file %q not found in any known backup directory", target)
}
