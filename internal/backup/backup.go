// Package backup implements the scheduled backup engine: interval and
// slotted-retention archive creation, pruning, and the listing/region
// extraction auxiliary surfaces.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/taurus-fleet/taurus/internal/fleetconfig"
	"github.com/taurus-fleet/taurus/internal/procutil"
)

// HealthChecker is the single-bool surface the backup engine needs from
// the host monitor.
type HealthChecker interface {
	Healthy() bool
}

const archiveTimeLayout = "2006-01-02_15_04_05"

// Engine drives per-session backup creation. At most one backup may be
// in-flight per session at a time.
type Engine struct {
	rootCtx context.Context

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine returns an Engine whose spawned subprocesses are killed
// when rootCtx is canceled (the daemon's lifetime context).
func NewEngine(rootCtx context.Context) *Engine {
	return &Engine{rootCtx: rootCtx, inFlight: make(map[string]struct{})}
}

// archiveName builds "<name>_YYYY-MM-DD_HH_MM_SS.tar.gz" in local time,
// zero-padded.
func archiveName(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.tar.gz", name, t.Local().Format(archiveTimeLayout))
}

// Backup starts one archive for the named session. It returns
// immediately with a human-readable status string; the actual copy+tar
// work happens in a detached goroutine.
func (e *Engine) Backup(checker HealthChecker, name string, game *fleetconfig.Game, dest string) string {
	if game == nil || game.FilePath == "" {
		return "Unable to reach file path"
	}
	if checker != nil && !checker.Healthy() {
		return "Backup aborted due to system constraints"
	}

	e.mu.Lock()
	if _, running := e.inFlight[name]; running {
		e.mu.Unlock()
		return "backup already in progress"
	}
	e.inFlight[name] = struct{}{}
	e.mu.Unlock()

	archive := archiveName(name, time.Now())
	go e.run(name, game.FilePath, dest, archive)
	return "starting new backup"
}

// run performs the two-phase copy-then-archive: cp -ru into a staging
// directory, then tar -czf into the final archive. Both subprocesses
// are killed if rootCtx is canceled.
func (e *Engine) run(name, filePath, dest, archive string) {
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, name)
		e.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(e.rootCtx)
	defer cancel()

	worldDir := filepath.Join(dest, name+"-world")
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		slog.Error("[ERROR-BACKUP] mkdir world copy dir", "session", name, "err", err)
		return
	}

	cp := exec.CommandContext(ctx, "cp", "-ru", filePath+"/.", worldDir)
	procutil.SetProcessGroup(cp)
	if err := cp.Run(); err != nil {
		slog.Warn("[WARN-BACKUP] copy world tree failed", "session", name, "err", err)
		return
	}

	archivePath := filepath.Join(dest, archive)
	tar := exec.CommandContext(ctx, "tar", "-czf", archivePath, "-C", dest, name+"-world")
	procutil.SetProcessGroup(tar)
	if err := tar.Run(); err != nil {
		slog.Warn("[WARN-BACKUP] tar archive failed", "session", name, "err", err)
	}
}

// DeleteBackupsOlderThan unlinks every regular file in dir whose name
// starts with "<name>_" and whose modification age exceeds maxAge.
// Go's stdlib has no portable creation-time stat, so (like the file's
// other age comparisons) modification time stands in for "creation
// age"; a stat error on an entry skips it rather than failing the pass.
func DeleteBackupsOlderThan(dir, name string, maxAge time.Duration) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backup: read dir: %w", err)
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), name+"_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				slog.Warn("[WARN-BACKUP] failed to delete aged-out archive", "file", entry.Name(), "err", err)
			}
		}
	}
	return nil
}

// ListBackups walks each distinct backup directory and returns
// newline-joined "<filename> (<human-readable size>)" entries, lexically
// sorted.
func ListBackups(dirs []string) (string, error) {
	seen := make(map[string]struct{})
	var lines []string

	for _, dir := range dirs {
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("backup: list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), ".tar.gz") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s (%s)", entry.Name(), humanize.IBytes(uint64(info.Size()))))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

// regionDimFolders maps CP_REGION's dim argument to the on-disk Minecraft
// dimension subfolder.
var regionDimFolders = map[string]string{
	"OW":     "",
	"NETHER": "DIM-1",
	"END":    "DIM1",
}

// CopyRegion copies "r.<x>.<z>.mca" from the session's region folder
// into the configured webserver directory, returning the public URL.
func CopyRegion(filePath, webserverLocation, webserverPrefix, dim string, x, z int) (string, error) {
	dimFolder, ok := regionDimFolders[dim]
	if !ok {
		return "", fmt.Errorf("invalid dimension %q", dim)
	}
	if webserverLocation == "" || webserverPrefix == "" {
		return "", fmt.Errorf("webserver not configured")
	}

	regionName := fmt.Sprintf("r.%d.%d.mca", x, z)
	src := filepath.Join(filePath, dimFolder, "region", regionName)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("region does not exist")
	}

	destDir := filepath.Join(webserverLocation, "region")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create region folder")
	}
	if err := copyFile(src, filepath.Join(destDir, regionName)); err != nil {
		return "", fmt.Errorf("failed to copy region into webserver folder")
	}
	return fmt.Sprintf("%s/region/%s", webserverPrefix, regionName), nil
}

// CopyStructure is CP_REGION's analogue for "<file_path>/structure/<name>".
func CopyStructure(filePath, webserverLocation, webserverPrefix, name string) (string, error) {
	if webserverLocation == "" || webserverPrefix == "" {
		return "", fmt.Errorf("webserver not configured")
	}

	src := filepath.Join(filePath, "structure", name)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("structure does not exist")
	}

	destDir := filepath.Join(webserverLocation, "structure")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create structure folder")
	}
	if err := copyFile(src, filepath.Join(destDir, name)); err != nil {
		return "", fmt.Errorf("failed to copy structure into webserver folder")
	}
	return fmt.Sprintf("%s/structure/%s", webserverPrefix, name), nil
}

// ListStructures lists "<file_path>/structure/" entries as
// "<name> (<size>)" lines, lexically sorted.
func ListStructures(filePath string) (string, error) {
	dir := filepath.Join(filePath, "structure")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("unable to access structure folder")
	}
	var lines []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (%s)", entry.Name(), humanize.IBytes(uint64(info.Size()))))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}
