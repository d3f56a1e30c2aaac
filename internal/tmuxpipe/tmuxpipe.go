// Package tmuxpipe is the multiplexer adapter: it drives the real
// external tmux binary to wire per-session log pipes and to inject
// keystrokes into a pane. It deliberately shells out rather than
// embedding a terminal emulator of its own.
package tmuxpipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/taurus-fleet/taurus/internal/procutil"
)

// pipeSettleDelay lets tmux open the pipe file before the bridge engine
// starts reading it.
const pipeSettleDelay = 5 * time.Millisecond

// ErrPipeMissing is returned by CurrentLineCount and ReadNewLines when
// the named session has no pipe file yet, distinct from a pipe file
// that exists but is simply empty of new lines.
var ErrPipeMissing = errors.New("tmuxpipe: pipe file does not exist")

// PipePath returns "/tmp/<name>-taurus".
func PipePath(name string) string {
	return filepath.Join(os.TempDir(), name+"-taurus")
}

// GenPipe ensures a pipe file is active for the named session. When
// removeFirst is true any existing pipe file is deleted first . Failures
// are logged, not fatal.
func GenPipe(ctx context.Context, name string, removeFirst bool) {
	path := PipePath(name)
	if removeFirst {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("[WARN-TMUX] failed to remove existing pipe file", "session", name, "path", path, "err", err)
		}
	}

	cmd := exec.CommandContext(ctx, "tmux", "pipe-pane", "-t", name, fmt.Sprintf("cat > %s", path))
	procutil.SetProcessGroup(cmd)
	if err := cmd.Run(); err != nil {
		slog.Warn("[WARN-TMUX] pipe-pane failed", "session", name, "err", err)
		return
	}
	time.Sleep(pipeSettleDelay)
}

// SendCommand invokes tmux send-keys to inject text followed by Enter
// into the named pane. Non-ASCII input is sent through tmux's literal
// argument passing (-l), so no shell re-interpretation occurs. Each tmux
// invocation runs to completion before SendCommand returns; a final
// procutil.Reap pass collects any other exited children.
func SendCommand(ctx context.Context, name, text string) {
	cmd := exec.CommandContext(ctx, "tmux", "send-keys", "-t", name, "-l", "--", text)
	procutil.SetProcessGroup(cmd)
	if err := cmd.Run(); err != nil {
		slog.Warn("[WARN-TMUX] send-keys failed", "session", name, "err", err)
	}
	enter := exec.CommandContext(ctx, "tmux", "send-keys", "-t", name, "Enter")
	procutil.SetProcessGroup(enter)
	if err := enter.Run(); err != nil {
		slog.Warn("[WARN-TMUX] send-keys Enter failed", "session", name, "err", err)
	}
	procutil.Reap()
}

// CurrentLineCount counts the lines currently present in the named
// session's pipe file, used at boot to seed Bridge.Line so only new
// lines are ever delivered. A missing pipe file reports ErrPipeMissing
// alongside a count of zero.
func CurrentLineCount(name string) (int, error) {
	f, err := os.Open(PipePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrPipeMissing
	}
	if err != nil {
		return 0, fmt.Errorf("tmuxpipe: open pipe: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	count := 0
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// ReadNewLines returns every line in the named session's pipe file
// starting after the 1-based index `after`, along with the new total
// line count. A missing pipe file returns (nil, 0, ErrPipeMissing):
// callers should treat that as "needs GenPipe", distinct from a pipe
// file that exists but has produced no new lines since the last read.
func ReadNewLines(name string, after int) ([]string, int, error) {
	f, err := os.Open(PipePath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrPipeMissing
	}
	if err != nil {
		return nil, 0, fmt.Errorf("tmuxpipe: open pipe: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var fresh []string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo > after {
			fresh = append(fresh, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, lineNo, fmt.Errorf("tmuxpipe: scan pipe: %w", err)
	}
	return fresh, lineNo, nil
}
