package tmuxpipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTempPipeFile(t *testing.T, name string, lines []string) func() {
	t.Helper()
	path := PipePath(name)
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write temp pipe file: %v", err)
	}
	return func() { os.Remove(path) }
}

func TestCurrentLineCountMissingFile(t *testing.T) {
	n, err := CurrentLineCount("nonexistent-session-" + filepath.Base(t.TempDir()))
	if !errors.Is(err, ErrPipeMissing) {
		t.Fatalf("expected ErrPipeMissing, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 lines, got %d", n)
	}
}

func TestCurrentLineCountAndReadNewLines(t *testing.T) {
	cleanup := writeTempPipeFile(t, "test-session-bridge", []string{"a", "b", "c"})
	defer cleanup()

	n, err := CurrentLineCount("test-session-bridge")
	if err != nil {
		t.Fatalf("CurrentLineCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 lines, got %d", n)
	}

	fresh, total, err := ReadNewLines("test-session-bridge", 1)
	if err != nil {
		t.Fatalf("ReadNewLines: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if len(fresh) != 2 || fresh[0] != "b" || fresh[1] != "c" {
		t.Fatalf("expected [b c], got %v", fresh)
	}
}

func TestReadNewLinesMissingFile(t *testing.T) {
	fresh, total, err := ReadNewLines("nonexistent-session-xyz", 0)
	if !errors.Is(err, ErrPipeMissing) {
		t.Fatalf("expected ErrPipeMissing, got %v", err)
	}
	if fresh != nil || total != 0 {
		t.Fatalf("expected empty result, got %v %d", fresh, total)
	}
}

func TestReadNewLinesEmptyButPresentFileIsNotMissing(t *testing.T) {
	cleanup := writeTempPipeFile(t, "test-session-empty", nil)
	defer cleanup()

	fresh, total, err := ReadNewLines("test-session-empty", 0)
	if err != nil {
		t.Fatalf("expected no error for an empty-but-present pipe, got %v", err)
	}
	if fresh != nil || total != 0 {
		t.Fatalf("expected empty result, got %v %d", fresh, total)
	}
}
