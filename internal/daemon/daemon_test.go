package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/taurus-fleet/taurus/internal/fleetconfig"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, fleetconfig.ConfigPath(dir), fleetconfig.Config{
		WSIP:           "127.0.0.1",
		WSPort:         17500,
		WSPassword:     "s3cret",
		BackupLocation: filepath.Join(dir, "backups"),
	})
	writeJSON(t, filepath.Join(fleetconfig.SessionsDir(dir), "alpha.json"), fleetconfig.Session{
		Name: "alpha",
		Host: fleetconfig.HostTmux,
		Game: &fleetconfig.Game{FilePath: dir, ChatBridge: true},
	})
	writeJSON(t, filepath.Join(fleetconfig.SessionsDir(dir), "bravo.json"), fleetconfig.Session{
		Name: "bravo",
		Host: fleetconfig.HostTmux,
		Rcon: &fleetconfig.Rcon{Port: 25575, Password: "x"},
	})
	return dir
}

func TestNewAssemblesComponentsAndBridgeList(t *testing.T) {
	dir := newTestConfigDir(t)

	d, err := New(context.Background(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := d.store.Config().WSPort; got != 17500 {
		t.Fatalf("ws_port = %d, want 17500", got)
	}

	bridges := d.bridges.Bridges()
	if len(bridges) != 1 || bridges[0].Name != "alpha" {
		t.Fatalf("bridges = %+v, want exactly one bridge for alpha", bridges)
	}
}

func TestTargetLookupPrefersRcon(t *testing.T) {
	dir := newTestConfigDir(t)
	d, err := New(context.Background(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target, ok := d.targetLookup("bravo")
	if !ok || !target.UseRcon || target.RconPort != 25575 {
		t.Fatalf("targetLookup(bravo) = %+v, %v", target, ok)
	}

	target, ok = d.targetLookup("alpha")
	if !ok || target.UseRcon {
		t.Fatalf("targetLookup(alpha) = %+v, %v, want non-rcon target", target, ok)
	}

	if _, ok := d.targetLookup("nosuch"); ok {
		t.Fatal("targetLookup(nosuch) returned ok=true")
	}
}
