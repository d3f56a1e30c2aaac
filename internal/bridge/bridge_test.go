package bridge

import "testing"

func boolPtr(v bool) *bool { return &v }

func TestProcessLineChatMessage(t *testing.T) {
	b := &Bridge{Name: "srv1", State: true}
	line := "[12:34:56] [Server thread/INFO]: <alice> hello"
	got := b.ProcessLine(line)
	want := "[srv1] <alice> hello"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProcessLineJoinLeave(t *testing.T) {
	b := &Bridge{Name: "srv1", State: true}
	line := "[12:34:56] [Server thread/INFO]: alice joined the game"
	got := b.ProcessLine(line)
	want := "[srv1] alice joined the game"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProcessLineNonMatchingIgnored(t *testing.T) {
	b := &Bridge{Name: "srv1", State: true}
	if got := b.ProcessLine("some unrelated log line"); got != "" {
		t.Fatalf("expected no emission, got %q", got)
	}
}

func TestProcessLineStoppingTransitionsState(t *testing.T) {
	b := &Bridge{Name: "srv1", State: true}
	b.ProcessLine("[12:34:56] [Server thread/INFO]: Stopping the server")
	if b.State {
		t.Fatal("expected State to become false after Stopping the server")
	}
}

func TestProcessLineStartupTransitionsState(t *testing.T) {
	b := &Bridge{Name: "srv1", State: false}
	b.ProcessLine("[12:34:56] [Server thread/INFO]: Starting minecraft server")
	if !b.State {
		t.Fatal("expected State to become true on first server-thread line")
	}
}

func TestProcessLineDroppedWhileWaitingForStartup(t *testing.T) {
	b := &Bridge{Name: "srv1", State: false, Enabled: boolPtr(false)}
	// A player-list style line that would otherwise be emitted; it carries
	// no " [Server thread/INFO]: " marker, so State stays false.
	got := b.ProcessLine("[12:34:56] [Server thread/WARN]: alice has the following entity data: {}")
	if got != "" {
		t.Fatalf("expected line to be dropped while waiting for startup, got %q", got)
	}
}

func TestDisabledBridge(t *testing.T) {
	b := &Bridge{Name: "srv1"}
	if !b.Disabled() {
		t.Fatal("expected nil Enabled to mean disabled")
	}
}

func TestToggleNoopWhenDisabled(t *testing.T) {
	b := &Bridge{Name: "srv1"}
	b.Toggle()
	if !b.Disabled() {
		t.Fatal("Toggle must be a no-op on a disabled (None) bridge")
	}
}

func TestToggleFlips(t *testing.T) {
	b := &Bridge{Name: "srv1", Enabled: boolPtr(false)}
	b.Toggle()
	if b.Enabled == nil || !*b.Enabled {
		t.Fatal("expected Enabled to flip to true")
	}
	b.Toggle()
	if b.Enabled == nil || *b.Enabled {
		t.Fatal("expected Enabled to flip back to false")
	}
}

func TestShouldResetPipe(t *testing.T) {
	b := &Bridge{Line: 8001}
	if !b.ShouldResetPipe() {
		t.Fatal("expected reset at line 8001")
	}
	b.Line = 8000
	if b.ShouldResetPipe() {
		t.Fatal("expected no reset at exactly line 8000")
	}
}

func TestStripFormattingRemovesColorCodes(t *testing.T) {
	got := StripFormatting("§chello §aworld")
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestStripFormattingEscapesForJSON(t *testing.T) {
	got := StripFormatting("line_one\n\"quoted\"")
	want := "line\\_one\\n\\\"quoted\\\""
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
