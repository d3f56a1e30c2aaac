// Package bridge implements the log-tail bridge engine: it walks each
// game server's pipe file, classifies new lines into chat/lifecycle
// events, and broadcasts a normalized message stream.
package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

// lineResetThreshold is the pipe-recycle point: once a bridge has seen
// this many lines, its pipe is regenerated rather than grown forever.
const lineResetThreshold = 8000

// logPrefixLen is the fixed width of "[12:34:56] [Server thread/INFO]: ".
const logPrefixLen = 33

const (
	stoppingMarker     = "Stopping the server"
	serverThreadMarker = " [Server thread/INFO]: "
)

var (
	chatPattern       = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[Server thread/INFO\]: (<.*|[\w ]+ (joined|left) the game)$`)
	playerListPattern = regexp.MustCompile(`^There are \d+ of a max of \d+ players online: `)
	playerHasPattern  = regexp.MustCompile(`^\S+ has `)
)

// Bridge is the runtime mirror of a Session with chat_bridge=true
// . Enabled is tri-state: nil means disabled by config
// ("None"), a pointer to false means "waiting for server startup", a
// pointer to true means "active".
type Bridge struct {
	Name    string
	Line    int
	Enabled *bool
	State   bool
}

// Disabled reports the "None" tri-state: the bridge is turned off by
// config and the poll loop must skip it entirely.
func (b *Bridge) Disabled() bool {
	return b.Enabled == nil
}

// WaitingForStartup reports the "Some(false)" tri-state.
func (b *Bridge) WaitingForStartup() bool {
	return b.Enabled != nil && !*b.Enabled
}

// Toggle flips Enabled between Some(false) and Some(true); it is a
// no-op when Enabled is None.
func (b *Bridge) Toggle() {
	if b.Enabled == nil {
		return
	}
	flipped := !*b.Enabled
	b.Enabled = &flipped
}

// ProcessLine applies the chat/lifecycle classifier and state machine
// to one new log line and returns the text to emit, or "" if the line
// produces no broadcast output. It mutates b.State on the "Stopping the
// server" / " [Server thread/INFO]: " lifecycle transitions.
func (b *Bridge) ProcessLine(line string) string {
	if strings.Contains(line, stoppingMarker) {
		b.State = false
	} else if !b.State && strings.Contains(line, serverThreadMarker) {
		b.State = true
	}

	if !b.State && b.WaitingForStartup() {
		return ""
	}

	if chatPattern.MatchString(line) {
		payload := line
		if len(line) > logPrefixLen {
			payload = line[logPrefixLen:]
		}
		return fmt.Sprintf("[%s] %s", b.Name, payload)
	}

	if len(line) > logPrefixLen {
		rest := line[logPrefixLen:]
		if playerListPattern.MatchString(rest) || playerHasPattern.MatchString(rest) {
			return line
		}
	}
	return ""
}

// ShouldResetPipe reports whether b.Line has crossed the recycle
// threshold.
func (b *Bridge) ShouldResetPipe() bool {
	return b.Line > lineResetThreshold
}
