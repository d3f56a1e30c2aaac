package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/taurus-fleet/taurus/internal/rcon"
	"github.com/taurus-fleet/taurus/internal/tmuxpipe"
)

// Broadcaster delivers a text frame to every authenticated WebSocket
// client. Implemented by internal/daemon's adapter over the
// wsserver.Hub; injected here so this package does not import wsserver.
type Broadcaster interface {
	Broadcast(msg string)
}

// InjectTarget describes how to re-inject a chat message into one
// other game session.
type InjectTarget struct {
	Name         string
	UseRcon      bool
	RconIP       string
	RconPort     int
	RconPassword string
}

// TargetLookup resolves injection settings for a session name, backed
// by the shared Sessions snapshot.
type TargetLookup func(name string) (InjectTarget, bool)

// Engine walks the current Bridges list once per poll tick, classifying
// new log lines and fanning out the resulting message batch. The
// Bridges slice itself is mutex-protected; the poll holds the lock for
// the full poll slice since no other task modifies Bridges after boot.
type Engine struct {
	mu      sync.Mutex
	bridges []*Bridge

	broadcaster  Broadcaster
	targetLookup TargetLookup
}

// NewEngine builds an Engine from the initial Bridges list assembled at
// boot.
func NewEngine(bridges []*Bridge, broadcaster Broadcaster, lookup TargetLookup) *Engine {
	return &Engine{bridges: bridges, broadcaster: broadcaster, targetLookup: lookup}
}

// Bridges returns a snapshot copy of the current bridge pointers, for
// LIST_BRIDGES and tests. The pointers themselves remain shared.
func (e *Engine) Bridges() []*Bridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Bridge, len(e.bridges))
	copy(out, e.bridges)
	return out
}

// Find returns the bridge with the given name, for TOGGLE_BRIDGE.
func (e *Engine) Find(name string) (*Bridge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.bridges {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// Poll runs one 333ms poll tick across every bridge.
func (e *Engine) Poll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var emitted []string
	contributors := make(map[string]struct{})

	for _, b := range e.bridges {
		if b.Disabled() {
			continue
		}

		lines, total, err := tmuxpipe.ReadNewLines(b.Name, b.Line)
		if errors.Is(err, tmuxpipe.ErrPipeMissing) {
			tmuxpipe.GenPipe(ctx, b.Name, false)
			continue
		}
		if err != nil {
			continue
		}

		b.Line = total

		for _, line := range lines {
			out := b.ProcessLine(line)
			if out != "" {
				emitted = append(emitted, out)
				contributors[b.Name] = struct{}{}
			}
		}

		if b.ShouldResetPipe() {
			tmuxpipe.GenPipe(ctx, b.Name, true)
			b.Line = 0
		}
	}

	if len(emitted) == 0 {
		return
	}
	collected := strings.Join(emitted, "\n")
	if len(collected) <= 3 {
		return
	}

	msg := "MSG " + collected
	msg = StripFormatting(msg)

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(msg)
	}
	// e.mu is already held for the whole poll slice, so the reinject
	// pass walks e.bridges directly rather than re-locking.
	injectTellraw(ctx, e.targetLookup, e.bridges, msg, contributors)
}

// injectTellraw wraps msg in a tellraw envelope and sends it into every
// bridge in bridges that is active (state==true) and not present in
// skip, via RCON or the multiplexer depending on the target's settings.
func injectTellraw(ctx context.Context, lookup TargetLookup, bridges []*Bridge, msg string, skip map[string]struct{}) {
	tellraw := fmt.Sprintf(`tellraw @a {"text":%q}`, msg)
	injectRaw(ctx, lookup, bridges, tellraw, skip)
}

// injectRaw sends rawCommand verbatim into every bridge in bridges that
// is active and not present in skip.
func injectRaw(ctx context.Context, lookup TargetLookup, bridges []*Bridge, rawCommand string, skip map[string]struct{}) {
	for _, b := range bridges {
		if _, skipped := skip[b.Name]; skipped {
			continue
		}
		if !b.State {
			continue
		}
		target, ok := lookup(b.Name)
		if !ok {
			continue
		}
		if target.UseRcon {
			_ = rcon.Send(rcon.Target{IP: target.RconIP, Port: target.RconPort, Password: target.RconPassword}, rawCommand)
		} else {
			tmuxpipe.SendCommand(ctx, target.Name, rawCommand)
		}
	}
}

// BroadcastChat wraps text in a tellraw envelope and injects it into
// every currently active bridge. It is the MSG command's delivery
// path, distinct from Poll's emission which also excludes the
// originating bridge.
func (e *Engine) BroadcastChat(ctx context.Context, text string) {
	injectTellraw(ctx, e.targetLookup, e.Bridges(), text, nil)
}

// BroadcastRaw injects rawCommand verbatim into every currently active
// bridge, used by the URL command to deliver a pre-built clickEvent
// tellraw payload without double-wrapping it.
func (e *Engine) BroadcastRaw(ctx context.Context, rawCommand string) {
	injectRaw(ctx, e.targetLookup, e.Bridges(), rawCommand, nil)
}
