// Package control implements the WebSocket command dispatcher: it
// parses the VERB grammar, authenticates the handshake, and
// fans requests out to the bridge engine, backup engine, RCON/
// multiplexer adapters, host monitor, and session registry. Verb-table
// dispatch is a flat command router: one handler function per VERB,
// keyed by name.
package control

import (
	"context"

	"github.com/taurus-fleet/taurus/internal/backup"
	"github.com/taurus-fleet/taurus/internal/bridge"
	"github.com/taurus-fleet/taurus/internal/fleetconfig"
	"github.com/taurus-fleet/taurus/internal/sysmon"
	"github.com/taurus-fleet/taurus/internal/wsserver"
)

// Fleet bundles every shared handle the dispatcher needs: the
// config/session store, the bridge engine, the backup engine, the host
// monitor, and the hub used to broadcast to authenticated clients.
type Fleet struct {
	RootCtx context.Context
	Store   *fleetconfig.Store
	Bridges *bridge.Engine
	Backups *backup.Engine
	Monitor *sysmon.Monitor
	Hub     *wsserver.Hub
}

// NewDispatcher returns a wsserver.DispatcherFactory bound to this
// Fleet, suitable for wsserver.NewHub.
func (f *Fleet) NewDispatcher(c *wsserver.Client) wsserver.Dispatcher {
	return &connDispatcher{fleet: f, client: c}
}

// connDispatcher handles one connection's frames. The connection's
// connected -> authenticated -> closed state is tracked by wsserver
// (Client.Authed and the hub's read loop), not here.
type connDispatcher struct {
	fleet *Fleet
	client *wsserver.Client
}

// HandleAuthFrame implements wsserver.Dispatcher.
func (d *connDispatcher) HandleAuthFrame(text string) bool {
	cfg := d.fleet.Store.Config()
	return wsserver.CheckPassword(text, cfg.WSPassword)
}

// HandleCommand implements wsserver.Dispatcher.
func (d *connDispatcher) HandleCommand(text string) string {
	return dispatch(d.fleet, text)
}
