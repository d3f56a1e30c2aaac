// Package daemon is the orchestrator: it boots the
// session registry, the bridge engine, the backup engine, the host
// monitor, and the control-plane WebSocket acceptor, then runs the
// three long-running tasks (333ms bridge poll, 1Hz backup tick, the
// config watcher). Boot sequencing and panic-isolated worker launch are
// structured as a startup()/shutdown() split: the bridge poll and backup
// tick are launched under workerutil.RunWithPanicRecovery, and the config
// watcher runs its own goroutine via Watcher.Start.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taurus-fleet/taurus/internal/backup"
	"github.com/taurus-fleet/taurus/internal/bridge"
	"github.com/taurus-fleet/taurus/internal/control"
	"github.com/taurus-fleet/taurus/internal/fleetconfig"
	"github.com/taurus-fleet/taurus/internal/sysmon"
	"github.com/taurus-fleet/taurus/internal/tmuxpipe"
	"github.com/taurus-fleet/taurus/internal/workerutil"
	"github.com/taurus-fleet/taurus/internal/wsserver"
)

// bridgePollInterval is the chat-bridge poll cadence.
const bridgePollInterval = 333 * time.Millisecond

// backupTickInterval is the scheduled-backup tick cadence.
const backupTickInterval = 1 * time.Second

// Daemon owns every long-running task and the shared state they operate
// on.
type Daemon struct {
	ConfigDir string

	store   *fleetconfig.Store
	monitor *sysmon.Monitor
	backups *backup.Engine
	bridges *bridge.Engine
	watcher *fleetconfig.Watcher
	hub     *wsserver.Hub

	wg sync.WaitGroup
}

// New loads the initial Config/Sessions snapshot and assembles every
// component, but does not yet start any background task or accept
// connections.
func New(ctx context.Context, configDir string) (*Daemon, error) {
	cfg, err := fleetconfig.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config: %w", err)
	}
	sessions, err := fleetconfig.LoadSessions(configDir)
	if err != nil {
		return nil, fmt.Errorf("daemon: load sessions: %w", err)
	}

	d := &Daemon{
		ConfigDir: configDir,
		store:     fleetconfig.NewStore(cfg, sessions),
		monitor:   sysmon.New(),
		backups:   backup.NewEngine(ctx),
	}

	bridges := d.buildBridges(ctx, sessions)

	fleet := &control.Fleet{
		RootCtx: ctx,
		Store:   d.store,
		Backups: d.backups,
		Monitor: d.monitor,
	}
	d.hub = wsserver.NewHub(wsserver.HubOptions{Addr: cfg.Addr()}, fleet.NewDispatcher)
	fleet.Hub = d.hub
	d.bridges = bridge.NewEngine(bridges, hubBroadcaster{d.hub}, d.targetLookup)
	fleet.Bridges = d.bridges

	watcher, err := fleetconfig.NewWatcher(configDir, d.store.ReloadFunc())
	if err != nil {
		return nil, fmt.Errorf("daemon: new config watcher: %w", err)
	}
	d.watcher = watcher

	return d, nil
}

// hubBroadcaster adapts *wsserver.Hub to bridge.Broadcaster.
type hubBroadcaster struct{ hub *wsserver.Hub }

func (b hubBroadcaster) Broadcast(msg string) { b.hub.Broadcast(msg) }

// buildBridges creates one Bridge per session with a Game whose
// ChatBridge flag is set, seeding Line with the pipe's current line
// count so only new lines are ever delivered.
func (d *Daemon) buildBridges(ctx context.Context, sessions []fleetconfig.Session) []*bridge.Bridge {
	bridges := make([]*bridge.Bridge, 0, len(sessions))
	for _, s := range sessions {
		if s.Game == nil || !s.Game.ChatBridge {
			continue
		}
		tmuxpipe.GenPipe(ctx, s.Name, false)
		time.Sleep(5 * time.Millisecond)

		line, err := tmuxpipe.CurrentLineCount(s.Name)
		if err != nil {
			slog.Warn("failed to seed bridge line count", "session", s.Name, "err", err)
		}
		enabled := false
		bridges = append(bridges, &bridge.Bridge{
			Name:    s.Name,
			Line:    line,
			Enabled: &enabled,
		})
	}
	return bridges
}

// targetLookup resolves a bridge name to its injection target, used by
// the bridge engine's emission step: a session
// with an Rcon block is reached over RCON, otherwise via the
// multiplexer.
func (d *Daemon) targetLookup(name string) (bridge.InjectTarget, bool) {
	sess, ok := d.store.Session(name)
	if !ok {
		return bridge.InjectTarget{}, false
	}
	if sess.Rcon != nil {
		return bridge.InjectTarget{
			Name:         name,
			UseRcon:      true,
			RconIP:       sess.Rcon.IPOrDefault(),
			RconPort:     sess.Rcon.Port,
			RconPassword: sess.Rcon.Password,
		}, true
	}
	return bridge.InjectTarget{Name: name}, true
}

// Run starts the WebSocket acceptor and the three long-running tasks,
// and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.hub.Start(ctx); err != nil {
		return fmt.Errorf("daemon: start control plane: %w", err)
	}

	d.watcher.Start()

	recovery := workerutil.RecoveryOptions{IsShutdown: func() bool { return ctx.Err() != nil }}
	workerutil.RunWithPanicRecovery(ctx, "bridge-poll", &d.wg, d.runBridgePoll, recovery)
	workerutil.RunWithPanicRecovery(ctx, "backup-tick", &d.wg, d.runBackupTick, recovery)

	<-ctx.Done()
	return d.shutdown()
}

func (d *Daemon) runBridgePoll(ctx context.Context) {
	ticker := time.NewTicker(bridgePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.bridges.Poll(ctx)
		}
	}
}

func (d *Daemon) runBackupTick(ctx context.Context) {
	ticker := time.NewTicker(backupTickInterval)
	defer ticker.Stop()

	var clock uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clock++
			if err := d.monitor.Refresh(ctx); err != nil {
				slog.Warn("host monitor refresh failed", "err", err)
			}
			cfg := d.store.Config()
			for _, s := range d.store.Sessions() {
				if s.Game == nil {
					continue
				}
				dest := s.Game.BackupDir(cfg.BackupLocation)
				d.backups.PerformScheduledBackups(d.monitor, s.Name, s.Game, dest, clock)
			}
		}
	}
}

func (d *Daemon) shutdown() error {
	if err := d.watcher.Stop(); err != nil {
		slog.Warn("config watcher stop failed", "err", err)
	}
	if err := d.hub.Stop(); err != nil {
		slog.Warn("control plane stop failed", "err", err)
	}
	d.wg.Wait()
	return nil
}

// Store exposes the shared config/session store, for taurusctl-style
// callers embedding the daemon package directly in tests.
func (d *Daemon) Store() *fleetconfig.Store { return d.store }
