package fleetconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HostTmux is the host tag for tmux-hosted sessions. The loader does not
// check Session.Host, and nothing in the module branches on it.
const HostTmux = "tmux"

// Session is one named game server.
type Session struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Host        string `json:"host"`
	Game        *Game  `json:"game,omitempty"`
	Rcon        *Rcon  `json:"rcon,omitempty"`
}

// Game is per-session server properties.
type Game struct {
	FilePath        string `json:"file_path,omitempty"`
	BackupPath      string `json:"backup_path,omitempty"`
	BackupInterval  *int64 `json:"backup_interval,omitempty"`
	BackupKeep      *int64 `json:"backup_keep,omitempty"`
	Hourly          *int   `json:"hourly,omitempty"`
	Daily           *int   `json:"daily,omitempty"`
	Weekly          *int   `json:"weekly,omitempty"`
	Monthly         *int   `json:"monthly,omitempty"`
	ChatBridge      bool   `json:"chat_bridge,omitempty"`
	InGameCmd       bool   `json:"in_game_cmd,omitempty"`
}

// Rcon is the RCON endpoint for a session.
type Rcon struct {
	IP       string `json:"ip,omitempty"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// IPOrDefault returns Rcon.IP, defaulting to localhost when unset.
func (r Rcon) IPOrDefault() string {
	if r.IP == "" {
		return "127.0.0.1"
	}
	return r.IP
}

// Slotted reports whether this Game uses tiered slot retention rather
// than interval+keep retention.
func (g *Game) Slotted() bool {
	if g == nil {
		return false
	}
	return g.Hourly != nil || g.Daily != nil || g.Weekly != nil || g.Monthly != nil
}

// Validate enforces that a session configures interval-based backups or
// slotted retention, never both: a session config setting both fails at
// load time rather than silently picking one.
func (g *Game) Validate() error {
	if g == nil {
		return nil
	}
	if g.Slotted() && (g.BackupInterval != nil || g.BackupKeep != nil) {
		return errors.New("game: backup_interval/backup_keep are mutually exclusive with hourly/daily/weekly/monthly slot counts")
	}
	return nil
}

// BackupDir returns the effective backup directory for this session:
// Game.BackupPath if set, else the fleet-wide default.
func (g *Game) BackupDir(defaultDir string) string {
	if g != nil && g.BackupPath != "" {
		return g.BackupPath
	}
	return defaultDir
}

// LoadSessions reads every regular file in <dir>/servers/ as one Session.
// A malformed file is fatal ; a duplicate name
// is rejected.
func LoadSessions(dir string) ([]Session, error) {
	sessionsDir := SessionsDir(dir)
	entries, err := os.ReadDir(sessionsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: read sessions dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := make(map[string]struct{}, len(names))
	sessions := make([]Session, 0, len(names))
	for _, name := range names {
		path := filepath.Join(sessionsDir, name)
		raw, readErr := readLimitedFile(path, maxConfigFileBytes)
		if readErr != nil {
			return nil, fmt.Errorf("fleetconfig: read session file %s: %w", name, readErr)
		}

		var sess Session
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if decErr := dec.Decode(&sess); decErr != nil {
			return nil, fmt.Errorf("fleetconfig: parse session file %s: %w", name, decErr)
		}
		if sess.Name == "" {
			return nil, fmt.Errorf("fleetconfig: session file %s has empty name", name)
		}
		if _, dup := seen[sess.Name]; dup {
			return nil, fmt.Errorf("fleetconfig: duplicate session name %q (file %s)", sess.Name, name)
		}
		if err := sess.Game.Validate(); err != nil {
			return nil, fmt.Errorf("fleetconfig: session %q: %w", sess.Name, err)
		}
		seen[sess.Name] = struct{}{}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// FindSession returns the session with the given name.
func FindSession(sessions []Session, name string) (Session, bool) {
	for _, s := range sessions {
		if s.Name == name {
			return s, true
		}
	}
	return Session{}, false
}
