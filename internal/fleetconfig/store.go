package fleetconfig

import "sync"

// Store holds the shared Config and Session snapshots behind independent
// many-readers/one-writer locks. A reload becomes visible only between
// two reader-lock acquisitions, so any in-flight operation completes
// against the snapshot it already read.
type Store struct {
	cfgMu sync.RWMutex
	cfg   Config

	sessMu   sync.RWMutex
	sessions []Session
}

// NewStore returns a Store seeded with the given initial snapshot.
func NewStore(cfg Config, sessions []Session) *Store {
	return &Store{cfg: cfg, sessions: sessions}
}

// Config returns the current configuration snapshot.
func (s *Store) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig swaps in a freshly loaded Config (the watcher's writer side).
func (s *Store) SetConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Sessions returns the current session slice. The returned slice must
// not be mutated by callers; reloads always swap in a new slice rather
// than mutating in place.
func (s *Store) Sessions() []Session {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return s.sessions
}

// SetSessions swaps in a freshly loaded Session slice.
func (s *Store) SetSessions(sessions []Session) {
	s.sessMu.Lock()
	s.sessions = sessions
	s.sessMu.Unlock()
}

// Session looks up one session by name.
func (s *Store) Session(name string) (Session, bool) {
	return FindSession(s.Sessions(), name)
}

// ReloadFunc adapts a *Store into a fleetconfig.ReloadCallback for use
// with Watcher.
func (s *Store) ReloadFunc() ReloadCallback {
	return func(cfg Config, sessions []Session) {
		s.SetConfig(cfg)
		s.SetSessions(sessions)
	}
}
