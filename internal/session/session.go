// Package session holds per-connection state: the selected database,
// authentication, the queued-command buffer used by MULTI/EXEC, and the
// subscription/blocking bookkeeping the dispatcher consults before routing
// a command.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// QueuedCommand is one command buffered between MULTI and EXEC/DISCARD.
type QueuedCommand struct {
	Name string
	Args [][]byte
}

// Session is one client connection's state. All fields are only ever
// touched by that connection's own goroutine except where noted.
type Session struct {
	ID string // stable identity used as the pubsub/blocking registry key

	mu sync.Mutex

	db            int
	authenticated bool
	proto         int // negotiated RESP protocol version, 2 or 3

	inMulti  bool
	dirty    bool // a queuing-time error occurred; EXEC must abort
	queue    []QueuedCommand
	watched  map[watchKey]int64 // key -> version observed at WATCH time

	subscribedChannels int
	subscribedPatterns int
}

type watchKey struct {
	db  int
	key string
}

// New creates a session with a fresh id and RESP2/db0 defaults.
func New() *Session {
	return &Session{ID: uuid.NewString(), proto: 2, watched: make(map[watchKey]int64)}
}

func (s *Session) DB() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func (s *Session) SelectDB(db int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) SetAuthenticated(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = ok
}

func (s *Session) Proto() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proto
}

func (s *Session) SetProto(proto int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proto = proto
}

// InMulti reports whether a MULTI is currently open on this connection.
func (s *Session) InMulti() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inMulti
}

// Multi opens a transaction buffer, implementing MULTI. Returns false if one
// is already open (Redis replies with an error in that case, but does not
// alter existing state).
func (s *Session) Multi() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inMulti {
		return false
	}
	s.inMulti = true
	s.dirty = false
	s.queue = nil
	return true
}

// Queue buffers one command during MULTI, implementing the queueing phase.
func (s *Session) Queue(name string, args [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, QueuedCommand{Name: name, Args: args})
}

// MarkDirty records that a command failed the unknown-command check
// while queuing, which must abort EXEC even though the command itself was
// never queued (EXECABORT semantics).
func (s *Session) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// Exec drains the queue for execution, implementing EXEC. ok is false if
// the transaction must be aborted (EXECABORT) without running anything.
func (s *Session) Exec() (queue []QueuedCommand, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inMulti {
		return nil, false
	}
	queue, dirty := s.queue, s.dirty
	s.inMulti, s.dirty, s.queue = false, false, nil
	s.clearWatchesLocked()
	if dirty {
		return nil, false
	}
	return queue, true
}

// Discard drops the queue, implementing DISCARD.
func (s *Session) Discard() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inMulti {
		return false
	}
	s.inMulti, s.dirty, s.queue = false, false, nil
	s.clearWatchesLocked()
	return true
}

// Watch records the version a key had at WATCH time, implementing WATCH.
// Callers pass the version keyregistry.Key.Version reported, or 0 for a
// key that did not yet exist.
func (s *Session) Watch(db int, key string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[watchKey{db: db, key: key}] = version
}

// WatchesStillValid reports whether every watched key's version, as
// reported by currentVersion, still matches what was observed at WATCH
// time. A false result means EXEC must fail without running the queue.
func (s *Session) WatchesStillValid(currentVersion func(db int, key string) int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for wk, v := range s.watched {
		if currentVersion(wk.db, wk.key) != v {
			return false
		}
	}
	return true
}

func (s *Session) clearWatchesLocked() {
	s.watched = make(map[watchKey]int64)
}

// ClearWatch implements UNWATCH.
func (s *Session) ClearWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearWatchesLocked()
}

// SubscriptionCount reports the total channel+pattern subscriptions, used
// to gate which commands are allowed while subscribed.
func (s *Session) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribedChannels + s.subscribedPatterns
}

func (s *Session) SetSubscriptionCounts(channels, patterns int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribedChannels, s.subscribedPatterns = channels, patterns
}
