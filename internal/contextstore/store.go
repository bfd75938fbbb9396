// Package contextstore holds the single authoritative, versioned snapshot of
// all domain data. Every mutation goes through one commit path that records
// the previous snapshot for undo, clears the redo stack, publishes the new
// snapshot and then notifies subscribers.
package contextstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// Updater mutates a private draft of the current snapshot.
type Updater func(draft *model.Snapshot)

// Listener is notified after every state change. Listeners re-read the state
// through Store.State; they receive no arguments.
type Listener func()

type listener struct {
	id uint64
	fn Listener
}

// Store is safe for concurrent use. Commits are serialized; listeners run
// after the commit lock is released, so a listener may itself commit (which
// notifies again, nested).
type Store struct {
	mu       sync.Mutex
	current  *model.Snapshot
	history  []*model.Snapshot
	future   []*model.Snapshot
	revision uint64

	subMu     sync.RWMutex
	listeners []listener
	nextID    uint64

	historyLimit int
	storage      StorageAdapter
	onCommit     func(command string)
	now          func() time.Time
	logger       zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHistoryLimit bounds the undo stack. Zero means unbounded.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.historyLimit = n }
}

// WithStorage sets the adapter used by Persist and Hydrate.
func WithStorage(a StorageAdapter) Option {
	return func(s *Store) { s.storage = a }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l.With().Str("component", "contextstore").Logger() }
}

// WithCommitObserver is called with the command name after every commit.
func WithCommitObserver(fn func(command string)) Option {
	return func(s *Store) { s.onCommit = fn }
}

// WithClock overrides time.Now for timestamps set by commands.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store whose initial state is an empty document for project.
func New(project model.Project, opts ...Option) *Store {
	s := &Store{
		current: model.NewSnapshot(project),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current snapshot. Callers must treat it as read-only.
func (s *Store) State() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Revision increments on every commit, undo, redo and hydrate.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// SetState commits the result of applying fn to a deep copy of the current
// state, and returns the new state.
func (s *Store) SetState(fn Updater) *model.Snapshot {
	return s.commit("set_state", fn)
}

func (s *Store) commit(command string, fn Updater) *model.Snapshot {
	s.mu.Lock()
	draft := s.current.Clone()
	fn(draft)
	s.history = append(s.history, s.current)
	if s.historyLimit > 0 && len(s.history) > s.historyLimit {
		drop := len(s.history) - s.historyLimit
		clear(s.history[:drop])
		s.history = s.history[drop:]
	}
	s.future = nil
	s.current = draft
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.logger.Debug().Str("command", command).Uint64("revision", rev).Msg("commit")
	if s.onCommit != nil {
		s.onCommit(command)
	}
	s.notify()
	return draft
}

// Undo restores the previous snapshot. It returns nil when there is nothing
// to undo.
func (s *Store) Undo() *model.Snapshot {
	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return nil
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.future = append(s.future, s.current)
	s.current = prev
	s.revision++
	s.mu.Unlock()

	s.notify()
	return prev
}

// Redo re-applies the most recently undone snapshot. It returns nil when
// there is nothing to redo.
func (s *Store) Redo() *model.Snapshot {
	s.mu.Lock()
	if len(s.future) == 0 {
		s.mu.Unlock()
		return nil
	}
	next := s.future[len(s.future)-1]
	s.future = s.future[:len(s.future)-1]
	s.history = append(s.history, s.current)
	s.current = next
	s.revision++
	s.mu.Unlock()

	s.notify()
	return next
}

// CanUndo reports whether Undo would change state.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) > 0
}

// CanRedo reports whether Redo would change state.
func (s *Store) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.future) > 0
}

// HistoryLen returns the depth of the undo stack.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Reset applies fn to a deep copy of the current state and installs the
// result as a new baseline: history and future are cleared, so the change
// cannot be undone. Used for loading seed content.
func (s *Store) Reset(fn Updater) *model.Snapshot {
	s.mu.Lock()
	draft := s.current.Clone()
	fn(draft)
	s.current = draft
	s.history = nil
	s.future = nil
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	s.logger.Debug().Str("command", "reset").Uint64("revision", rev).Msg("baseline replaced")
	s.notify()
	return draft
}

// replace installs snap as current without recording history.
func (s *Store) replace(snap *model.Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.history = nil
	s.future = nil
	s.revision++
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// notify calls every listener in subscription order. A panicking listener
// is logged and does not prevent the rest from running.
func (s *Store) notify() {
	s.subMu.RLock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.subMu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Uint64("listener", l.id).
						Str("panic", fmt.Sprint(r)).
						Msg("store listener panicked")
				}
			}()
			l.fn()
		}()
	}
}
