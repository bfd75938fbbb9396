package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/p-blackswan/puzzlecanvas/internal/debounce"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// StorageAdapter persists whole snapshots. Implementations live in
// internal/storage.
type StorageAdapter interface {
	// Load returns the last saved snapshot, or nil when nothing was saved.
	Load(ctx context.Context) (*model.Snapshot, error)
	// Save stores snap, replacing whatever was saved before.
	Save(ctx context.Context, snap *model.Snapshot) error
}

// Persist saves the current snapshot. Failures are logged, never returned.
func (s *Store) Persist(ctx context.Context) {
	if s.storage == nil {
		return
	}
	snap := s.State()
	if err := s.storage.Save(ctx, snap); err != nil {
		s.logger.Warn().Err(err).Msg("persist failed")
		return
	}
	s.logger.Debug().Int("fragments", len(snap.Fragments)).Msg("snapshot persisted")
}

// Hydrate replaces the current state with the stored snapshot, if any. The
// undo and redo stacks are cleared. It reports whether a snapshot was loaded;
// failures are logged and reported as false.
func (s *Store) Hydrate(ctx context.Context) bool {
	if s.storage == nil {
		return false
	}
	snap, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("hydrate failed")
		return false
	}
	if snap == nil {
		return false
	}
	if snap.PreferenceProfile == nil {
		snap.PreferenceProfile = model.UserPreferenceProfile{}
	}
	s.replace(snap)
	s.logger.Info().Int("fragments", len(snap.Fragments)).Int("puzzles", len(snap.Puzzles)).Msg("snapshot hydrated")
	return true
}

// AutoPersist saves the store in the background after changes settle for
// window. The returned stop function cancels any pending save, flushes the
// latest state once more and waits for in-flight saves.
func (s *Store) AutoPersist(window time.Duration) (stop func()) {
	if s.storage == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	var saving sync.Mutex
	timer := debounce.New(window, func() {
		saving.Lock()
		defer saving.Unlock()
		s.Persist(ctx)
	})
	unsub := s.Subscribe(timer.Schedule)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			timer.Flush()
			saving.Lock()
			saving.Unlock()
			cancel()
		})
	}
}
