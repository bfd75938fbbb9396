package storage

import (
	"context"
	"fmt"
	"sync"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// Memory keeps the last saved snapshot in process. It is used in tests and
// when no durable backend is configured but save/load round trips are still
// wanted.
type Memory struct {
	mu    sync.RWMutex
	snap  *model.Snapshot
	saves int
}

// NewMemory creates an empty memory adapter.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns a copy of the last saved snapshot, or nil.
func (m *Memory) Load(_ context.Context) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone(), nil
}

// Save stores a copy of snap. A nil snap is rejected and leaves the stored
// snapshot in place.
func (m *Memory) Save(_ context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save nil snapshot: %w", perrors.ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
