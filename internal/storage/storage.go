// Package storage provides snapshot persistence backends for the context
// store: SQLite, Redis and an in-process memory adapter.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// Adapter is a snapshot backend that can also report its health and be
// closed. Every Adapter satisfies contextstore.StorageAdapter.
type Adapter interface {
	Load(ctx context.Context) (*model.Snapshot, error)
	Save(ctx context.Context, snap *model.Snapshot) error
	Ping(ctx context.Context) error
	Close() error
}

func encode(snap *model.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("save nil snapshot: %w", perrors.ErrInvalidInput)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.PreferenceProfile == nil {
		snap.PreferenceProfile = model.UserPreferenceProfile{}
	}
	return &snap, nil
}

// Backend names accepted by Open.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	ProjectID  string
	SQLitePath string
	RedisURL   string
	RedisTTL   time.Duration
}

// Open builds the adapter named by opts.Backend. BackendNone (or "") returns
// a nil Adapter and no error.
func Open(opts Options, logger zerolog.Logger) (Adapter, error) {
	switch opts.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		s, err := NewSQLite(opts.SQLitePath, opts.ProjectID, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		r, err := NewRedis(opts.RedisURL, opts.ProjectID, opts.RedisTTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
