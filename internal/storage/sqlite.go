package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// DefaultKeepSnapshots is how many snapshots per project Prune retains.
const DefaultKeepSnapshots = 20

// SQLite stores every saved snapshot as a JSON row and loads the newest one
// for its project.
type SQLite struct {
	db        *sql.DB
	projectID string
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewSQLite opens (or creates) the database at dbPath and runs migrations.
// ":memory:" gives a private in-memory database.
func NewSQLite(dbPath, projectID string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{
		db:        db,
		projectID: projectID,
		logger:    logger.With().Str("component", "storage.sqlite").Logger(),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("SQLite storage initialized")
	return s, nil
}

// Load returns the newest snapshot for the project, or nil when none exists.
func (s *SQLite) Load(ctx context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE project_id = ? ORDER BY id DESC LIMIT 1`,
		s.projectID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decode(data)
}

// Save appends snap as the project's newest snapshot.
func (s *SQLite) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (project_id, fragments, puzzles, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.projectID, len(snap.Fragments), len(snap.Puzzles), data, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Count returns how many snapshots are stored for the project.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE project_id = ?`, s.projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Prune deletes all but the newest keep snapshots of the project.
func (s *SQLite) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = DefaultKeepSnapshots
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE project_id = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE project_id = ? ORDER BY id DESC LIMIT ?
		)`,
		s.projectID, s.projectID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("Pruned old snapshots")
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
