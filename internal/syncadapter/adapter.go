// Package syncadapter reconciles the visual piece collection with the domain
// pieces in the context store. The visual layer never sees the domain model;
// the adapter diffs successive visual snapshots by id and turns additions,
// edits and removals into store commands and bus events.
package syncadapter

import (
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/visual"
)

// PieceSource is the observable visual collection.
type PieceSource interface {
	Pieces() []visual.Piece
	Subscribe(fn visual.Listener) func()
}

// ChangeKind classifies one diff entry.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeEdited  ChangeKind = "edited"
	ChangeMoved   ChangeKind = "moved"
	ChangeRemoved ChangeKind = "removed"
)

// Change is one piece-level difference between two visual snapshots.
type Change struct {
	Kind  ChangeKind
	Piece visual.Piece
}

// Diff compares two visual snapshots by id. Added and changed pieces follow
// next's order; removals follow prev's order and come last. A piece whose
// text and cell both changed counts as edited.
func Diff(prev, next []visual.Piece) []Change {
	before := make(map[string]visual.Piece, len(prev))
	for _, p := range prev {
		before[p.ID] = p
	}
	seen := make(map[string]bool, len(next))
	var out []Change
	for _, p := range next {
		seen[p.ID] = true
		old, ok := before[p.ID]
		switch {
		case !ok:
			out = append(out, Change{Kind: ChangeAdded, Piece: p})
		case old.Text != p.Text || old.Category != p.Category:
			out = append(out, Change{Kind: ChangeEdited, Piece: p})
		case old.Cell != p.Cell:
			out = append(out, Change{Kind: ChangeMoved, Piece: p})
		}
	}
	for _, p := range prev {
		if !seen[p.ID] {
			out = append(out, Change{Kind: ChangeRemoved, Piece: p})
		}
	}
	return out
}

// Adapter keeps the store in step with one PieceSource at a time.
type Adapter struct {
	store  *contextstore.Store
	bus    *eventbus.Bus
	logger zerolog.Logger

	mu     sync.Mutex
	prev   []visual.Piece
	source PieceSource
	unsub  func()
}

// New creates a detached Adapter.
func New(store *contextstore.Store, bus *eventbus.Bus, logger zerolog.Logger) *Adapter {
	return &Adapter{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "syncadapter").Logger(),
	}
}

// Attach starts watching src, replacing any earlier subscription. The
// pieces src already holds become the baseline without producing changes.
func (a *Adapter) Attach(src PieceSource) {
	a.Detach()

	baseline := src.Pieces()
	a.mu.Lock()
	a.source = src
	a.prev = baseline
	a.mu.Unlock()

	unsub := src.Subscribe(a.onChange)

	a.mu.Lock()
	a.unsub = unsub
	a.mu.Unlock()
	a.logger.Debug().Int("baseline", len(baseline)).Msg("attached")
}

// Detach stops watching. It is safe to call when not attached.
func (a *Adapter) Detach() {
	a.mu.Lock()
	unsub := a.unsub
	a.unsub = nil
	a.source = nil
	a.mu.Unlock()
	if unsub != nil {
		unsub()
		a.logger.Debug().Msg("detached")
	}
}

// Attached reports whether a source is being watched.
func (a *Adapter) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unsub != nil
}

func (a *Adapter) onChange(pieces []visual.Piece) {
	a.mu.Lock()
	defer a.mu.Unlock()
	changes := Diff(a.prev, pieces)
	a.prev = pieces
	for _, ch := range changes {
		a.apply(ch)
	}
}

func (a *Adapter) apply(ch Change) {
	p := ch.Piece
	switch ch.Kind {
	case ChangeAdded:
		stored, _ := a.store.RecordPieceLifecycle(a.toDomain(p, model.StatusPlaced), model.PieceEventPlaced)
		a.emit(eventbus.PiecePlaced, stored)
	case ChangeEdited:
		next := a.toDomain(p, model.StatusPlaced)
		if next.Source.AIOriginated() {
			next.Source = model.SourceAISuggestedUserEdited
			next.Status = model.StatusEdited
		}
		stored, _ := a.store.RecordPieceLifecycle(next, model.PieceEventEdited)
		a.emit(eventbus.PieceEdited, stored)
	case ChangeMoved:
		a.logger.Debug().Str("piece_id", p.ID).Int("row", p.Cell.Row).Int("col", p.Cell.Col).Msg("piece moved")
	case ChangeRemoved:
		if !a.store.DiscardPiece(p.ID) {
			a.logger.Debug().Str("piece_id", p.ID).Msg("removed piece has no domain record")
		}
		a.emit(eventbus.PieceDeleted, a.toDomain(p, model.StatusDiscarded))
	}
}

// toDomain maps a visual piece onto its domain record, keeping the fields
// the visual layer does not carry.
func (a *Adapter) toDomain(p visual.Piece, status model.PieceStatus) model.PuzzlePiece {
	d, ok := a.store.State().Piece(p.ID)
	if !ok {
		d = model.PuzzlePiece{ID: p.ID, Source: model.SourceUser}
	}
	d = d.Clone()
	if p.PuzzleID != "" {
		d.PuzzleID = p.PuzzleID
	}
	if p.Mode.Valid() {
		d.Mode = p.Mode
	}
	if p.Category != "" {
		d.Category = p.Category
	}
	if p.Source != "" && d.Source != model.SourceAISuggestedUserEdited {
		d.Source = p.Source
	}
	d.Text = p.Text
	d.Status = status
	return d
}

func (a *Adapter) emit(t eventbus.Type, p model.PuzzlePiece) {
	a.bus.EmitType(t, eventbus.PiecePayload{
		PieceID:  p.ID,
		PuzzleID: p.PuzzleID,
		Mode:     p.Mode,
		Category: p.Category,
		Text:     p.Text,
	})
}

// SyncAllToDomain writes every piece currently on the canvas to the store,
// so no live edit is lost when a session ends. Pieces whose domain record
// already matches are skipped. It returns the number of pieces written.
func (a *Adapter) SyncAllToDomain() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source != nil {
		a.prev = a.source.Pieces()
	}
	var batch []model.PuzzlePiece
	for _, p := range a.prev {
		existing, ok := a.store.State().Piece(p.ID)
		if ok && existing.Text == p.Text && existing.Status != model.StatusSuggested && existing.Status != model.StatusDiscarded {
			continue
		}
		status := model.StatusPlaced
		if ok && existing.Status == model.StatusEdited {
			status = model.StatusEdited
		}
		batch = append(batch, a.toDomain(p, status))
	}
	if len(batch) == 0 {
		return 0
	}
	a.store.UpsertPuzzlePieces(batch)
	a.logger.Info().Int("pieces", len(batch)).Msg("visual pieces flushed to store")
	return len(batch)
}

// PlacedPieceIDs returns the ids currently on the canvas, sorted.
func (a *Adapter) PlacedPieceIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.prev))
	for _, p := range a.prev {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return slices.Compact(ids)
}
