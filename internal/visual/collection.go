// Package visual is the in-process stand-in for the canvas layer's piece
// collection: positioned pieces the user drags, edits and removes. It knows
// nothing about the domain store; the sync adapter watches it.
package visual

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// Cell is a grid position.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Piece is a piece as the canvas sees it.
type Piece struct {
	ID       string            `json:"id"`
	PuzzleID string            `json:"puzzleId,omitempty"`
	Mode     model.DesignMode  `json:"mode"`
	Category string            `json:"category,omitempty"`
	Text     string            `json:"text"`
	Source   model.PieceSource `json:"source,omitempty"`
	Cell     Cell              `json:"cell"`
}

// Listener receives the full piece list after every change.
type Listener func(pieces []Piece)

type listener struct {
	id uint64
	fn Listener
}

// Collection is an observable, ordered set of pieces keyed by id. It is safe
// for concurrent use; listeners run after the lock is released.
type Collection struct {
	mu     sync.Mutex
	pieces []Piece

	subMu     sync.RWMutex
	listeners []listener
	nextID    uint64

	logger zerolog.Logger
}

// NewCollection returns an empty collection.
func NewCollection(logger zerolog.Logger) *Collection {
	return &Collection{logger: logger.With().Str("component", "visual").Logger()}
}

// Pieces returns a copy of the current pieces.
func (c *Collection) Pieces() []Piece {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.pieces)
}

// Set replaces the whole collection. Later duplicates of an id win.
func (c *Collection) Set(pieces []Piece) {
	next := make([]Piece, 0, len(pieces))
	for _, p := range pieces {
		if i := slices.IndexFunc(next, func(q Piece) bool { return q.ID == p.ID }); i >= 0 {
			next[i] = p
			continue
		}
		next = append(next, p)
	}
	c.mu.Lock()
	c.pieces = next
	c.mu.Unlock()
	c.notify()
}

// Upsert adds p or replaces the piece with its id.
func (c *Collection) Upsert(p Piece) {
	c.mu.Lock()
	if i := c.index(p.ID); i >= 0 {
		c.pieces[i] = p
	} else {
		c.pieces = append(c.pieces, p)
	}
	c.mu.Unlock()
	c.notify()
}

// Edit changes a piece's text. It reports whether the piece exists.
func (c *Collection) Edit(id, text string) bool {
	return c.update(id, func(p *Piece) { p.Text = text })
}

// Move changes a piece's cell. It reports whether the piece exists.
func (c *Collection) Move(id string, cell Cell) bool {
	return c.update(id, func(p *Piece) { p.Cell = cell })
}

// Remove drops a piece. It reports whether the piece existed.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.pieces = slices.Delete(slices.Clone(c.pieces), i, i+1)
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Collection) update(id string, fn func(*Piece)) bool {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	next := slices.Clone(c.pieces)
	fn(&next[i])
	c.pieces = next
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Collection) index(id string) int {
	return slices.IndexFunc(c.pieces, func(p Piece) bool { return p.ID == id })
}

// Subscribe registers fn and returns a function that removes it.
func (c *Collection) Subscribe(fn Listener) func() {
	c.subMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
		})
	}
}

// Listeners returns how many listeners are registered.
func (c *Collection) Listeners() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.listeners)
}

func (c *Collection) notify() {
	pieces := c.Pieces()
	c.subMu.RLock()
	ls := slices.Clone(c.listeners)
	c.subMu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Uint64("listener", l.id).Str("panic", fmt.Sprint(r)).Msg("visual listener panicked")
				}
			}()
			l.fn(slices.Clone(pieces))
		}()
	}
}
