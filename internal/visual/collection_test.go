package visual

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

func TestCollection(t *testing.T) {
	c := NewCollection(zerolog.Nop())
	var ticks [][]Piece
	unsub := c.Subscribe(func(p []Piece) { ticks = append(ticks, p) })

	c.Set([]Piece{{ID: "a", Text: "1"}, {ID: "b", Text: "2"}, {ID: "a", Text: "3"}})
	require.Len(t, ticks, 1)
	assert.Equal(t, []Piece{{ID: "a", Text: "3"}, {ID: "b", Text: "2"}}, ticks[0])

	assert.True(t, c.Edit("b", "two"))
	assert.True(t, c.Move("a", Cell{Row: 1, Col: 2}))
	c.Upsert(Piece{ID: "c", Mode: model.ModeForm})
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.False(t, c.Edit("zzz", "x"))
	assert.False(t, c.Move("zzz", Cell{}))

	require.Len(t, ticks, 5)
	assert.Equal(t, Cell{Row: 1, Col: 2}, ticks[2][0].Cell)
	assert.Equal(t, []Piece{{ID: "b", Text: "two"}, {ID: "c", Mode: model.ModeForm}}, c.Pieces())

	unsub()
	unsub()
	c.Upsert(Piece{ID: "d"})
	assert.Len(t, ticks, 5)
	assert.Zero(t, c.Listeners())
}

func TestCollection_ListenerCopiesAreIndependent(t *testing.T) {
	c := NewCollection(zerolog.Nop())
	c.Subscribe(func(p []Piece) {
		if len(p) > 0 {
			p[0].Text = "mutated"
		}
	})
	c.Subscribe(func([]Piece) { panic("listener failure") })
	c.Set([]Piece{{ID: "a", Text: "orig"}})
	assert.Equal(t, "orig", c.Pieces()[0].Text)
}
