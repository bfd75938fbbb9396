package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// QuadrantInput is everything one quadrant generator needs.
type QuadrantInput struct {
	Mode            model.DesignMode
	PuzzleType      model.PuzzleType
	CentralQuestion string
	Aim             string
	Anchors         []model.Anchor
	Fragments       []model.Fragment
	Existing        []model.PuzzlePiece
	Hints           []string
	// Max overrides the agent-wide per-quadrant cap when positive.
	Max int
}

var modeGuidance = map[model.DesignMode]string{
	model.ModeForm:       "shape, material, proportion and physical presence",
	model.ModeMotion:     "movement, change over time, interaction and rhythm",
	model.ModeExpression: "mood, personality, emotion and meaning",
	model.ModeFunction:   "purpose, use, constraints and the job it must do",
}

type quadrantOut struct {
	Pieces []pieceOut `json:"pieces" validate:"dive"`
}

// ErrNoPieces is returned when a quadrant answer contains nothing usable.
var ErrNoPieces = errors.New("no usable pieces")

// QuadrantPieces generates suggested pieces for one mode. Pieces repeating an
// existing text are dropped.
func (a *Agents) QuadrantPieces(ctx context.Context, in QuadrantInput) ([]model.PuzzlePiece, error) {
	if !in.Mode.Valid() {
		return nil, fmt.Errorf("quadrant: invalid mode %q", in.Mode)
	}
	limit := a.maxPieces
	if in.Max > 0 {
		limit = in.Max
	}

	b := header(llm.TaskQuadrant,
		"You write short, concrete prompts that help a designer think through one quadrant of a puzzle.")
	fmt.Fprintf(b, "\nQuadrant: %s %s, about %s\n", in.Mode, llm.ModeRef(string(in.Mode)), modeGuidance[in.Mode])
	if in.PuzzleType.Valid() {
		fmt.Fprintf(b, "Puzzle type: %s\n", in.PuzzleType)
	}
	fmt.Fprintf(b, "Central question: %s\n", in.CentralQuestion)
	writeAnchors(b, in.Anchors)
	writeAim(b, in.Aim)
	writeFragments(b, in.Fragments)
	if len(in.Existing) > 0 {
		b.WriteString("\n[Already on the board, do not repeat]\n")
		for _, p := range in.Existing {
			fmt.Fprintf(b, "- %s\n", p.Text)
		}
	}
	writeHints(b, in.Hints)
	fmt.Fprintf(b, "\nWrite between 1 and %d pieces. Each is one question under 20 words.\n", limit)
	jsonInstruction(b, `{"pieces":[{"text":"...","category":"...","fragmentIds":["..."]}]}`)

	out, err := run[quadrantOut](ctx, a, llm.TaskQuadrant, b.String(), quadrantSchema, nil, 0.9)
	if err != nil {
		return nil, err
	}
	pieces := toPieces(out.Pieces, in.Mode, in.Fragments, in.Existing, limit)
	if len(pieces) == 0 {
		return nil, &Error{Task: llm.TaskQuadrant, Reason: llm.ReasonSchema, Err: ErrNoPieces}
	}
	return pieces, nil
}
