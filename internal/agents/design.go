package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// DesignInput seeds a new puzzle.
type DesignInput struct {
	Type            model.PuzzleType
	CentralQuestion string
	UserQuestion    string
	Aim             string
	Fragments       []model.Fragment
	Hints           []string
}

// Design is a puzzle ready to be committed: its question, both anchors and
// the first pieces in every quadrant.
type Design struct {
	CentralQuestion string
	StartingAnchor  string
	SolutionAnchor  string
	Pieces          []model.PuzzlePiece
}

// Anchors returns the design's anchors, skipping empty ones.
func (d Design) Anchors() []model.Anchor {
	var out []model.Anchor
	if d.StartingAnchor != "" {
		out = append(out, model.Anchor{Type: model.AnchorStarting, Text: d.StartingAnchor})
	}
	if d.SolutionAnchor != "" {
		out = append(out, model.Anchor{Type: model.AnchorSolution, Text: d.SolutionAnchor})
	}
	return out
}

type designOut struct {
	CentralQuestion string     `json:"centralQuestion" validate:"notblank,maxrunes=240"`
	StartingAnchor  string     `json:"startingAnchor" validate:"notblank"`
	SolutionAnchor  string     `json:"solutionAnchor"`
	Pieces          []pieceOut `json:"pieces" validate:"dive"`
}

// DesignPuzzle drafts anchors and seed pieces. A central question in the
// input is kept verbatim; otherwise the model's is used.
func (a *Agents) DesignPuzzle(ctx context.Context, in DesignInput) (Design, error) {
	puzzleType := in.Type
	if !puzzleType.Valid() {
		puzzleType = model.PuzzleClarify
	}

	b := header(llm.TaskPuzzleDesign,
		"You design focused puzzles for a designer. Each puzzle has a central question, a STARTING anchor (why we are asking) and a SOLUTION anchor (what a good answer looks like), and short prompts in four quadrants: FORM, MOTION, EXPRESSION, FUNCTION.")
	fmt.Fprintf(b, "\nPuzzle type: %s\n", puzzleType)
	if q := strings.TrimSpace(in.CentralQuestion); q != "" {
		fmt.Fprintf(b, "Central question: %s\n", q)
	}
	if q := strings.TrimSpace(in.UserQuestion); q != "" {
		fmt.Fprintf(b, "Designer's question: %s\n", q)
	}
	writeAim(b, in.Aim)
	writeFragments(b, in.Fragments)
	writeHints(b, in.Hints)
	fmt.Fprintf(b, "\nWrite at most %d pieces per quadrant, each one short question.\n", a.maxPieces)
	jsonInstruction(b, `{"centralQuestion":"...","startingAnchor":"...","solutionAnchor":"...","pieces":[{"mode":"FORM","text":"...","category":"...","fragmentIds":["..."]}]}`)

	out, err := run[designOut](ctx, a, llm.TaskPuzzleDesign, b.String(), designSchema, imagesFrom(in.Fragments), 0.8)
	if err != nil {
		return Design{}, err
	}

	d := Design{
		CentralQuestion: strings.TrimSpace(out.CentralQuestion),
		StartingAnchor:  strings.TrimSpace(out.StartingAnchor),
		SolutionAnchor:  strings.TrimSpace(out.SolutionAnchor),
	}
	if q := strings.TrimSpace(in.CentralQuestion); q != "" {
		d.CentralQuestion = q
	}

	byMode := make(map[model.DesignMode][]pieceOut)
	for _, p := range out.Pieces {
		if m, err := model.ParseDesignMode(p.Mode); err == nil {
			byMode[m] = append(byMode[m], p)
		}
	}
	for _, m := range model.AllModes {
		d.Pieces = append(d.Pieces, toPieces(byMode[m], m, in.Fragments, d.Pieces, a.maxPieces)...)
	}
	return d, nil
}
