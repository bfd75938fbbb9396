package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// SummaryInput is a finished puzzle.
type SummaryInput struct {
	PuzzleID        string
	CentralQuestion string
	Aim             string
	Anchors         []model.Anchor
	Pieces          []model.PuzzlePiece
	Fragments       []model.Fragment
}

type summaryOut struct {
	DirectionStatement string   `json:"directionStatement" validate:"notblank,maxrunes=400"`
	Reasons            []string `json:"reasons" validate:"max=6,dive,notblank"`
	OpenQuestions      []string `json:"openQuestions" validate:"max=6,dive,notblank"`
}

// Summarize distills a finished puzzle into a direction statement, its
// reasons and what remains open. Discarded pieces are left out of the prompt.
func (a *Agents) Summarize(ctx context.Context, in SummaryInput) (model.PuzzleSummary, error) {
	b := header(llm.TaskPuzzleSummary,
		"You close a design puzzle. Read the central question and what the designer kept, and write the direction they arrived at in one sentence, the reasons behind it, and the questions still open.")
	fmt.Fprintf(b, "\nCentral question: %s\n", in.CentralQuestion)
	writeAnchors(b, in.Anchors)
	writeAim(b, in.Aim)

	b.WriteString("\n[Pieces kept]\n")
	kept := 0
	for _, m := range model.AllModes {
		for _, p := range in.Pieces {
			if p.Mode != m || p.Status == model.StatusDiscarded {
				continue
			}
			text := p.Text
			if p.UserAnnotation != "" {
				text += " (note: " + p.UserAnnotation + ")"
			}
			fmt.Fprintf(b, "- %s: %s\n", m, text)
			kept++
		}
	}
	if kept == 0 {
		b.WriteString("- none\n")
	}
	writeFragments(b, in.Fragments)
	jsonInstruction(b, `{"directionStatement":"...","reasons":["..."],"openQuestions":["..."]}`)

	out, err := run[summaryOut](ctx, a, llm.TaskPuzzleSummary, b.String(), summarySchema, nil, 0.4)
	if err != nil {
		return model.PuzzleSummary{}, err
	}
	return model.PuzzleSummary{
		PuzzleID:           in.PuzzleID,
		DirectionStatement: strings.TrimSpace(out.DirectionStatement),
		Reasons:            out.Reasons,
		OpenQuestions:      out.OpenQuestions,
	}, nil
}
