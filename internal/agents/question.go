package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

const (
	maxQuestionFragments = 8
	maxPriorDirections   = 3
)

// QuestionInput is the context for synthesizing a central question.
type QuestionInput struct {
	PuzzleType      model.PuzzleType
	Aim             string
	Fragments       []model.Fragment
	PriorDirections []string
}

type questionOut struct {
	CentralQuestion string `json:"centralQuestion" validate:"notblank,maxrunes=240"`
}

// CentralQuestion asks the model for a puzzle's central question. The result
// is returned undecided so callers can layer their own checks and fallbacks.
// Only the first eight fragments with a summary or content and the last
// three prior directions are sent.
func (a *Agents) CentralQuestion(ctx context.Context, in QuestionInput) llm.Result[string] {
	puzzleType := in.PuzzleType
	if !puzzleType.Valid() {
		puzzleType = model.PuzzleClarify
	}

	b := header(llm.TaskCentralQuestion,
		"You write the single central question of a design puzzle. It must be specific to this project: name its materials, people, places or ideas. Avoid generic questions that would fit any project.")
	fmt.Fprintf(b, "\nPuzzle type: %s\n", puzzleType)
	writeAim(b, in.Aim)

	var listed int
	for _, f := range in.Fragments {
		if listed == maxQuestionFragments {
			break
		}
		text := f.Summary
		if text == "" && f.Type != model.FragmentTypeImage {
			text = truncate(f.Content, 160)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if listed == 0 {
			b.WriteString("\n[Fragments]\n")
		}
		fmt.Fprintf(b, "- %q: %s\n", f.Title, text)
		listed++
	}

	prior := in.PriorDirections
	if len(prior) > maxPriorDirections {
		prior = prior[len(prior)-maxPriorDirections:]
	}
	if len(prior) > 0 {
		b.WriteString("\n[Directions already decided]\n")
		for _, d := range prior {
			fmt.Fprintf(b, "- %s\n", d)
		}
	}
	jsonInstruction(b, `{"centralQuestion":"..."}`)

	r := llm.Structured[questionOut](ctx, a.client, b.String(), questionSchema,
		llm.WithTask(llm.TaskCentralQuestion), llm.WithTemperature(0.6))
	if !r.OK {
		a.logger.Debug().Str("reason", string(r.Reason)).Err(r.Err).Msg("central question not usable")
		return llm.Fail[string](r.Reason, r.Err, r.Raw)
	}
	return llm.Ok(strings.TrimSpace(r.Value.CentralQuestion), r.Raw)
}
