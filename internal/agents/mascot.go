package agents

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// ProposalInput is what the mascot sees when the user asks it a question.
type ProposalInput struct {
	UserQuestion string
	Aim          string
	Fragments    []model.Fragment
	Recent       []model.PuzzleSummary
}

type proposalOut struct {
	PuzzleType      string   `json:"puzzleType"`
	CentralQuestion string   `json:"centralQuestion" validate:"notblank,maxrunes=240"`
	Rationale       string   `json:"rationale"`
	PrimaryModes    []string `json:"primaryModes"`
}

// ProposePuzzle turns the user's own question into a puzzle proposal.
func (a *Agents) ProposePuzzle(ctx context.Context, in ProposalInput) (model.MascotProposal, error) {
	b := header(llm.TaskMascotProposal,
		"You are a friendly design mascot. The designer asked you a question; reframe it as the central question of a focused puzzle and pick the puzzle type: CLARIFY (pin down meaning), EXPAND (open new directions) or REFINE (sharpen what exists).")
	writeAim(b, in.Aim)
	if q := strings.TrimSpace(in.UserQuestion); q != "" {
		fmt.Fprintf(b, "\nDesigner's question: %s\n", q)
	}
	writeFragments(b, in.Fragments)
	writeDirections(b, in.Recent)
	jsonInstruction(b, `{"puzzleType":"CLARIFY|EXPAND|REFINE","centralQuestion":"...","rationale":"...","primaryModes":["FORM|MOTION|EXPRESSION|FUNCTION"]}`)

	out, err := run[proposalOut](ctx, a, llm.TaskMascotProposal, b.String(), proposalSchema, nil, 0.7)
	if err != nil {
		return model.MascotProposal{}, err
	}
	return model.MascotProposal{
		UserQuestion:    in.UserQuestion,
		PuzzleType:      model.ParsePuzzleType(out.PuzzleType),
		CentralQuestion: strings.TrimSpace(out.CentralQuestion),
		Rationale:       out.Rationale,
		PrimaryModes:    parseModes(out.PrimaryModes),
	}, nil
}

// SuggestionInput is what the mascot sees when asked for an unprompted idea.
type SuggestionInput struct {
	Aim       string
	Clusters  []model.Cluster
	Fragments []model.Fragment
	Recent    []model.PuzzleSummary
}

type suggestionOut struct {
	ShouldSuggest   *bool    `json:"shouldSuggest"`
	PuzzleType      string   `json:"puzzleType"`
	CentralQuestion string   `json:"centralQuestion" validate:"maxrunes=240"`
	Rationale       string   `json:"rationale"`
	ClusterIDs      []string `json:"clusterIds"`
}

// SuggestPuzzle decides whether the canvas is ripe for a puzzle and, if so,
// proposes one. A missing shouldSuggest counts as true. An empty canvas is
// answered without calling the model.
func (a *Agents) SuggestPuzzle(ctx context.Context, in SuggestionInput) (model.PuzzleSuggestion, error) {
	if len(in.Clusters) == 0 && len(in.Fragments) == 0 {
		return model.PuzzleSuggestion{Rationale: "Nothing on the canvas yet."}, nil
	}

	b := header(llm.TaskPuzzleSuggestion,
		"You are a design mascot looking over the designer's shoulder. Decide whether the themes below deserve a focused puzzle right now. If yes, propose its type and central question.")
	writeAim(b, in.Aim)
	if len(in.Clusters) > 0 {
		b.WriteString("\n[Clusters]\n")
		for _, c := range in.Clusters {
			fmt.Fprintf(b, "- [cluster:%s] %s (%d fragments)\n", c.ID, c.Theme, len(c.FragmentIDs))
		}
	}
	writeFragments(b, in.Fragments)
	writeDirections(b, in.Recent)
	jsonInstruction(b, `{"shouldSuggest":true,"puzzleType":"CLARIFY|EXPAND|REFINE","centralQuestion":"...","rationale":"...","clusterIds":["..."]}`)

	out, err := run[suggestionOut](ctx, a, llm.TaskPuzzleSuggestion, b.String(), suggestionSchema, nil, 0.7)
	if err != nil {
		return model.PuzzleSuggestion{}, err
	}

	should := out.ShouldSuggest == nil || *out.ShouldSuggest
	question := strings.TrimSpace(out.CentralQuestion)
	if should && question == "" {
		return model.PuzzleSuggestion{}, &Error{
			Task:   llm.TaskPuzzleSuggestion,
			Reason: llm.ReasonSchema,
			Err:    fmt.Errorf("suggestion without central question"),
		}
	}

	known := make(map[string]bool, len(in.Clusters))
	for _, c := range in.Clusters {
		known[c.ID] = true
	}
	return model.PuzzleSuggestion{
		ShouldSuggest:   should,
		PuzzleType:      model.ParsePuzzleType(out.PuzzleType),
		CentralQuestion: question,
		Rationale:       out.Rationale,
		ClusterIDs:      slices.DeleteFunc(out.ClusterIDs, func(id string) bool { return !known[id] }),
	}, nil
}

func writeDirections(b *strings.Builder, recent []model.PuzzleSummary) {
	if len(recent) == 0 {
		return
	}
	b.WriteString("\n[Directions already explored]\n")
	for _, s := range recent {
		fmt.Fprintf(b, "- %s\n", s.DirectionStatement)
	}
}

func parseModes(in []string) []model.DesignMode {
	var out []model.DesignMode
	for _, s := range in {
		if m, err := model.ParseDesignMode(s); err == nil && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
