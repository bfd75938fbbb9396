package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/p-blackswan/puzzlecanvas/internal/agents"
	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/preference"
	"github.com/p-blackswan/puzzlecanvas/internal/puzzlesession"
)

const recentDirections = 3

var errAllQuadrantsFailed = errors.New("all quadrants failed")

// analyzeFragments summarizes, tags and clusters the canvas. Results from a
// superseded debounce cycle may land after newer ones; both are idempotent
// merges.
func (o *Orchestrator) analyzeFragments(ctx context.Context) (string, error) {
	snap := o.store.State()
	if len(snap.Fragments) == 0 {
		return "no fragments to analyze", nil
	}
	fc, err := o.agents.AnalyzeFragments(ctx, snap.Project.ProcessAim, snap.Fragments)
	if err != nil {
		return "", err
	}
	insights := make([]contextstore.FragmentInsight, 0, len(fc.Fragments))
	for _, in := range fc.Fragments {
		insights = append(insights, contextstore.FragmentInsight{FragmentID: in.ID, Summary: in.Summary, Tags: in.Tags})
	}
	o.store.MergeFragmentInsights(insights, fc.ModelClusters())
	return fmt.Sprintf("analyzed %d fragments into %d clusters", len(insights), len(fc.Clusters)), nil
}

// startFromQuestion turns the user's question into a proposal and then a
// fully designed puzzle.
func (o *Orchestrator) startFromQuestion(ctx context.Context, p eventbus.MascotClickedPayload) (string, error) {
	snap := o.store.State()
	proposal, err := o.agents.ProposePuzzle(ctx, agents.ProposalInput{
		UserQuestion: p.UserQuestion,
		Aim:          snap.Project.ProcessAim,
		Fragments:    snap.Fragments,
		Recent:       snap.RecentSummaries(recentDirections),
	})
	if err != nil {
		return "", err
	}
	o.store.SetMascotProposal(proposal)

	puzzle, err := o.createPuzzle(ctx, agents.DesignInput{
		Type:            proposal.PuzzleType,
		CentralQuestion: proposal.CentralQuestion,
		UserQuestion:    p.UserQuestion,
	}, model.OriginUserRequest)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created %s puzzle %s", puzzle.Type, puzzle.ID), nil
}

// suggestPuzzle asks the mascot whether the clusters deserve a puzzle and
// creates one unless it explicitly declines.
func (o *Orchestrator) suggestPuzzle(ctx context.Context) (string, error) {
	snap := o.store.State()
	sg, err := o.agents.SuggestPuzzle(ctx, agents.SuggestionInput{
		Aim:       snap.Project.ProcessAim,
		Clusters:  snap.Clusters,
		Fragments: snap.Fragments,
		Recent:    snap.RecentSummaries(recentDirections),
	})
	if err != nil {
		return "", err
	}
	o.store.SetMascotSuggestion(sg)
	if !sg.ShouldSuggest {
		return "mascot has no suggestion", nil
	}

	puzzle, err := o.createPuzzle(ctx, agents.DesignInput{
		Type:            sg.PuzzleType,
		CentralQuestion: sg.CentralQuestion,
	}, model.OriginAISuggested)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created suggested %s puzzle %s", puzzle.Type, puzzle.ID), nil
}

// createPuzzle designs a puzzle and commits it with its anchors and seed
// pieces in one store commit.
func (o *Orchestrator) createPuzzle(ctx context.Context, in agents.DesignInput, origin model.PuzzleOrigin) (model.Puzzle, error) {
	snap := o.store.State()
	in.Aim = snap.Project.ProcessAim
	in.Fragments = snap.Fragments
	in.Hints = preference.Hints(snap.PreferenceProfile, 0)

	d, err := o.agents.DesignPuzzle(ctx, in)
	if err != nil {
		return model.Puzzle{}, err
	}
	puzzle, _ := o.store.CreatePuzzleWithContent(model.Puzzle{
		CentralQuestion: d.CentralQuestion,
		Type:            in.Type,
		CreatedFrom:     origin,
	}, d.Anchors(), d.Pieces)
	o.logger.Info().
		Str("puzzle_id", puzzle.ID).
		Str("puzzle_type", string(puzzle.Type)).
		Str("origin", string(origin)).
		Int("pieces", len(d.Pieces)).
		Msg("puzzle created")
	return puzzle, nil
}

// finishPuzzle summarizes a puzzle, labels every fragment it drew on and
// announces completion.
func (o *Orchestrator) finishPuzzle(ctx context.Context, p eventbus.PuzzleFinishPayload) (string, error) {
	if p.PuzzleID == "" {
		return "", fmt.Errorf("finish puzzle: missing puzzle id: %w", perrors.ErrInvalidInput)
	}
	if o.flusher != nil {
		o.flusher.SyncAllToDomain()
	}

	snap := o.store.State()
	puzzle, known := snap.Puzzle(p.PuzzleID)
	question := p.CentralQuestion
	if question == "" {
		question = puzzle.CentralQuestion
	}
	anchors := p.Anchors
	if len(anchors) == 0 {
		anchors = snap.AnchorsFor(p.PuzzleID)
	}
	pieces := p.Pieces
	if len(pieces) == 0 {
		pieces = snap.PiecesFor(p.PuzzleID)
	}
	fragmentIDs := referencedFragments(p.FragmentIDs, pieces)
	var fragments []model.Fragment
	for _, id := range fragmentIDs {
		if f, ok := snap.Fragment(id); ok {
			fragments = append(fragments, f)
		}
	}

	sum, err := o.agents.Summarize(ctx, agents.SummaryInput{
		PuzzleID:        p.PuzzleID,
		CentralQuestion: question,
		Aim:             snap.Project.ProcessAim,
		Anchors:         anchors,
		Pieces:          pieces,
		Fragments:       fragments,
	})
	if err != nil {
		return "", err
	}
	sum.PuzzleID = p.PuzzleID
	o.store.AddPuzzleSummary(sum)

	if len(fragmentIDs) > 0 {
		o.store.LabelFragments(fragmentIDs, p.PuzzleID)
		links := make([]model.FragmentPuzzleLink, 0, len(fragmentIDs))
		for _, id := range fragmentIDs {
			links = append(links, model.FragmentPuzzleLink{FragmentID: id, PuzzleID: p.PuzzleID, PuzzleType: puzzle.Type})
		}
		o.store.AddFragmentPuzzleLink(links...)
	}
	if !known {
		o.logger.Warn().Str("puzzle_id", p.PuzzleID).Msg("summarized a puzzle the store does not know")
	}

	stored, _ := o.store.State().Summary(p.PuzzleID)
	o.bus.EmitType(eventbus.PuzzleSessionCompleted, eventbus.SessionCompletedPayload{PuzzleID: p.PuzzleID, Summary: stored})
	return fmt.Sprintf("summarized puzzle %s", p.PuzzleID), nil
}

// referencedFragments is the union of explicit ids and piece links, in
// first-seen order.
func referencedFragments(explicit []string, pieces []model.PuzzlePiece) []string {
	var out []string
	add := func(id string) {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range explicit {
		add(id)
	}
	for _, pc := range pieces {
		if pc.Status == model.StatusDiscarded {
			continue
		}
		for _, l := range pc.FragmentLinks {
			add(l.FragmentID)
		}
	}
	return out
}

// regenerateQuadrant adds fresh suggestions to one quadrant of a puzzle.
func (o *Orchestrator) regenerateQuadrant(ctx context.Context, p eventbus.PiecePayload) (string, error) {
	snap := o.store.State()
	puzzle, ok := snap.Puzzle(p.PuzzleID)
	if !ok {
		return "", fmt.Errorf("regenerate quadrant: puzzle %q: %w", p.PuzzleID, perrors.ErrNotFound)
	}
	pieces, err := o.sessions.RegenerateQuadrant(ctx, puzzlesession.QuadrantRequest{
		Mode:            p.Mode,
		PuzzleID:        puzzle.ID,
		PuzzleType:      puzzle.Type,
		CentralQuestion: puzzle.CentralQuestion,
		Aim:             snap.Project.ProcessAim,
		Anchors:         snap.AnchorsFor(puzzle.ID),
		Fragments:       snap.Fragments,
		Existing:        snap.PiecesFor(puzzle.ID),
		Profile:         snap.PreferenceProfile,
	})
	if err != nil {
		return "", err
	}
	o.store.SuggestPieces(pieces)
	return fmt.Sprintf("added %d %s pieces", len(pieces), p.Mode), nil
}

// runSession generates a full session and commits it. A puzzle the store
// does not know yet is created together with the session's anchors and
// pieces; an existing puzzle gets the pieces plus any anchors it lacks.
func (o *Orchestrator) runSession(ctx context.Context, p eventbus.SessionStartedPayload) (string, error) {
	snap := o.store.State()
	existing, known := snap.Puzzle(p.PuzzleID)
	puzzleID := p.PuzzleID
	if puzzleID == "" {
		puzzleID = uuid.NewString()
	}

	puzzleType := p.PuzzleType
	question := p.CentralQuestion
	anchors := p.Anchors
	if known {
		puzzleType = existing.Type
		if question == "" {
			question = existing.CentralQuestion
		}
		if len(anchors) == 0 {
			anchors = snap.AnchorsFor(existing.ID)
		}
	}

	var directions []string
	for _, s := range snap.RecentSummaries(recentDirections) {
		directions = append(directions, s.DirectionStatement)
	}
	slices.Reverse(directions)

	state, errs := o.sessions.Run(ctx, puzzlesession.SessionRequest{
		PuzzleID:        puzzleID,
		PuzzleType:      puzzleType,
		CentralQuestion: question,
		Aim:             snap.Project.ProcessAim,
		Anchors:         anchors,
		Fragments:       snap.Fragments,
		PriorDirections: directions,
		Existing:        snap.PiecesFor(puzzleID),
		Profile:         snap.PreferenceProfile,
	})
	if o.metrics != nil {
		o.metrics.RecordSession(string(state.Status))
	}

	if state.Status != model.SessionFailed {
		o.commitSession(&state, known, snap)
	}

	if errs == nil {
		errs = []string{}
	}
	o.bus.EmitType(eventbus.PuzzleSessionGenerated, eventbus.SessionGeneratedPayload{SessionState: state, Errors: errs})
	if state.Status == model.SessionFailed {
		return "", fmt.Errorf("%w: %s", errAllQuadrantsFailed, strings.Join(errs, "; "))
	}
	return fmt.Sprintf("session %s generated %d pieces", state.SessionID, len(state.Pieces())), nil
}

// commitSession gives every anchor and piece of state an id and stores them.
// A puzzle the store does not know is created with them in one commit; an
// existing puzzle gets the new pieces plus any anchors it lacks.
func (o *Orchestrator) commitSession(state *model.PuzzleSessionState, known bool, snap *model.Snapshot) {
	var fresh []model.Anchor
	for i := range state.Anchors {
		a := &state.Anchors[i]
		a.PuzzleID = state.PuzzleID
		if a.ID != "" && slices.ContainsFunc(snap.Anchors, func(s model.Anchor) bool { return s.ID == a.ID }) {
			continue
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		fresh = append(fresh, *a)
	}
	for _, pieces := range state.Quadrants {
		for i := range pieces {
			if pieces[i].ID == "" {
				pieces[i].ID = uuid.NewString()
			}
			pieces[i].PuzzleID = state.PuzzleID
		}
	}

	if !known {
		o.store.CreatePuzzleWithContent(model.Puzzle{
			ID:              state.PuzzleID,
			CentralQuestion: state.CentralQuestion,
			Type:            state.PuzzleType,
		}, fresh, state.Pieces())
		return
	}
	if len(fresh) > 0 {
		o.store.AddAnchors(fresh...)
	}
	o.store.SuggestPieces(state.Pieces())
}

// tracePreferences logs the profile the store refreshed in the same commit
// as the piece change.
func (o *Orchestrator) tracePreferences(ev eventbus.Event) {
	hints := preference.Hints(o.store.State().PreferenceProfile, 0)
	o.logger.Debug().
		Str("event_type", string(ev.Type)).
		Strs("hints", hints).
		Msg("preference profile updated")
}
