// Package puzzlesession builds puzzle sessions: one central question and four
// quadrants of suggested pieces generated concurrently. A failing or slow
// quadrant leaves an empty list behind; it never takes the others down.
package puzzlesession

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/puzzlecanvas/internal/agents"
	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/preference"
)

const (
	// DefaultQuadrantTimeout bounds each quadrant generator call.
	DefaultQuadrantTimeout = 15 * time.Second
	// DefaultMaxPieces caps pieces per quadrant.
	DefaultMaxPieces = 5
)

// Generator is the LLM-backed side of a session. *agents.Agents implements it.
type Generator interface {
	CentralQuestion(ctx context.Context, in agents.QuestionInput) llm.Result[string]
	QuadrantPieces(ctx context.Context, in agents.QuadrantInput) ([]model.PuzzlePiece, error)
}

// QuadrantObserver sees the outcome of every quadrant call.
type QuadrantObserver func(mode model.DesignMode, d time.Duration, err error)

// Coordinator runs puzzle sessions against a Generator.
type Coordinator struct {
	gen       Generator
	timeout   time.Duration
	maxPieces int
	observe   QuadrantObserver
	logger    zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithQuadrantTimeout overrides the per-quadrant deadline.
func WithQuadrantTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxPieces overrides the per-quadrant cap.
func WithMaxPieces(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxPieces = n
		}
	}
}

// WithQuadrantObserver installs fn, typically a metrics hook.
func WithQuadrantObserver(fn QuadrantObserver) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// New creates a Coordinator.
func New(gen Generator, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		gen:       gen,
		timeout:   DefaultQuadrantTimeout,
		maxPieces: DefaultMaxPieces,
		logger:    logger.With().Str("component", "puzzlesession").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionRequest describes the session to generate. An empty CentralQuestion
// is synthesized through the question pipeline.
type SessionRequest struct {
	SessionID       string
	PuzzleID        string
	PuzzleType      model.PuzzleType
	CentralQuestion string
	Aim             string
	Anchors         []model.Anchor
	Fragments       []model.Fragment
	PriorDirections []string
	Existing        []model.PuzzlePiece
	Profile         model.UserPreferenceProfile
}

// QuadrantRequest regenerates one quadrant of an existing puzzle.
type QuadrantRequest struct {
	Mode            model.DesignMode
	PuzzleID        string
	PuzzleType      model.PuzzleType
	CentralQuestion string
	Aim             string
	Anchors         []model.Anchor
	Fragments       []model.Fragment
	Existing        []model.PuzzlePiece
	Profile         model.UserPreferenceProfile
}

type quadrantOutcome struct {
	mode   model.DesignMode
	pieces []model.PuzzlePiece
	err    error
}

// Run generates the central question (unless given) and then all four
// quadrants concurrently. It returns the session and one error string per
// failed quadrant. The session is failed only when every quadrant failed.
func (c *Coordinator) Run(ctx context.Context, req SessionRequest) (model.PuzzleSessionState, []string) {
	puzzleType := req.PuzzleType
	if !puzzleType.Valid() {
		puzzleType = model.PuzzleClarify
	}
	state := model.PuzzleSessionState{
		SessionID:  req.SessionID,
		PuzzleID:   req.PuzzleID,
		PuzzleType: puzzleType,
		Anchors:    slices.Clone(req.Anchors),
		Quadrants:  make(map[model.DesignMode][]model.PuzzlePiece, len(model.AllModes)),
		Status:     model.SessionCompleted,
	}
	if state.SessionID == "" {
		state.SessionID = uuid.NewString()
	}
	if state.Anchors == nil {
		state.Anchors = []model.Anchor{}
	}

	state.CentralQuestion = strings.TrimSpace(req.CentralQuestion)
	if state.CentralQuestion == "" {
		state.CentralQuestion = c.CentralQuestion(ctx, QuestionInput{
			PuzzleType:      puzzleType,
			Aim:             req.Aim,
			Fragments:       req.Fragments,
			PriorDirections: req.PriorDirections,
		}).Text
	}

	hints := preference.Hints(req.Profile, 0)
	outcomes := make([]quadrantOutcome, len(model.AllModes))
	var g errgroup.Group
	for i, mode := range model.AllModes {
		g.Go(func() error {
			pieces, err := c.quadrant(ctx, agents.QuadrantInput{
				Mode:            mode,
				PuzzleType:      puzzleType,
				CentralQuestion: state.CentralQuestion,
				Aim:             req.Aim,
				Anchors:         state.Anchors,
				Fragments:       req.Fragments,
				Existing:        existingFor(req.Existing, mode),
				Hints:           hints,
				Max:             c.maxPieces,
			}, req.PuzzleID)
			outcomes[i] = quadrantOutcome{mode: mode, pieces: pieces, err: err}
			// Quadrant failures are reported per mode, never as a group error.
			return nil
		})
	}
	_ = g.Wait()

	var errs []string
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", o.mode, o.err))
			state.Quadrants[o.mode] = []model.PuzzlePiece{}
			continue
		}
		state.Quadrants[o.mode] = o.pieces
	}
	if len(errs) == len(model.AllModes) {
		state.Status = model.SessionFailed
	}

	c.logger.Info().
		Str("session_id", state.SessionID).
		Str("puzzle_type", string(puzzleType)).
		Int("pieces", len(state.Pieces())).
		Int("failed_quadrants", len(errs)).
		Str("status", string(state.Status)).
		Msg("puzzle session generated")
	return state, errs
}

// RegenerateQuadrant produces fresh pieces for one quadrant, reusing the
// puzzle's committed question and anchors.
func (c *Coordinator) RegenerateQuadrant(ctx context.Context, req QuadrantRequest) ([]model.PuzzlePiece, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("regenerate quadrant %q: %w", req.Mode, perrors.ErrInvalidInput)
	}
	return c.quadrant(ctx, agents.QuadrantInput{
		Mode:            req.Mode,
		PuzzleType:      req.PuzzleType,
		CentralQuestion: req.CentralQuestion,
		Aim:             req.Aim,
		Anchors:         req.Anchors,
		Fragments:       req.Fragments,
		Existing:        existingFor(req.Existing, req.Mode),
		Hints:           preference.Hints(req.Profile, 0),
		Max:             c.maxPieces,
	}, req.PuzzleID)
}

type quadrantResult struct {
	pieces []model.PuzzlePiece
	err    error
}

// quadrant runs one generator call under the per-quadrant timeout. A result
// arriving after the deadline lands in the buffered channel and is dropped.
func (c *Coordinator) quadrant(ctx context.Context, in agents.QuadrantInput, puzzleID string) ([]model.PuzzlePiece, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan quadrantResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- quadrantResult{err: fmt.Errorf("quadrant generator panicked: %v", r)}
			}
		}()
		pieces, err := c.gen.QuadrantPieces(ctx, in)
		done <- quadrantResult{pieces: pieces, err: err}
	}()

	var res quadrantResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
		if errors.Is(res.err, context.DeadlineExceeded) {
			res.err = fmt.Errorf("after %s: %w", c.timeout, perrors.ErrTimeout)
		}
	}

	if c.observe != nil {
		c.observe(in.Mode, time.Since(start), res.err)
	}
	if res.err != nil {
		c.logger.Warn().Str("mode", string(in.Mode)).Err(res.err).Msg("quadrant generation failed")
		return nil, res.err
	}

	pieces := make([]model.PuzzlePiece, 0, len(res.pieces))
	for _, p := range res.pieces {
		p.PuzzleID = puzzleID
		p.Mode = in.Mode
		pieces = append(pieces, p)
	}
	return pieces, nil
}

func existingFor(pieces []model.PuzzlePiece, mode model.DesignMode) []model.PuzzlePiece {
	var out []model.PuzzlePiece
	for _, p := range pieces {
		if p.Mode == mode && p.Status != model.StatusDiscarded {
			out = append(out, p)
		}
	}
	return out
}
