// Package orchestrator is the only component that calls the AI agents. It
// subscribes to the event bus, debounces fragment bursts, runs each AI flow on
// its own goroutine and writes results back through the context store's
// commands. AI failures become AI_ERROR events; they never reach the emitter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/agents"
	"github.com/p-blackswan/puzzlecanvas/internal/contextstore"
	"github.com/p-blackswan/puzzlecanvas/internal/debounce"
	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/metrics"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/puzzlesession"
)

// DefaultDebounceWindow coalesces fragment edits.
const DefaultDebounceWindow = 500 * time.Millisecond

// Sources reported in AI status events.
const (
	SourceFragmentContext = "fragment_context"
	SourceMascotProposal  = "mascot_proposal"
	SourceMascotSuggest   = "mascot_suggestion"
	SourceSummary         = "puzzle_summary"
	SourceQuadrant        = "quadrant"
	SourceSession         = "puzzle_session"
)

// Agents is the set of LLM steps the orchestrator drives. *agents.Agents
// implements it.
type Agents interface {
	AnalyzeFragments(ctx context.Context, aim string, fragments []model.Fragment) (agents.FragmentContext, error)
	ProposePuzzle(ctx context.Context, in agents.ProposalInput) (model.MascotProposal, error)
	SuggestPuzzle(ctx context.Context, in agents.SuggestionInput) (model.PuzzleSuggestion, error)
	DesignPuzzle(ctx context.Context, in agents.DesignInput) (agents.Design, error)
	Summarize(ctx context.Context, in agents.SummaryInput) (model.PuzzleSummary, error)
}

// Flusher pushes live visual edits into the store before a puzzle is closed.
// The sync adapter implements it.
type Flusher interface {
	SyncAllToDomain() int
}

// Orchestrator routes bus events to AI flows.
type Orchestrator struct {
	store    *contextstore.Store
	bus      *eventbus.Bus
	agents   Agents
	sessions *puzzlesession.Coordinator
	metrics  *metrics.Metrics
	flusher  Flusher
	logger   zerolog.Logger

	window   time.Duration
	debounce *debounce.Timer

	mu       sync.Mutex
	attached bool
	unsub    func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDebounceWindow overrides the fragment debounce window.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithMetrics records handler outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFlusher flushes visual edits before summaries are generated.
func WithFlusher(f Flusher) Option {
	return func(o *Orchestrator) { o.flusher = f }
}

// New creates a detached Orchestrator.
func New(store *contextstore.Store, bus *eventbus.Bus, ag Agents, sessions *puzzlesession.Coordinator, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		bus:      bus,
		agents:   ag,
		sessions: sessions,
		window:   DefaultDebounceWindow,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.debounce = debounce.New(o.window, o.onFragmentsSettled)
	return o
}

// Attach subscribes to the bus. Attaching twice is a no-op.
func (o *Orchestrator) Attach() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attached {
		return
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.unsub = o.bus.Subscribe(o.handle)
	o.attached = true
	o.logger.Info().Dur("debounce", o.window).Msg("orchestrator attached")
}

// Detach unsubscribes, drops any pending debounced analysis and cancels the
// context of in-flight handlers. Use Wait to block until they return.
func (o *Orchestrator) Detach() {
	o.mu.Lock()
	if !o.attached {
		o.mu.Unlock()
		return
	}
	o.attached = false
	unsub, cancel := o.unsub, o.cancel
	o.unsub, o.cancel = nil, nil
	o.mu.Unlock()

	unsub()
	o.debounce.Cancel()
	cancel()
	o.logger.Info().Msg("orchestrator detached")
}

// Attached reports whether the orchestrator is listening.
func (o *Orchestrator) Attached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attached
}

// Wait blocks until every in-flight handler has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// handle runs on the emitting goroutine and must return quickly: AI work is
// handed to spawn.
func (o *Orchestrator) handle(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.FragmentAdded, eventbus.FragmentUpdated, eventbus.FragmentDeleted:
		o.debounce.Schedule()

	case eventbus.MascotClicked:
		p, ok := payloadAs[eventbus.MascotClickedPayload](ev)
		if !ok {
			o.badPayload(ev)
			return
		}
		switch p.Action {
		case eventbus.ActionStartFromMyQuestion:
			o.spawn(SourceMascotProposal, ev, func(ctx context.Context) (string, error) {
				return o.startFromQuestion(ctx, p)
			})
		case eventbus.ActionSuggestPuzzle:
			o.spawn(SourceMascotSuggest, ev, o.suggestPuzzle)
		default:
			o.logger.Debug().Str("action", p.Action).Msg("ignoring mascot action")
		}

	case eventbus.PuzzleFinishClicked:
		p, ok := payloadAs[eventbus.PuzzleFinishPayload](ev)
		if !ok {
			o.badPayload(ev)
			return
		}
		o.spawn(SourceSummary, ev, func(ctx context.Context) (string, error) {
			return o.finishPuzzle(ctx, p)
		})

	case eventbus.PieceCreated:
		p, ok := payloadAs[eventbus.PiecePayload](ev)
		if !ok {
			o.badPayload(ev)
			return
		}
		o.spawn(SourceQuadrant, ev, func(ctx context.Context) (string, error) {
			return o.regenerateQuadrant(ctx, p)
		})

	case eventbus.PuzzleSessionStarted:
		p, ok := payloadAs[eventbus.SessionStartedPayload](ev)
		if !ok {
			o.badPayload(ev)
			return
		}
		o.spawn(SourceSession, ev, func(ctx context.Context) (string, error) {
			return o.runSession(ctx, p)
		})

	case eventbus.PiecePlaced, eventbus.PieceEdited, eventbus.PieceDeleted:
		o.tracePreferences(ev)

	default:
		o.logger.Debug().Str("event_type", string(ev.Type)).Msg("no handler for event")
	}
}

func (o *Orchestrator) onFragmentsSettled() {
	o.spawn(SourceFragmentContext, eventbus.NewEvent(eventbus.FragmentUpdated, eventbus.FragmentPayload{}), o.analyzeFragments)
}

// spawn runs fn on a tracked goroutine bracketed by AI_LOADING and
// AI_SUCCESS or AI_ERROR. Nothing is started once detached.
func (o *Orchestrator) spawn(source string, trigger eventbus.Event, fn func(ctx context.Context) (string, error)) {
	o.mu.Lock()
	if !o.attached {
		o.mu.Unlock()
		o.logger.Debug().Str("source", source).Msg("detached, dropping handler")
		return
	}
	ctx := o.ctx
	o.wg.Add(1)
	o.mu.Unlock()

	o.bus.EmitType(eventbus.AILoading, eventbus.AIStatusPayload{Source: source, Message: "working"})
	go func() {
		defer o.wg.Done()
		start := time.Now()
		var (
			msg string
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panicked: %v", r)
				}
			}()
			msg, err = fn(ctx)
		}()

		log := o.logger.With().Str("source", source).Dur("duration", time.Since(start)).Logger()
		if err != nil {
			log.Warn().Err(err).Msg("ai handler failed")
			if o.metrics != nil {
				o.metrics.RecordError("orchestrator", source)
			}
			o.fail(source, err, trigger)
			return
		}
		log.Debug().Str("result", msg).Msg("ai handler finished")
		o.bus.EmitType(eventbus.AISuccess, eventbus.AIStatusPayload{Source: source, Message: msg})
	}()
}

func (o *Orchestrator) fail(source string, err error, trigger eventbus.Event) {
	p := eventbus.AIStatusPayload{Source: source, Message: err.Error()}
	if recoverable(err) {
		p.Recoverable = true
		p.RetryEventType = trigger.Type
		p.RetryPayload = trigger.Payload
	}
	o.bus.EmitType(eventbus.AIError, p)
}

// recoverable reports whether re-emitting the trigger may succeed.
func recoverable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, perrors.ErrNotFound) || errors.Is(err, perrors.ErrInvalidInput) {
		return false
	}
	var agentErr *agents.Error
	if errors.As(err, &agentErr) {
		return agentErr.Recoverable() || perrors.IsRetryable(agentErr.Err)
	}
	return errors.Is(err, perrors.ErrTimeout) || perrors.IsRetryable(err) || errors.Is(err, errAllQuadrantsFailed)
}

func (o *Orchestrator) badPayload(ev eventbus.Event) {
	o.logger.Warn().
		Str("event_type", string(ev.Type)).
		Str("payload_type", fmt.Sprintf("%T", ev.Payload)).
		Msg("unexpected payload")
}

// payloadAs accepts a payload by value or by pointer.
func payloadAs[T any](ev eventbus.Event) (T, bool) {
	switch p := ev.Payload.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}
