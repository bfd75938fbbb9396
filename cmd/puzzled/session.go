package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/puzzlecanvas/internal/eventbus"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/puzzlesession"
)

var (
	sessionQuestion string
	sessionType     string
	sessionCommit   bool

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Generate one four-quadrant puzzle session and print it as JSON",
		Long: `Generates a puzzle session from the stored (or seeded) canvas and
prints the session state with any per-quadrant errors.

With --commit the session goes through the event bus like a canvas-started
session: the puzzle is written to the context store and persisted.`,
		RunE: runSession,
	}
)

type sessionOutput struct {
	Session model.PuzzleSessionState `json:"session"`
	Errors  []string                 `json:"errors"`
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background(), logger)

	puzzleType := model.ParsePuzzleType(sessionType)

	var out sessionOutput
	if sessionCommit {
		out, err = runCommittedSession(a, puzzleType)
		if err != nil {
			return err
		}
	} else {
		snap := a.store.State()
		state, errs := a.sessions.Run(ctx, puzzlesession.SessionRequest{
			PuzzleType:      puzzleType,
			CentralQuestion: sessionQuestion,
			Aim:             snap.Project.ProcessAim,
			Fragments:       snap.Fragments,
			Profile:         snap.PreferenceProfile,
		})
		out = sessionOutput{Session: state, Errors: errs}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if out.Session.Status == model.SessionFailed {
		return fmt.Errorf("session failed: every quadrant errored")
	}
	return nil
}

// runCommittedSession emits PUZZLE_SESSION_STARTED and collects the
// PUZZLE_SESSION_GENERATED answer once the orchestrator has committed it.
func runCommittedSession(a *app, puzzleType model.PuzzleType) (sessionOutput, error) {
	var out sessionOutput
	generated := make(chan eventbus.SessionGeneratedPayload, 1)
	unsub := a.bus.Subscribe(func(ev eventbus.Event) {
		if ev.Type != eventbus.PuzzleSessionGenerated {
			return
		}
		if p, ok := ev.Payload.(eventbus.SessionGeneratedPayload); ok {
			select {
			case generated <- p:
			default:
			}
		}
	})
	defer unsub()

	a.attach()
	a.bus.EmitType(eventbus.PuzzleSessionStarted, eventbus.SessionStartedPayload{
		PuzzleType:      puzzleType,
		CentralQuestion: sessionQuestion,
	})
	a.orch.Wait()

	select {
	case p := <-generated:
		out.Session, out.Errors = p.SessionState, p.Errors
		return out, nil
	default:
		return out, fmt.Errorf("session produced no result")
	}
}
