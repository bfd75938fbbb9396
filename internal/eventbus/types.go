// Package eventbus defines the Event type and the synchronous Bus that carries
// it. Every UI-originated stimulus (fragment edits, mascot clicks, piece
// lifecycle) and every AI status notification flows as an Event.
package eventbus

import (
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// Type identifies an event kind.
type Type string

// Type identifiers for the event taxonomy.
const (
	FragmentAdded   Type = "FRAGMENT_ADDED"
	FragmentUpdated Type = "FRAGMENT_UPDATED"
	FragmentDeleted Type = "FRAGMENT_DELETED"

	MascotClicked       Type = "MASCOT_CLICKED"
	PuzzleFinishClicked Type = "PUZZLE_FINISH_CLICKED"

	PieceCreated Type = "PIECE_CREATED"
	PiecePlaced  Type = "PIECE_PLACED"
	PieceEdited  Type = "PIECE_EDITED"
	PieceDeleted Type = "PIECE_DELETED"

	PuzzleSessionStarted   Type = "PUZZLE_SESSION_STARTED"
	PuzzleSessionGenerated Type = "PUZZLE_SESSION_GENERATED"
	PuzzleSessionCompleted Type = "PUZZLE_SESSION_COMPLETED"

	AILoading Type = "AI_LOADING"
	AISuccess Type = "AI_SUCCESS"
	AIError   Type = "AI_ERROR"
)

// Mascot actions carried by MascotClickedPayload.
const (
	ActionStartFromMyQuestion = "start_from_my_question"
	ActionSuggestPuzzle       = "suggest_puzzle"
)

// Event is the unit of dispatch on the Bus.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// FragmentPayload accompanies FRAGMENT_ADDED/UPDATED/DELETED.
type FragmentPayload struct {
	FragmentID string `json:"fragmentId"`
}

// MascotClickedPayload accompanies MASCOT_CLICKED.
type MascotClickedPayload struct {
	Action       string `json:"action"`
	UserQuestion string `json:"userQuestion,omitempty"`
}

// PuzzleFinishPayload accompanies PUZZLE_FINISH_CLICKED.
type PuzzleFinishPayload struct {
	PuzzleID        string              `json:"puzzleId"`
	CentralQuestion string              `json:"centralQuestion"`
	Anchors         []model.Anchor      `json:"anchors"`
	Pieces          []model.PuzzlePiece `json:"pieces"`
	FragmentIDs     []string            `json:"fragmentIds"`
}

// PiecePayload accompanies the PIECE_* lifecycle events.
type PiecePayload struct {
	PieceID  string           `json:"pieceId"`
	PuzzleID string           `json:"puzzleId,omitempty"`
	Mode     model.DesignMode `json:"mode"`
	Category string           `json:"category,omitempty"`
	Text     string           `json:"text,omitempty"`
}

// SessionStartedPayload accompanies PUZZLE_SESSION_STARTED.
type SessionStartedPayload struct {
	PuzzleType      model.PuzzleType `json:"puzzleType"`
	PuzzleID        string           `json:"puzzleId,omitempty"`
	CentralQuestion string           `json:"centralQuestion,omitempty"`
	Anchors         []model.Anchor   `json:"anchors,omitempty"`
}

// SessionGeneratedPayload accompanies PUZZLE_SESSION_GENERATED.
type SessionGeneratedPayload struct {
	SessionState model.PuzzleSessionState `json:"sessionState"`
	Errors       []string                 `json:"errors"`
}

// SessionCompletedPayload accompanies PUZZLE_SESSION_COMPLETED.
type SessionCompletedPayload struct {
	PuzzleID string              `json:"puzzleId"`
	Summary  model.PuzzleSummary `json:"summary"`
}

// AIStatusPayload accompanies AI_LOADING, AI_SUCCESS and AI_ERROR. A
// recoverable error carries the event to re-emit for a retry.
type AIStatusPayload struct {
	Source         string `json:"source"`
	Message        string `json:"message"`
	Recoverable    bool   `json:"recoverable,omitempty"`
	RetryEventType Type   `json:"retryEventType,omitempty"`
	RetryPayload   any    `json:"retryPayload,omitempty"`
}

// NewEvent constructs an Event with a generated ID and current timestamp.
func NewEvent(t Type, payload any) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
