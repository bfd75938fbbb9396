package api

import (
	"encoding/json"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/preference"
)

// EventRequest is the body of POST /api/v1/events.
type EventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EventResponse acknowledges an emitted event.
type EventResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// StateResponse is the current snapshot with its history position.
type StateResponse struct {
	Revision uint64          `json:"revision"`
	CanUndo  bool            `json:"canUndo"`
	CanRedo  bool            `json:"canRedo"`
	State    *model.Snapshot `json:"state"`
}

// HistoryResponse answers undo and redo.
type HistoryResponse struct {
	Revision uint64 `json:"revision"`
	CanUndo  bool   `json:"canUndo"`
	CanRedo  bool   `json:"canRedo"`
}

// SyncResponse reports how many pieces a sync wrote.
type SyncResponse struct {
	Synced int `json:"synced"`
}

// PreferencesResponse is the profile with its ranking and prompt hints.
type PreferencesResponse struct {
	Profile model.UserPreferenceProfile `json:"profile"`
	Ranked  []preference.Ranked         `json:"ranked"`
	Hints   []string                    `json:"hints"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
