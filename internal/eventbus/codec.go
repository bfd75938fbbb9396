package eventbus

import (
	"encoding/json"
	"fmt"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
)

// DecodePayload turns a wire payload into the typed payload for t. Unknown
// types decode into a generic map so they can still be routed (and ignored).
func DecodePayload(t Type, raw json.RawMessage) (any, error) {
	var target any
	switch t {
	case FragmentAdded, FragmentUpdated, FragmentDeleted:
		target = &FragmentPayload{}
	case MascotClicked:
		target = &MascotClickedPayload{}
	case PuzzleFinishClicked:
		target = &PuzzleFinishPayload{}
	case PieceCreated, PiecePlaced, PieceEdited, PieceDeleted:
		target = &PiecePayload{}
	case PuzzleSessionStarted:
		target = &SessionStartedPayload{}
	case PuzzleSessionGenerated:
		target = &SessionGeneratedPayload{}
	case PuzzleSessionCompleted:
		target = &SessionCompletedPayload{}
	case AILoading, AISuccess, AIError:
		target = &AIStatusPayload{}
	default:
		m := map[string]any{}
		target = &m
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w: %v", t, perrors.ErrInvalidInput, err)
		}
	}
	return deref(target), nil
}

func deref(v any) any {
	switch p := v.(type) {
	case *FragmentPayload:
		return *p
	case *MascotClickedPayload:
		return *p
	case *PuzzleFinishPayload:
		return *p
	case *PiecePayload:
		return *p
	case *SessionStartedPayload:
		return *p
	case *SessionGeneratedPayload:
		return *p
	case *SessionCompletedPayload:
		return *p
	case *AIStatusPayload:
		return *p
	case *map[string]any:
		return *p
	}
	return v
}
