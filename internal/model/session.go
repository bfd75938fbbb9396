package model

// SessionStatus is the aggregate outcome of a puzzle session fan-out.
type SessionStatus string

const (
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// PuzzleSessionState is one generated puzzle session: a central question and
// up to four quadrants of suggested pieces.
type PuzzleSessionState struct {
	SessionID       string                       `json:"sessionId"`
	PuzzleID        string                       `json:"puzzleId,omitempty"`
	CentralQuestion string                       `json:"centralQuestion"`
	PuzzleType      PuzzleType                   `json:"puzzleType"`
	Anchors         []Anchor                     `json:"anchors"`
	Quadrants       map[DesignMode][]PuzzlePiece `json:"quadrants"`
	Status          SessionStatus                `json:"status"`
}

// Pieces flattens the quadrants in canonical mode order.
func (s PuzzleSessionState) Pieces() []PuzzlePiece {
	var out []PuzzlePiece
	for _, m := range AllModes {
		out = append(out, s.Quadrants[m]...)
	}
	return out
}
