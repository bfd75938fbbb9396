// Package model defines the domain entities held by the context store.
//
// Every value reachable from a Snapshot is owned by that snapshot. The store
// hands out snapshots as read-only values; writers always work on a clone.
package model

import (
	"fmt"
	"time"
)

// FragmentType classifies what a fragment holds.
type FragmentType string

const (
	FragmentTypeText  FragmentType = "TEXT"
	FragmentTypeImage FragmentType = "IMAGE"
	FragmentTypeLink  FragmentType = "LINK"
	FragmentTypeOther FragmentType = "OTHER"
)

// PuzzleType is fixed when a puzzle is created.
type PuzzleType string

const (
	PuzzleClarify PuzzleType = "CLARIFY"
	PuzzleExpand  PuzzleType = "EXPAND"
	PuzzleRefine  PuzzleType = "REFINE"
)

// Valid reports whether t is one of the known puzzle types.
func (t PuzzleType) Valid() bool {
	switch t {
	case PuzzleClarify, PuzzleExpand, PuzzleRefine:
		return true
	}
	return false
}

// ParsePuzzleType normalizes s, falling back to CLARIFY for unknown values.
func ParsePuzzleType(s string) PuzzleType {
	t := PuzzleType(upper(s))
	if t.Valid() {
		return t
	}
	return PuzzleClarify
}

// PuzzleOrigin records who asked for a puzzle.
type PuzzleOrigin string

const (
	OriginUserRequest PuzzleOrigin = "user_request"
	OriginAISuggested PuzzleOrigin = "ai_suggested"
)

// AnchorType distinguishes the "why" and the "what" of a puzzle.
type AnchorType string

const (
	AnchorStarting AnchorType = "STARTING"
	AnchorSolution AnchorType = "SOLUTION"
)

// DesignMode is one of the four quadrant lenses.
type DesignMode string

const (
	ModeForm       DesignMode = "FORM"
	ModeMotion     DesignMode = "MOTION"
	ModeExpression DesignMode = "EXPRESSION"
	ModeFunction   DesignMode = "FUNCTION"
)

// AllModes lists the quadrants in their canonical order.
var AllModes = []DesignMode{ModeForm, ModeMotion, ModeExpression, ModeFunction}

// Valid reports whether m is one of the four quadrants.
func (m DesignMode) Valid() bool {
	switch m {
	case ModeForm, ModeMotion, ModeExpression, ModeFunction:
		return true
	}
	return false
}

// ParseDesignMode normalizes s into a DesignMode.
func ParseDesignMode(s string) (DesignMode, error) {
	m := DesignMode(upper(s))
	if !m.Valid() {
		return "", fmt.Errorf("unknown design mode %q", s)
	}
	return m, nil
}

// PieceSource records who authored a piece.
type PieceSource string

const (
	SourceAI                    PieceSource = "AI"
	SourceUser                  PieceSource = "USER"
	SourceAISuggestedUserEdited PieceSource = "AI_SUGGESTED_USER_EDITED"
)

// AIOriginated reports whether the piece started life as an AI suggestion.
func (s PieceSource) AIOriginated() bool {
	return s == SourceAI || s == SourceAISuggestedUserEdited
}

// PieceStatus is the lifecycle state of a puzzle piece.
type PieceStatus string

const (
	StatusSuggested PieceStatus = "SUGGESTED"
	StatusPlaced    PieceStatus = "PLACED"
	StatusEdited    PieceStatus = "EDITED"
	StatusDiscarded PieceStatus = "DISCARDED"
	StatusConnected PieceStatus = "CONNECTED"
)

// PieceEventType mirrors PieceStatus for the lifecycle log.
type PieceEventType string

const (
	PieceEventSuggested PieceEventType = "SUGGESTED"
	PieceEventPlaced    PieceEventType = "PLACED"
	PieceEventEdited    PieceEventType = "EDITED"
	PieceEventDiscarded PieceEventType = "DISCARDED"
	PieceEventConnected PieceEventType = "CONNECTED"
)

// Project is the long-lived container the canvas belongs to.
type Project struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title" yaml:"title"`
	ProcessAim string `json:"processAim" yaml:"processAim"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is a canvas extent.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Fragment is an atomic user-placed note, image or link.
type Fragment struct {
	ID        string       `json:"id" yaml:"id"`
	Type      FragmentType `json:"type" yaml:"type"`
	Title     string       `json:"title,omitempty" yaml:"title"`
	Content   string       `json:"content" yaml:"content"`
	Position  Position     `json:"position" yaml:"position"`
	Size      Size         `json:"size" yaml:"size"`
	Summary   string       `json:"summary,omitempty" yaml:"summary"`
	Tags      []string     `json:"tags,omitempty" yaml:"tags"`
	Labels    []string     `json:"labels,omitempty" yaml:"labels"`
	CreatedAt time.Time    `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time    `json:"updatedAt" yaml:"-"`
}

// Cluster is an AI-derived grouping of fragments.
type Cluster struct {
	ID          string   `json:"id"`
	Theme       string   `json:"theme"`
	FragmentIDs []string `json:"fragmentIds"`
}

// Puzzle is a focused session around one central question.
type Puzzle struct {
	ID              string       `json:"id"`
	CentralQuestion string       `json:"centralQuestion"`
	Type            PuzzleType   `json:"type"`
	CreatedFrom     PuzzleOrigin `json:"createdFrom"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Anchor is a STARTING or SOLUTION note attached to a puzzle.
type Anchor struct {
	ID       string     `json:"id"`
	PuzzleID string     `json:"puzzleId"`
	Type     AnchorType `json:"type"`
	Text     string     `json:"text"`
}

// FragmentLink ties a piece back to a fragment that inspired it.
type FragmentLink struct {
	FragmentID string `json:"fragmentId"`
	Title      string `json:"title,omitempty"`
}

// PuzzlePiece is a single prompt or answer placed within a quadrant.
type PuzzlePiece struct {
	ID             string         `json:"id"`
	PuzzleID       string         `json:"puzzleId"`
	Mode           DesignMode     `json:"mode"`
	Category       string         `json:"category,omitempty"`
	Text           string         `json:"text"`
	UserAnnotation string         `json:"userAnnotation,omitempty"`
	AnchorIDs      []string       `json:"anchorIds,omitempty"`
	FragmentLinks  []FragmentLink `json:"fragmentLinks,omitempty"`
	Source         PieceSource    `json:"source"`
	Status         PieceStatus    `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// PreferenceKey is the aggregator key for the piece.
func (p PuzzlePiece) PreferenceKey() string {
	return PreferenceKey(p.Mode, p.Category)
}

// PuzzleSummary is the closing statement of a finished puzzle.
type PuzzleSummary struct {
	PuzzleID           string    `json:"puzzleId"`
	DirectionStatement string    `json:"directionStatement"`
	Reasons            []string  `json:"reasons,omitempty"`
	OpenQuestions      []string  `json:"openQuestions,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// PieceEvent is an append-only lifecycle log entry.
type PieceEvent struct {
	ID        string         `json:"id"`
	PieceID   string         `json:"pieceId"`
	Type      PieceEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
}

// FragmentPuzzleLink records that a fragment contributed to a puzzle.
type FragmentPuzzleLink struct {
	FragmentID string     `json:"fragmentId"`
	PuzzleID   string     `json:"puzzleId"`
	PuzzleType PuzzleType `json:"puzzleType"`
	LinkedAt   time.Time  `json:"linkedAt"`
}

// PreferenceStats counts lifecycle events for one mode:category key.
type PreferenceStats struct {
	Suggested int `json:"suggested"`
	Placed    int `json:"placed"`
	Edited    int `json:"edited"`
	Discarded int `json:"discarded"`
	Connected int `json:"connected"`
}

// Score ranks how well a key resonates with the user.
func (s PreferenceStats) Score() int {
	return s.Placed + s.Connected - s.Discarded
}

// UserPreferenceProfile maps mode:category keys to counters.
type UserPreferenceProfile map[string]PreferenceStats

// PreferenceKey builds the profile key for a mode and category.
func PreferenceKey(mode DesignMode, category string) string {
	if category == "" {
		category = "general"
	}
	return string(mode) + ":" + category
}

// MascotProposal is what the mascot offers after a user question.
type MascotProposal struct {
	UserQuestion    string       `json:"userQuestion,omitempty"`
	PuzzleType      PuzzleType   `json:"puzzleType"`
	CentralQuestion string       `json:"centralQuestion"`
	Rationale       string       `json:"rationale,omitempty"`
	PrimaryModes    []DesignMode `json:"primaryModes,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// PuzzleSuggestion is what the mascot offers unprompted, from clusters.
type PuzzleSuggestion struct {
	ShouldSuggest   bool       `json:"shouldSuggest"`
	PuzzleType      PuzzleType `json:"puzzleType"`
	CentralQuestion string     `json:"centralQuestion"`
	Rationale       string     `json:"rationale,omitempty"`
	ClusterIDs      []string   `json:"clusterIds,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// MascotState tracks onboarding and reflection flags.
type MascotState struct {
	HasShownOnboarding bool              `json:"hasShownOnboarding"`
	LastReflectionAt   time.Time         `json:"lastReflectionAt,omitempty"`
	LastProposal       *MascotProposal   `json:"lastProposal,omitempty"`
	LastSuggestion     *PuzzleSuggestion `json:"lastSuggestion,omitempty"`
}

// AgentState groups per-agent bookkeeping.
type AgentState struct {
	Mascot MascotState `json:"mascot"`
}
