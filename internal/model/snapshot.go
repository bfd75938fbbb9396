package model

import (
	"maps"
	"slices"
	"strings"
)

// Snapshot is the whole versioned project document. Every commit produces a
// new Snapshot; none is ever partially updated in place once published.
type Snapshot struct {
	Project             Project               `json:"project"`
	Fragments           []Fragment            `json:"fragments"`
	Clusters            []Cluster             `json:"clusters"`
	Puzzles             []Puzzle              `json:"puzzles"`
	Anchors             []Anchor              `json:"anchors"`
	PuzzlePieces        []PuzzlePiece         `json:"puzzlePieces"`
	PuzzleSummaries     []PuzzleSummary       `json:"puzzleSummaries"`
	PieceEvents         []PieceEvent          `json:"pieceEvents"`
	FragmentPuzzleLinks []FragmentPuzzleLink  `json:"fragmentPuzzleLinks"`
	PreferenceProfile   UserPreferenceProfile `json:"preferenceProfile"`
	AgentState          AgentState            `json:"agentState"`
}

// NewSnapshot returns an empty document for project.
func NewSnapshot(project Project) *Snapshot {
	return &Snapshot{
		Project:           project,
		PreferenceProfile: UserPreferenceProfile{},
	}
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Project:             s.Project,
		Fragments:           make([]Fragment, len(s.Fragments)),
		Clusters:            make([]Cluster, len(s.Clusters)),
		Puzzles:             slices.Clone(s.Puzzles),
		Anchors:             slices.Clone(s.Anchors),
		PuzzlePieces:        make([]PuzzlePiece, len(s.PuzzlePieces)),
		PuzzleSummaries:     make([]PuzzleSummary, len(s.PuzzleSummaries)),
		PieceEvents:         slices.Clone(s.PieceEvents),
		FragmentPuzzleLinks: slices.Clone(s.FragmentPuzzleLinks),
		PreferenceProfile:   maps.Clone(s.PreferenceProfile),
		AgentState:          s.AgentState.clone(),
	}
	for i, f := range s.Fragments {
		out.Fragments[i] = f.Clone()
	}
	for i, c := range s.Clusters {
		c.FragmentIDs = slices.Clone(c.FragmentIDs)
		out.Clusters[i] = c
	}
	for i, p := range s.PuzzlePieces {
		out.PuzzlePieces[i] = p.Clone()
	}
	for i, sum := range s.PuzzleSummaries {
		sum.Reasons = slices.Clone(sum.Reasons)
		sum.OpenQuestions = slices.Clone(sum.OpenQuestions)
		out.PuzzleSummaries[i] = sum
	}
	if out.PreferenceProfile == nil {
		out.PreferenceProfile = UserPreferenceProfile{}
	}
	return out
}

// Clone deep-copies the fragment.
func (f Fragment) Clone() Fragment {
	f.Tags = slices.Clone(f.Tags)
	f.Labels = slices.Clone(f.Labels)
	return f
}

// Clone deep-copies the piece.
func (p PuzzlePiece) Clone() PuzzlePiece {
	p.AnchorIDs = slices.Clone(p.AnchorIDs)
	p.FragmentLinks = slices.Clone(p.FragmentLinks)
	return p
}

func (a AgentState) clone() AgentState {
	if a.Mascot.LastProposal != nil {
		p := *a.Mascot.LastProposal
		p.PrimaryModes = slices.Clone(p.PrimaryModes)
		a.Mascot.LastProposal = &p
	}
	if a.Mascot.LastSuggestion != nil {
		s := *a.Mascot.LastSuggestion
		s.ClusterIDs = slices.Clone(s.ClusterIDs)
		a.Mascot.LastSuggestion = &s
	}
	return a
}

// Fragment returns a copy of the fragment with id.
func (s *Snapshot) Fragment(id string) (Fragment, bool) {
	if i := s.fragmentIndex(id); i >= 0 {
		return s.Fragments[i].Clone(), true
	}
	return Fragment{}, false
}

// FragmentPtr returns a pointer into the snapshot's fragment slice. Only
// valid on a draft being mutated inside a commit.
func (s *Snapshot) FragmentPtr(id string) *Fragment {
	if i := s.fragmentIndex(id); i >= 0 {
		return &s.Fragments[i]
	}
	return nil
}

func (s *Snapshot) fragmentIndex(id string) int {
	return slices.IndexFunc(s.Fragments, func(f Fragment) bool { return f.ID == id })
}

// Puzzle returns the puzzle with id.
func (s *Snapshot) Puzzle(id string) (Puzzle, bool) {
	i := slices.IndexFunc(s.Puzzles, func(p Puzzle) bool { return p.ID == id })
	if i < 0 {
		return Puzzle{}, false
	}
	return s.Puzzles[i], true
}

// Piece returns a copy of the piece with id.
func (s *Snapshot) Piece(id string) (PuzzlePiece, bool) {
	if i := s.pieceIndex(id); i >= 0 {
		return s.PuzzlePieces[i].Clone(), true
	}
	return PuzzlePiece{}, false
}

// PiecePtr returns a pointer into the draft's piece slice.
func (s *Snapshot) PiecePtr(id string) *PuzzlePiece {
	if i := s.pieceIndex(id); i >= 0 {
		return &s.PuzzlePieces[i]
	}
	return nil
}

func (s *Snapshot) pieceIndex(id string) int {
	return slices.IndexFunc(s.PuzzlePieces, func(p PuzzlePiece) bool { return p.ID == id })
}

// PiecesFor returns copies of every piece belonging to puzzleID.
func (s *Snapshot) PiecesFor(puzzleID string) []PuzzlePiece {
	var out []PuzzlePiece
	for _, p := range s.PuzzlePieces {
		if p.PuzzleID == puzzleID {
			out = append(out, p.Clone())
		}
	}
	return out
}

// AnchorsFor returns the anchors of puzzleID in insertion order.
func (s *Snapshot) AnchorsFor(puzzleID string) []Anchor {
	var out []Anchor
	for _, a := range s.Anchors {
		if a.PuzzleID == puzzleID {
			out = append(out, a)
		}
	}
	return out
}

// LatestAnchor returns the canonical (most recently added) anchor of a type.
func (s *Snapshot) LatestAnchor(puzzleID string, t AnchorType) (Anchor, bool) {
	for i := len(s.Anchors) - 1; i >= 0; i-- {
		a := s.Anchors[i]
		if a.PuzzleID == puzzleID && a.Type == t {
			return a, true
		}
	}
	return Anchor{}, false
}

// Summary returns the summary keyed by puzzleID.
func (s *Snapshot) Summary(puzzleID string) (PuzzleSummary, bool) {
	i := slices.IndexFunc(s.PuzzleSummaries, func(p PuzzleSummary) bool { return p.PuzzleID == puzzleID })
	if i < 0 {
		return PuzzleSummary{}, false
	}
	return s.PuzzleSummaries[i], true
}

// RecentSummaries returns up to n summaries, newest first.
func (s *Snapshot) RecentSummaries(n int) []PuzzleSummary {
	out := make([]PuzzleSummary, 0, min(n, len(s.PuzzleSummaries)))
	for i := len(s.PuzzleSummaries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.PuzzleSummaries[i])
	}
	return out
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
