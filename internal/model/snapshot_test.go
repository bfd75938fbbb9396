package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	s := NewSnapshot(Project{ID: "p1", Title: "Lamp", ProcessAim: "a lamp that remembers"})
	s.Fragments = []Fragment{{ID: "f1", Type: FragmentTypeText, Title: "Glow", Tags: []string{"light"}, Labels: []string{"pz1"}}}
	s.Clusters = []Cluster{{ID: "c1", Theme: "light", FragmentIDs: []string{"f1"}}}
	s.Puzzles = []Puzzle{{ID: "pz1", Type: PuzzleClarify, CentralQuestion: "Why glow?"}}
	s.Anchors = []Anchor{
		{ID: "a1", PuzzleID: "pz1", Type: AnchorStarting, Text: "old"},
		{ID: "a2", PuzzleID: "pz1", Type: AnchorStarting, Text: "new"},
	}
	s.PuzzlePieces = []PuzzlePiece{{ID: "pc1", PuzzleID: "pz1", Mode: ModeForm, AnchorIDs: []string{"a1"}, FragmentLinks: []FragmentLink{{FragmentID: "f1"}}}}
	s.PuzzleSummaries = []PuzzleSummary{{PuzzleID: "pz1", Reasons: []string{"r"}}}
	s.PreferenceProfile["FORM:general"] = PreferenceStats{Placed: 1}
	s.AgentState.Mascot.LastProposal = &MascotProposal{CentralQuestion: "q", PrimaryModes: []DesignMode{ModeForm}}
	return s
}

func TestClone_DeepCopy(t *testing.T) {
	orig := sampleSnapshot()
	clone := orig.Clone()
	require.Empty(t, cmp.Diff(orig, clone))

	clone.Fragments[0].Tags[0] = "mutated"
	clone.Fragments[0].Labels = append(clone.Fragments[0].Labels, "pz2")
	clone.Clusters[0].FragmentIDs[0] = "mutated"
	clone.PuzzlePieces[0].AnchorIDs[0] = "mutated"
	clone.PuzzleSummaries[0].Reasons[0] = "mutated"
	clone.PreferenceProfile["FORM:general"] = PreferenceStats{Placed: 9}
	clone.AgentState.Mascot.LastProposal.PrimaryModes[0] = ModeMotion

	assert.Equal(t, "light", orig.Fragments[0].Tags[0])
	assert.Equal(t, []string{"pz1"}, orig.Fragments[0].Labels)
	assert.Equal(t, "f1", orig.Clusters[0].FragmentIDs[0])
	assert.Equal(t, "a1", orig.PuzzlePieces[0].AnchorIDs[0])
	assert.Equal(t, "r", orig.PuzzleSummaries[0].Reasons[0])
	assert.Equal(t, 1, orig.PreferenceProfile["FORM:general"].Placed)
	assert.Equal(t, ModeForm, orig.AgentState.Mascot.LastProposal.PrimaryModes[0])
}

func TestLatestAnchor(t *testing.T) {
	s := sampleSnapshot()
	a, ok := s.LatestAnchor("pz1", AnchorStarting)
	require.True(t, ok)
	assert.Equal(t, "new", a.Text)

	_, ok = s.LatestAnchor("pz1", AnchorSolution)
	assert.False(t, ok)
}

func TestLookups(t *testing.T) {
	s := sampleSnapshot()

	f, ok := s.Fragment("f1")
	require.True(t, ok)
	f.Tags[0] = "changed"
	assert.Equal(t, "light", s.Fragments[0].Tags[0], "lookup must return a copy")

	_, ok = s.Puzzle("missing")
	assert.False(t, ok)

	assert.Len(t, s.PiecesFor("pz1"), 1)
	assert.Len(t, s.AnchorsFor("pz1"), 2)
	assert.Len(t, s.RecentSummaries(3), 1)
}

func TestParsing(t *testing.T) {
	assert.Equal(t, PuzzleExpand, ParsePuzzleType(" expand "))
	assert.Equal(t, PuzzleClarify, ParsePuzzleType("nonsense"))

	m, err := ParseDesignMode("motion")
	require.NoError(t, err)
	assert.Equal(t, ModeMotion, m)
	_, err = ParseDesignMode("taste")
	assert.Error(t, err)

	assert.Equal(t, "FORM:general", PreferenceKey(ModeForm, ""))
	assert.True(t, SourceAISuggestedUserEdited.AIOriginated())
	assert.False(t, SourceUser.AIOriginated())
}
