package contextstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

func newTestStore(opts ...Option) *Store {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(model.Project{ID: "proj", Title: "Lamp", ProcessAim: "a lamp that remembers"}, opts...)
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	s := newTestStore()
	initial := s.State()

	const n = 5
	for i := 0; i < n; i++ {
		s.UpsertFragment(model.Fragment{ID: fmt.Sprintf("f%d", i), Content: "note"})
	}
	final := s.State()
	require.Len(t, final.Fragments, n)

	for i := 0; i < n; i++ {
		require.NotNil(t, s.Undo())
	}
	assert.Empty(t, cmp.Diff(initial, s.State()))
	assert.Nil(t, s.Undo(), "undo on empty history is a no-op")

	for i := 0; i < n; i++ {
		require.NotNil(t, s.Redo())
	}
	assert.Empty(t, cmp.Diff(final, s.State()))
	assert.Nil(t, s.Redo())
}

func TestSetStateAfterUndo_ClearsFuture(t *testing.T) {
	s := newTestStore()
	s.UpdateProcessAim("one")
	s.UpdateProcessAim("two")
	s.Undo()
	require.True(t, s.CanRedo())

	s.SetState(func(d *model.Snapshot) { d.Project.Title = "changed" })
	assert.False(t, s.CanRedo())
	assert.Nil(t, s.Redo())
	assert.Equal(t, "one", s.State().Project.ProcessAim)
}

func TestSetState_DoesNotMutatePreviousSnapshot(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "a", Tags: []string{"x"}})
	before := s.State()

	s.SetState(func(d *model.Snapshot) { d.Fragments[0].Tags[0] = "y" })

	assert.Equal(t, "x", before.Fragments[0].Tags[0])
	assert.Equal(t, "y", s.State().Fragments[0].Tags[0])
}

func TestUpsertFragment_Idempotent(t *testing.T) {
	s := newTestStore()
	f := model.Fragment{ID: "f1", Content: "Nostalgic futures in brass", Summary: "brass", Tags: []string{"material"}}

	s.UpsertFragment(f)
	s.UpsertFragment(f)

	st := s.State()
	require.Len(t, st.Fragments, 1)
	assert.Equal(t, "brass", st.Fragments[0].Summary)
	assert.Equal(t, []string{"material"}, st.Fragments[0].Tags)
}

func TestUpsertFragment_PreservesInsightsAndGrowsLabels(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "first", Labels: []string{"pz1"}})
	s.MergeFragmentInsights([]FragmentInsight{{FragmentID: "f1", Summary: "ai summary", Tags: []string{"ai"}}}, nil)

	stored, _ := s.UpsertFragment(model.Fragment{ID: "f1", Content: "second", Labels: []string{"pz2", "pz1"}})

	assert.Equal(t, "second", stored.Content)
	assert.Equal(t, "ai summary", stored.Summary)
	assert.Equal(t, []string{"ai"}, stored.Tags)
	assert.Equal(t, []string{"pz1", "pz2"}, stored.Labels)

	stored, _ = s.UpsertFragment(model.Fragment{ID: "f1", Content: "third", Summary: "user summary"})
	assert.Equal(t, "user summary", stored.Summary)
	assert.Equal(t, []string{"pz1", "pz2"}, stored.Labels)
}

func TestUpsertFragment_Defaults(t *testing.T) {
	s := newTestStore()
	f, _ := s.UpsertFragment(model.Fragment{Content: "\n  A lamp that dims when nobody is looking at it for a very long while\nsecond line"})

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, model.FragmentTypeText, f.Type)
	assert.Equal(t, "A lamp that dims when nobody is looking at it…", f.Title)
	assert.False(t, f.CreatedAt.IsZero())
}

func TestSynthesizeTitle(t *testing.T) {
	assert.Equal(t, "Untitled fragment", SynthesizeTitle("  \n "))
	assert.Equal(t, "short note", SynthesizeTitle("short note"))
	long := "Supercalifragilisticexpialidocious-and-then-some-more-characters"
	assert.Equal(t, long[:maxTitleRunes]+"…", SynthesizeTitle(long))
}

func TestDeleteFragment(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "a"})
	s.UpsertFragment(model.Fragment{ID: "f2", Content: "b"})
	s.ReplaceClusters([]model.Cluster{
		{ID: "c1", Theme: "solo", FragmentIDs: []string{"f1"}},
		{ID: "c2", Theme: "pair", FragmentIDs: []string{"f1", "f2"}},
	})
	depth := s.HistoryLen()

	assert.False(t, s.DeleteFragment("missing"))
	assert.Equal(t, depth, s.HistoryLen(), "unknown id must not commit")

	assert.True(t, s.DeleteFragment("f1"))
	st := s.State()
	require.Len(t, st.Fragments, 1)
	require.Len(t, st.Clusters, 1)
	assert.Equal(t, []string{"f2"}, st.Clusters[0].FragmentIDs)
}

func TestAddPuzzleSummary_Dedup(t *testing.T) {
	s := newTestStore()
	s.AddPuzzleSummary(model.PuzzleSummary{PuzzleID: "pz1", DirectionStatement: "first"})
	s.AddPuzzleSummary(model.PuzzleSummary{PuzzleID: "pz1", DirectionStatement: "second"})

	st := s.State()
	require.Len(t, st.PuzzleSummaries, 1)
	assert.Equal(t, "second", st.PuzzleSummaries[0].DirectionStatement)
}

func TestAddFragmentPuzzleLink_Dedup(t *testing.T) {
	s := newTestStore()
	link := model.FragmentPuzzleLink{FragmentID: "f1", PuzzleID: "pz1", PuzzleType: model.PuzzleClarify}
	s.AddFragmentPuzzleLink(link)
	s.AddFragmentPuzzleLink(link, link)

	assert.Len(t, s.State().FragmentPuzzleLinks, 1)
}

func TestAddPuzzle_TypeImmutable(t *testing.T) {
	s := newTestStore()
	p, _ := s.AddPuzzle(model.Puzzle{Type: model.PuzzleExpand, CentralQuestion: "first"})
	updated, _ := s.AddPuzzle(model.Puzzle{ID: p.ID, Type: model.PuzzleRefine, CentralQuestion: "second"})

	st := s.State()
	require.Len(t, st.Puzzles, 1)
	assert.Equal(t, model.PuzzleExpand, st.Puzzles[0].Type)
	assert.Equal(t, "second", st.Puzzles[0].CentralQuestion)
	assert.Equal(t, model.PuzzleExpand, updated.Type)
}

func TestCreatePuzzleWithContent_SingleCommit(t *testing.T) {
	s := newTestStore()
	depth := s.HistoryLen()

	p, st := s.CreatePuzzleWithContent(
		model.Puzzle{Type: model.PuzzleClarify, CentralQuestion: "What is the lamp for?"},
		[]model.Anchor{{Type: model.AnchorStarting, Text: "why"}, {Type: model.AnchorSolution, Text: "what"}},
		[]model.PuzzlePiece{{Mode: model.ModeForm, Text: "shape?"}, {Mode: model.ModeMotion, Text: "move?"}},
	)

	assert.Equal(t, depth+1, s.HistoryLen())
	require.Len(t, st.Anchors, 2)
	require.Len(t, st.PuzzlePieces, 2)
	for _, a := range st.Anchors {
		assert.Equal(t, p.ID, a.PuzzleID)
	}
	for _, pc := range st.PuzzlePieces {
		assert.Equal(t, p.ID, pc.PuzzleID)
		assert.Equal(t, model.StatusSuggested, pc.Status)
		assert.Equal(t, model.SourceAI, pc.Source)
		assert.Len(t, pc.AnchorIDs, 2)
	}
	require.Len(t, st.PieceEvents, 2)
	assert.Equal(t, model.PieceEventSuggested, st.PieceEvents[0].Type)
}

func TestSuggestPieces(t *testing.T) {
	s := newTestStore()
	pieces, st := s.SuggestPieces([]model.PuzzlePiece{
		{PuzzleID: "pz", Mode: model.ModeForm, Text: "a", Status: model.StatusPlaced},
		{PuzzleID: "pz", Mode: model.ModeForm, Text: "b"},
	})
	assert.Equal(t, 1, s.HistoryLen())
	require.Len(t, pieces, 2)
	for _, p := range st.PuzzlePieces {
		assert.Equal(t, model.StatusSuggested, p.Status)
		assert.NotEmpty(t, p.ID)
	}
	require.Len(t, st.PieceEvents, 2)
	assert.Equal(t, pieces[1].ID, st.PieceEvents[1].PieceID)
}

func TestSetPieceStatus(t *testing.T) {
	s := newTestStore()
	pc, _ := s.UpsertPuzzlePiece(model.PuzzlePiece{PuzzleID: "pz1", Mode: model.ModeForm, Text: "x"})

	assert.True(t, s.SetPieceStatus(pc.ID, model.StatusDiscarded))
	got, ok := s.State().Piece(pc.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusDiscarded, got.Status)
	assert.False(t, s.SetPieceStatus("missing", model.StatusPlaced))
}

func TestPieceLifecycle_SingleCommit(t *testing.T) {
	s := newTestStore()
	pc, _ := s.RecordPieceLifecycle(model.PuzzlePiece{Mode: model.ModeForm, Text: "x", Status: model.StatusPlaced}, model.PieceEventPlaced)
	assert.Equal(t, 1, s.HistoryLen())
	require.Len(t, s.State().PieceEvents, 1)
	assert.Equal(t, pc.ID, s.State().PieceEvents[0].PieceID)

	require.True(t, s.DiscardPiece(pc.ID))
	assert.Equal(t, 2, s.HistoryLen())
	got, _ := s.State().Piece(pc.ID)
	assert.Equal(t, model.StatusDiscarded, got.Status)
	assert.Equal(t, model.PieceEventDiscarded, s.State().PieceEvents[1].Type)

	assert.False(t, s.DiscardPiece("missing"))
	assert.Equal(t, 2, s.HistoryLen())
}

func TestPieceLifecycle_ProfileFollowsUndo(t *testing.T) {
	s := newTestStore()
	rev := s.Revision()

	s.RecordPieceLifecycle(model.PuzzlePiece{ID: "pc1", Mode: model.ModeForm, Category: "shape", Status: model.StatusPlaced}, model.PieceEventPlaced)
	assert.Equal(t, rev+1, s.Revision())
	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, model.PreferenceStats{Placed: 1}, s.State().PreferenceProfile["FORM:shape"])

	require.NotNil(t, s.Undo())
	_, ok := s.State().Piece("pc1")
	assert.False(t, ok)
	assert.Empty(t, s.State().PreferenceProfile)
	assert.False(t, s.CanUndo())
}

func TestSuggestPieces_CountsSuggestions(t *testing.T) {
	s := newTestStore()
	s.SuggestPieces([]model.PuzzlePiece{
		{PuzzleID: "pz", Mode: model.ModeMotion, Category: "rhythm", Text: "a"},
		{PuzzleID: "pz", Mode: model.ModeMotion, Category: "rhythm", Text: "b"},
	})
	assert.Equal(t, 1, s.HistoryLen())
	assert.Equal(t, 2, s.State().PreferenceProfile["MOTION:rhythm"].Suggested)
}

func TestReset_NotUndoable(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "old", Content: "before"})
	require.True(t, s.CanUndo())
	rev := s.Revision()

	var notified int
	s.Subscribe(func() { notified++ })
	snap := s.Reset(func(d *model.Snapshot) {
		d.Project.Title = "Seeded"
		d.Fragments = append(d.Fragments, model.Fragment{ID: "f1", Content: "seed"})
	})

	assert.Equal(t, "Seeded", snap.Project.Title)
	assert.Len(t, s.State().Fragments, 2)
	assert.Equal(t, rev+1, s.Revision())
	assert.Equal(t, 1, notified)
	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.Nil(t, s.Undo())
}

func TestSeed_BaselineState(t *testing.T) {
	s := newTestStore()
	snap := s.Seed(model.Project{Title: "Desk lamp", ProcessAim: "warm evenings"}, []model.Fragment{
		{Content: "Brass hinge\nwith a soft click"},
		{ID: "f2", Title: "Glass", Content: "frosted"},
	})

	assert.Equal(t, "proj", snap.Project.ID)
	assert.Equal(t, "Desk lamp", snap.Project.Title)
	assert.Equal(t, "warm evenings", snap.Project.ProcessAim)
	require.Len(t, snap.Fragments, 2)
	assert.NotEmpty(t, snap.Fragments[0].ID)
	assert.Equal(t, "Brass hinge", snap.Fragments[0].Title)
	assert.Equal(t, model.FragmentTypeText, snap.Fragments[1].Type)
	assert.False(t, s.CanUndo())

	s.Seed(model.Project{}, nil)
	assert.Equal(t, "Desk lamp", s.State().Project.Title, "empty seed title keeps the current one")
}

func TestLabelFragments(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "a"})
	s.LabelFragments([]string{"f1", "ghost"}, "pz1")
	s.LabelFragments([]string{"f1"}, "pz1")

	f, _ := s.State().Fragment("f1")
	assert.Equal(t, []string{"pz1"}, f.Labels)
}

func TestMergeFragmentInsights(t *testing.T) {
	s := newTestStore()
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "a", Title: "A"})
	s.ReplaceClusters([]model.Cluster{{ID: "old", Theme: "old", FragmentIDs: []string{"f1"}}})

	s.MergeFragmentInsights([]FragmentInsight{{FragmentID: "f1", Summary: "sum", Tags: []string{"t"}}, {FragmentID: "ghost", Summary: "x"}}, nil)
	st := s.State()
	assert.Equal(t, "sum", st.Fragments[0].Summary)
	assert.Equal(t, "A", st.Fragments[0].Title)
	assert.Equal(t, "old", st.Clusters[0].ID, "empty cluster result keeps clusters")

	s.MergeFragmentInsights(nil, []model.Cluster{{Theme: "new", FragmentIDs: []string{"f1"}}})
	st = s.State()
	require.Len(t, st.Clusters, 1)
	assert.Equal(t, "new", st.Clusters[0].Theme)
	assert.NotEmpty(t, st.Clusters[0].ID)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	s := newTestStore()
	var order []int
	unsub1 := s.Subscribe(func() { order = append(order, 1) })
	s.Subscribe(func() { panic("listener failure") })
	s.Subscribe(func() { order = append(order, 3) })

	s.UpdateProcessAim("x")
	assert.Equal(t, []int{1, 3}, order)

	unsub1()
	s.Undo()
	assert.Equal(t, []int{1, 3, 3}, order)
}

func TestSubscribe_ReentrantCommit(t *testing.T) {
	s := newTestStore()
	calls := 0
	s.Subscribe(func() {
		calls++
		if s.State().Project.ProcessAim == "outer" {
			s.UpdateProcessAim("inner")
		}
	})

	s.UpdateProcessAim("outer")
	assert.Equal(t, 2, calls)
	assert.Equal(t, "inner", s.State().Project.ProcessAim)
	assert.Equal(t, 2, s.HistoryLen())
}

func TestHistoryLimit(t *testing.T) {
	s := newTestStore(WithHistoryLimit(3))
	for i := 0; i < 10; i++ {
		s.UpdateProcessAim(fmt.Sprint(i))
	}
	assert.Equal(t, 3, s.HistoryLen())
	for s.Undo() != nil {
	}
	assert.Equal(t, "6", s.State().Project.ProcessAim)
}

func TestConcurrentCommits(t *testing.T) {
	s := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.UpsertFragment(model.Fragment{ID: fmt.Sprintf("f%d", i), Content: "c"})
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.State().Fragments, 50)
	assert.Equal(t, uint64(50), s.Revision())
}

func TestCommitObserver(t *testing.T) {
	var commands []string
	s := newTestStore(WithCommitObserver(func(c string) { commands = append(commands, c) }))
	s.UpdateProcessAim("x")
	s.AddPieceEvent(model.PieceEvent{PieceID: "p", Type: model.PieceEventPlaced})
	assert.Equal(t, []string{"update_process_aim", "add_piece_event"}, commands)
}

// ---- persistence ----

type fakeStorage struct {
	mu      sync.Mutex
	saved   *model.Snapshot
	saves   int
	loadErr error
	saveErr error
}

func (f *fakeStorage) Load(context.Context) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.saved.Clone(), nil
}

func (f *fakeStorage) Save(_ context.Context, snap *model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = snap.Clone()
	f.saves++
	return nil
}

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func TestPersistHydrate(t *testing.T) {
	storage := &fakeStorage{}
	s := newTestStore(WithStorage(storage))
	s.UpsertFragment(model.Fragment{ID: "f1", Content: "persist me"})
	s.Persist(context.Background())

	other := newTestStore(WithStorage(storage))
	notified := 0
	other.Subscribe(func() { notified++ })

	require.True(t, other.Hydrate(context.Background()))
	assert.Equal(t, 1, notified)
	assert.Len(t, other.State().Fragments, 1)
	assert.False(t, other.CanUndo(), "hydrate starts a fresh history")
}

func TestPersistHydrate_FailuresAreSwallowed(t *testing.T) {
	storage := &fakeStorage{saveErr: errors.New("disk full"), loadErr: errors.New("corrupt")}
	s := newTestStore(WithStorage(storage))

	assert.NotPanics(t, func() { s.Persist(context.Background()) })
	assert.False(t, s.Hydrate(context.Background()))

	empty := newTestStore(WithStorage(&fakeStorage{}))
	assert.False(t, empty.Hydrate(context.Background()), "nothing saved yet")

	bare := newTestStore()
	assert.False(t, bare.Hydrate(context.Background()))
	bare.Persist(context.Background())
}

func TestAutoPersist(t *testing.T) {
	storage := &fakeStorage{}
	s := newTestStore(WithStorage(storage))
	stop := s.AutoPersist(20 * time.Millisecond)

	for i := 0; i < 5; i++ {
		s.UpdateProcessAim(fmt.Sprint(i))
	}
	assert.Eventually(t, func() bool { return storage.count() == 1 }, time.Second, 5*time.Millisecond)

	s.UpdateProcessAim("last")
	stop()
	assert.Equal(t, 2, storage.count())
	assert.Equal(t, "last", storage.saved.Project.ProcessAim)
}
