package contextstore

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
	"github.com/p-blackswan/puzzlecanvas/internal/preference"
)

const maxTitleRunes = 48

// FragmentInsight is the AI-derived part of a fragment.
type FragmentInsight struct {
	FragmentID string
	Summary    string
	Tags       []string
}

// SynthesizeTitle derives a short title from fragment content: the first
// non-empty line, cut at a word boundary.
func SynthesizeTitle(content string) string {
	line := ""
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if line == "" {
		return "Untitled fragment"
	}
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	var b strings.Builder
	for _, w := range strings.Fields(line) {
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(w)+1 > maxTitleRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() == 0 {
		r := []rune(line)
		return string(r[:maxTitleRunes]) + "…"
	}
	return b.String() + "…"
}

// UpsertFragment inserts or replaces a fragment. A missing id is generated, a
// missing title is synthesized from content, labels only ever grow, and the
// existing AI summary and tags survive unless f supplies non-empty ones.
func (s *Store) UpsertFragment(f model.Fragment) (model.Fragment, *model.Snapshot) {
	f = normalizeFragment(f)
	now := s.now()
	var stored model.Fragment
	snap := s.commit("upsert_fragment", func(d *model.Snapshot) {
		stored = upsertFragment(d, f, now)
	})
	return stored, snap
}

// Seed installs project metadata and fragments as the baseline state through
// Reset. Empty title and aim keep the current values. Fragments get the same
// normalization as UpsertFragment.
func (s *Store) Seed(project model.Project, fragments []model.Fragment) *model.Snapshot {
	now := s.now()
	return s.Reset(func(d *model.Snapshot) {
		if strings.TrimSpace(project.Title) != "" {
			d.Project.Title = project.Title
		}
		if strings.TrimSpace(project.ProcessAim) != "" {
			d.Project.ProcessAim = project.ProcessAim
		}
		for _, f := range fragments {
			upsertFragment(d, normalizeFragment(f), now)
		}
	})
}

func normalizeFragment(f model.Fragment) model.Fragment {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if strings.TrimSpace(f.Title) == "" {
		f.Title = SynthesizeTitle(f.Content)
	}
	if f.Type == "" {
		f.Type = model.FragmentTypeText
	}
	return f
}

func upsertFragment(d *model.Snapshot, f model.Fragment, now time.Time) model.Fragment {
	next := f.Clone()
	next.UpdatedAt = now
	if existing := d.FragmentPtr(f.ID); existing != nil {
		next.CreatedAt = existing.CreatedAt
		if strings.TrimSpace(next.Summary) == "" {
			next.Summary = existing.Summary
		}
		if len(next.Tags) == 0 {
			next.Tags = slices.Clone(existing.Tags)
		}
		next.Labels = union(existing.Labels, next.Labels)
		*existing = next
	} else {
		if next.CreatedAt.IsZero() {
			next.CreatedAt = now
		}
		next.Labels = union(nil, next.Labels)
		d.Fragments = append(d.Fragments, next)
	}
	return next.Clone()
}

// DeleteFragment removes a fragment and its cluster memberships. Deleting an
// unknown id does not commit.
func (s *Store) DeleteFragment(id string) bool {
	if _, ok := s.State().Fragment(id); !ok {
		return false
	}
	s.commit("delete_fragment", func(d *model.Snapshot) {
		d.Fragments = slices.DeleteFunc(d.Fragments, func(f model.Fragment) bool { return f.ID == id })
		clusters := d.Clusters[:0]
		for _, c := range d.Clusters {
			c.FragmentIDs = slices.DeleteFunc(c.FragmentIDs, func(fid string) bool { return fid == id })
			if len(c.FragmentIDs) > 0 {
				clusters = append(clusters, c)
			}
		}
		d.Clusters = clusters
	})
	return true
}

// AddPuzzle records a puzzle. Re-adding an id replaces it (last write wins)
// except for its type, which never changes after creation.
func (s *Store) AddPuzzle(p model.Puzzle) (model.Puzzle, *model.Snapshot) {
	p = s.preparePuzzle(p)
	snap := s.commit("add_puzzle", func(d *model.Snapshot) {
		p = upsertPuzzle(d, p)
	})
	return p, snap
}

func (s *Store) preparePuzzle(p model.Puzzle) model.Puzzle {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if !p.Type.Valid() {
		p.Type = model.PuzzleClarify
	}
	if p.CreatedFrom == "" {
		p.CreatedFrom = model.OriginUserRequest
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	return p
}

func upsertPuzzle(d *model.Snapshot, p model.Puzzle) model.Puzzle {
	for i, existing := range d.Puzzles {
		if existing.ID == p.ID {
			p.Type = existing.Type
			p.CreatedAt = existing.CreatedAt
			d.Puzzles[i] = p
			return p
		}
	}
	d.Puzzles = append(d.Puzzles, p)
	return p
}

// AddAnchors appends anchors. Several of one type may exist; the latest is canonical.
func (s *Store) AddAnchors(anchors ...model.Anchor) *model.Snapshot {
	for i := range anchors {
		if anchors[i].ID == "" {
			anchors[i].ID = uuid.NewString()
		}
	}
	return s.commit("add_anchors", func(d *model.Snapshot) {
		d.Anchors = append(d.Anchors, anchors...)
	})
}

// CreatePuzzleWithContent creates a puzzle together with its anchors and seed
// pieces in a single commit. Anchors and pieces are bound to the puzzle; a
// piece without anchor ids is linked to every new anchor. Seed pieces still
// SUGGESTED get a SUGGESTED lifecycle event.
func (s *Store) CreatePuzzleWithContent(p model.Puzzle, anchors []model.Anchor, pieces []model.PuzzlePiece) (model.Puzzle, *model.Snapshot) {
	p = s.preparePuzzle(p)
	anchors = slices.Clone(anchors)
	anchorIDs := make([]string, 0, len(anchors))
	for i := range anchors {
		if anchors[i].ID == "" {
			anchors[i].ID = uuid.NewString()
		}
		anchors[i].PuzzleID = p.ID
		anchorIDs = append(anchorIDs, anchors[i].ID)
	}
	prepared := make([]model.PuzzlePiece, len(pieces))
	for i, pc := range pieces {
		pc = s.preparePiece(pc.Clone())
		pc.PuzzleID = p.ID
		if len(pc.AnchorIDs) == 0 {
			pc.AnchorIDs = slices.Clone(anchorIDs)
		}
		prepared[i] = pc
	}
	events := suggestedEvents(prepared)
	snap := s.commit("create_puzzle", func(d *model.Snapshot) {
		p = upsertPuzzle(d, p)
		d.Anchors = append(d.Anchors, anchors...)
		for _, pc := range prepared {
			upsertPiece(d, pc)
		}
		d.PieceEvents = append(d.PieceEvents, events...)
		refreshProfile(d)
	})
	return p, snap
}

// SuggestPieces adds AI suggestions to existing puzzles in one commit,
// logging a SUGGESTED event for each.
func (s *Store) SuggestPieces(pieces []model.PuzzlePiece) ([]model.PuzzlePiece, *model.Snapshot) {
	prepared := make([]model.PuzzlePiece, len(pieces))
	for i, p := range pieces {
		p = p.Clone()
		p.Status = model.StatusSuggested
		prepared[i] = s.preparePiece(p)
	}
	events := suggestedEvents(prepared)
	snap := s.commit("suggest_pieces", func(d *model.Snapshot) {
		for _, p := range prepared {
			upsertPiece(d, p)
		}
		d.PieceEvents = append(d.PieceEvents, events...)
		refreshProfile(d)
	})
	return prepared, snap
}

func suggestedEvents(pieces []model.PuzzlePiece) []model.PieceEvent {
	var out []model.PieceEvent
	for _, p := range pieces {
		if p.Status == model.StatusSuggested {
			out = append(out, model.PieceEvent{
				ID:        uuid.NewString(),
				PieceID:   p.ID,
				Type:      model.PieceEventSuggested,
				Timestamp: p.CreatedAt,
			})
		}
	}
	return out
}

func (s *Store) preparePiece(p model.PuzzlePiece) model.PuzzlePiece {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Source == "" {
		p.Source = model.SourceAI
	}
	if p.Status == "" {
		p.Status = model.StatusSuggested
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return p
}

// refreshProfile recomputes the derived preference profile inside the same
// draft as the piece change, so one user action stays one undo step.
func refreshProfile(d *model.Snapshot) {
	d.PreferenceProfile = preference.Aggregate(d.PieceEvents, d.PuzzlePieces)
}

func upsertPiece(d *model.Snapshot, p model.PuzzlePiece) {
	if existing := d.PiecePtr(p.ID); existing != nil {
		p.CreatedAt = existing.CreatedAt
		*existing = p
		return
	}
	d.PuzzlePieces = append(d.PuzzlePieces, p)
}

// UpsertPuzzlePiece inserts or replaces a piece by id.
func (s *Store) UpsertPuzzlePiece(p model.PuzzlePiece) (model.PuzzlePiece, *model.Snapshot) {
	p = s.preparePiece(p.Clone())
	snap := s.commit("upsert_piece", func(d *model.Snapshot) {
		upsertPiece(d, p)
		refreshProfile(d)
	})
	return p, snap
}

// UpsertPuzzlePieces inserts or replaces several pieces in one commit.
func (s *Store) UpsertPuzzlePieces(pieces []model.PuzzlePiece) ([]model.PuzzlePiece, *model.Snapshot) {
	prepared := make([]model.PuzzlePiece, len(pieces))
	for i, p := range pieces {
		prepared[i] = s.preparePiece(p.Clone())
	}
	snap := s.commit("upsert_pieces", func(d *model.Snapshot) {
		for _, p := range prepared {
			upsertPiece(d, p)
		}
		refreshProfile(d)
	})
	return prepared, snap
}

// SetPieceStatus changes a piece's lifecycle status. Unknown ids do not commit.
func (s *Store) SetPieceStatus(id string, status model.PieceStatus) bool {
	if _, ok := s.State().Piece(id); !ok {
		return false
	}
	now := s.now()
	s.commit("set_piece_status", func(d *model.Snapshot) {
		if p := d.PiecePtr(id); p != nil {
			p.Status = status
			p.UpdatedAt = now
		}
	})
	return true
}

// AddPuzzleSummary upserts the summary keyed by its puzzle id.
func (s *Store) AddPuzzleSummary(sum model.PuzzleSummary) *model.Snapshot {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now()
	}
	sum.Reasons = slices.Clone(sum.Reasons)
	sum.OpenQuestions = slices.Clone(sum.OpenQuestions)
	return s.commit("add_puzzle_summary", func(d *model.Snapshot) {
		d.PuzzleSummaries = slices.DeleteFunc(d.PuzzleSummaries, func(existing model.PuzzleSummary) bool {
			return existing.PuzzleID == sum.PuzzleID
		})
		d.PuzzleSummaries = append(d.PuzzleSummaries, sum)
	})
}

// AddPieceEvent appends to the write-once lifecycle log.
func (s *Store) AddPieceEvent(ev model.PieceEvent) *model.Snapshot {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	return s.commit("add_piece_event", func(d *model.Snapshot) {
		d.PieceEvents = append(d.PieceEvents, ev)
		refreshProfile(d)
	})
}

// LabelFragments adds puzzleID to the label set of every listed fragment.
func (s *Store) LabelFragments(fragmentIDs []string, puzzleID string) *model.Snapshot {
	return s.commit("label_fragments", func(d *model.Snapshot) {
		for _, id := range fragmentIDs {
			if f := d.FragmentPtr(id); f != nil && !slices.Contains(f.Labels, puzzleID) {
				f.Labels = append(f.Labels, puzzleID)
			}
		}
	})
}

// AddFragmentPuzzleLink appends links, skipping (fragment, puzzle) pairs that
// already exist.
func (s *Store) AddFragmentPuzzleLink(links ...model.FragmentPuzzleLink) *model.Snapshot {
	now := s.now()
	return s.commit("add_fragment_puzzle_link", func(d *model.Snapshot) {
		for _, l := range links {
			dup := slices.ContainsFunc(d.FragmentPuzzleLinks, func(e model.FragmentPuzzleLink) bool {
				return e.FragmentID == l.FragmentID && e.PuzzleID == l.PuzzleID
			})
			if dup {
				continue
			}
			if l.LinkedAt.IsZero() {
				l.LinkedAt = now
			}
			d.FragmentPuzzleLinks = append(d.FragmentPuzzleLinks, l)
		}
	})
}

// UpdateProcessAim replaces the project's long-horizon aim.
func (s *Store) UpdateProcessAim(aim string) *model.Snapshot {
	return s.commit("update_process_aim", func(d *model.Snapshot) {
		d.Project.ProcessAim = aim
	})
}

// SetPreferenceProfile replaces the preference profile.
func (s *Store) SetPreferenceProfile(p model.UserPreferenceProfile) *model.Snapshot {
	clone := make(model.UserPreferenceProfile, len(p))
	for k, v := range p {
		clone[k] = v
	}
	return s.commit("set_preference_profile", func(d *model.Snapshot) {
		d.PreferenceProfile = clone
	})
}

// ReplaceClusters swaps the cluster set wholesale.
func (s *Store) ReplaceClusters(clusters []model.Cluster) *model.Snapshot {
	next := cloneClusters(clusters)
	return s.commit("replace_clusters", func(d *model.Snapshot) {
		d.Clusters = next
	})
}

// MergeFragmentInsights writes AI summaries and tags onto matching fragments
// and, when clusters is non-empty, replaces the cluster set. Only summary and
// tags are touched; unknown fragment ids are ignored.
func (s *Store) MergeFragmentInsights(insights []FragmentInsight, clusters []model.Cluster) *model.Snapshot {
	next := cloneClusters(clusters)
	return s.commit("merge_fragment_insights", func(d *model.Snapshot) {
		for _, in := range insights {
			f := d.FragmentPtr(in.FragmentID)
			if f == nil {
				continue
			}
			if strings.TrimSpace(in.Summary) != "" {
				f.Summary = in.Summary
			}
			if len(in.Tags) > 0 {
				f.Tags = slices.Clone(in.Tags)
			}
		}
		if len(next) > 0 {
			d.Clusters = next
		}
	})
}

// SetMascotProposal stores the mascot's latest proposal.
func (s *Store) SetMascotProposal(p model.MascotProposal) *model.Snapshot {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.PrimaryModes = slices.Clone(p.PrimaryModes)
	return s.commit("set_mascot_proposal", func(d *model.Snapshot) {
		d.AgentState.Mascot.LastProposal = &p
		d.AgentState.Mascot.LastReflectionAt = p.CreatedAt
	})
}

// SetMascotSuggestion stores the mascot's latest unprompted suggestion.
func (s *Store) SetMascotSuggestion(sg model.PuzzleSuggestion) *model.Snapshot {
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = s.now()
	}
	sg.ClusterIDs = slices.Clone(sg.ClusterIDs)
	return s.commit("set_mascot_suggestion", func(d *model.Snapshot) {
		d.AgentState.Mascot.LastSuggestion = &sg
		d.AgentState.Mascot.LastReflectionAt = sg.CreatedAt
	})
}

// MarkOnboardingShown flips the mascot onboarding flag.
func (s *Store) MarkOnboardingShown() *model.Snapshot {
	return s.commit("mark_onboarding_shown", func(d *model.Snapshot) {
		d.AgentState.Mascot.HasShownOnboarding = true
	})
}

func cloneClusters(in []model.Cluster) []model.Cluster {
	out := make([]model.Cluster, 0, len(in))
	for _, c := range in {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.FragmentIDs = slices.Clone(c.FragmentIDs)
		out = append(out, c)
	}
	return out
}

func union(base, extra []string) []string {
	out := slices.Clone(base)
	for _, v := range extra {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// RecordPieceLifecycle upserts p, appends the matching lifecycle event and
// refreshes the preference profile in one commit, so a single user action is
// a single undo step.
func (s *Store) RecordPieceLifecycle(p model.PuzzlePiece, ev model.PieceEventType) (model.PuzzlePiece, *model.Snapshot) {
	p = s.preparePiece(p.Clone())
	event := model.PieceEvent{ID: uuid.NewString(), PieceID: p.ID, Type: ev, Timestamp: p.UpdatedAt}
	snap := s.commit("record_piece_lifecycle", func(d *model.Snapshot) {
		upsertPiece(d, p)
		d.PieceEvents = append(d.PieceEvents, event)
		refreshProfile(d)
	})
	return p, snap
}

// DiscardPiece marks a piece DISCARDED and logs the event in one commit.
// Pieces are never deleted. Unknown ids do not commit.
func (s *Store) DiscardPiece(id string) bool {
	if _, ok := s.State().Piece(id); !ok {
		return false
	}
	now := s.now()
	event := model.PieceEvent{ID: uuid.NewString(), PieceID: id, Type: model.PieceEventDiscarded, Timestamp: now}
	s.commit("discard_piece", func(d *model.Snapshot) {
		if p := d.PiecePtr(id); p != nil {
			p.Status = model.StatusDiscarded
			p.UpdatedAt = now
		}
		d.PieceEvents = append(d.PieceEvents, event)
		refreshProfile(d)
	})
	return true
}
