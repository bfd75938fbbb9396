// Package preference folds the piece lifecycle log into per-quadrant
// preference counters and renders them as short prompt hints.
package preference

import (
	"fmt"
	"sort"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// DefaultHintCount is how many keys Hints renders when n <= 0.
const DefaultHintCount = 3

// Aggregate counts lifecycle events per mode:category key. Events are keyed
// through the piece they reference; events for unknown pieces are skipped.
func Aggregate(events []model.PieceEvent, pieces []model.PuzzlePiece) model.UserPreferenceProfile {
	keys := make(map[string]string, len(pieces))
	for _, p := range pieces {
		keys[p.ID] = p.PreferenceKey()
	}

	profile := model.UserPreferenceProfile{}
	for _, ev := range events {
		key, ok := keys[ev.PieceID]
		if !ok {
			continue
		}
		stats := profile[key]
		switch ev.Type {
		case model.PieceEventSuggested:
			stats.Suggested++
		case model.PieceEventPlaced:
			stats.Placed++
		case model.PieceEventEdited:
			stats.Edited++
		case model.PieceEventDiscarded:
			stats.Discarded++
		case model.PieceEventConnected:
			stats.Connected++
		default:
			continue
		}
		profile[key] = stats
	}
	return profile
}

// Ranked is a profile entry with its score.
type Ranked struct {
	Key   string                `json:"key"`
	Stats model.PreferenceStats `json:"stats"`
	Score int                   `json:"score"`
}

// Rank orders profile keys by score, highest first. Ties break on key so the
// result is stable.
func Rank(profile model.UserPreferenceProfile) []Ranked {
	out := make([]Ranked, 0, len(profile))
	for k, s := range profile {
		out = append(out, Ranked{Key: k, Stats: s, Score: s.Score()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Hints renders up to n hint sentences for the top-ranked keys. Keys with no
// placements, connections, edits or discards say nothing about taste and are
// skipped.
func Hints(profile model.UserPreferenceProfile, n int) []string {
	if n <= 0 {
		n = DefaultHintCount
	}
	var hints []string
	for _, r := range Rank(profile) {
		if len(hints) == n {
			break
		}
		if h := hint(r); h != "" {
			hints = append(hints, h)
		}
	}
	return hints
}

func hint(r Ranked) string {
	s := r.Stats
	switch {
	case r.Score > 0 && s.Connected > 0:
		return fmt.Sprintf("user connects %s prompts to other ideas; offer more like them", r.Key)
	case r.Score > 0:
		return fmt.Sprintf("user often keeps %s prompts; lean into them", r.Key)
	case r.Score < 0:
		return fmt.Sprintf("user often discards %s prompts; keep them short", r.Key)
	case s.Edited > 0:
		return fmt.Sprintf("user tends to rewrite %s prompts; leave room for their wording", r.Key)
	}
	return ""
}
