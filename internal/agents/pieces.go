package agents

import (
	"strings"

	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

type pieceOut struct {
	Mode        string   `json:"mode,omitempty"`
	Text        string   `json:"text" validate:"notblank,maxrunes=240"`
	Category    string   `json:"category"`
	FragmentIDs []string `json:"fragmentIds"`
}

// toPieces converts model output into SUGGESTED AI pieces for mode, linking
// only known fragments, dropping duplicates of existing texts and capping the
// count at limit.
func toPieces(outs []pieceOut, mode model.DesignMode, fragments []model.Fragment, existing []model.PuzzlePiece, limit int) []model.PuzzlePiece {
	titles := make(map[string]string, len(fragments))
	for _, f := range fragments {
		titles[f.ID] = f.Title
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[normalize(p.Text)] = true
	}

	var pieces []model.PuzzlePiece
	for _, o := range outs {
		if len(pieces) == limit {
			break
		}
		key := normalize(o.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		var links []model.FragmentLink
		for _, id := range o.FragmentIDs {
			if title, ok := titles[id]; ok {
				links = append(links, model.FragmentLink{FragmentID: id, Title: title})
			}
		}
		pieces = append(pieces, model.PuzzlePiece{
			Mode:          mode,
			Category:      strings.ToLower(strings.TrimSpace(o.Category)),
			Text:          strings.TrimSpace(o.Text),
			FragmentLinks: links,
			Source:        model.SourceAI,
			Status:        model.StatusSuggested,
		})
	}
	return pieces
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
