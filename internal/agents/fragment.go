package agents

import (
	"context"
	"slices"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// FragmentInsight is the AI summary and tags for one fragment.
type FragmentInsight struct {
	ID      string   `json:"id" validate:"notblank"`
	Summary string   `json:"summary" validate:"maxrunes=400"`
	Tags    []string `json:"tags" validate:"max=12"`
}

// ClusterProposal is a themed group of fragment ids.
type ClusterProposal struct {
	Theme       string   `json:"theme" validate:"notblank,maxrunes=80"`
	FragmentIDs []string `json:"fragmentIds" validate:"min=1"`
}

// FragmentContext is the result of analyzing the canvas.
type FragmentContext struct {
	Fragments []FragmentInsight `json:"fragments" validate:"dive"`
	Clusters  []ClusterProposal `json:"clusters" validate:"dive"`
}

// AnalyzeFragments summarizes, tags and clusters fragments. Insights and
// cluster members that reference unknown fragments are dropped. An empty
// canvas yields an empty result without calling the model.
func (a *Agents) AnalyzeFragments(ctx context.Context, aim string, fragments []model.Fragment) (FragmentContext, error) {
	if len(fragments) == 0 {
		return FragmentContext{}, nil
	}

	b := header(llm.TaskFragmentContext,
		"You help a designer make sense of loose notes on a canvas. Summarize each fragment in one sentence, tag it with 1-4 short keywords, and group related fragments into themed clusters.")
	writeAim(b, aim)
	writeFragments(b, fragments)
	b.WriteString("\nOnly use fragment ids listed above. A cluster needs at least two fragments.\n")
	jsonInstruction(b, `{"fragments":[{"id":"...","summary":"...","tags":["..."]}],"clusters":[{"theme":"...","fragmentIds":["..."]}]}`)

	out, err := run[FragmentContext](ctx, a, llm.TaskFragmentContext, b.String(), fragmentContextSchema, imagesFrom(fragments), 0.3)
	if err != nil {
		return FragmentContext{}, err
	}

	known := make(map[string]bool, len(fragments))
	for _, f := range fragments {
		known[f.ID] = true
	}
	out.Fragments = slices.DeleteFunc(out.Fragments, func(in FragmentInsight) bool { return !known[in.ID] })
	clusters := out.Clusters[:0]
	for _, c := range out.Clusters {
		c.FragmentIDs = slices.DeleteFunc(c.FragmentIDs, func(id string) bool { return !known[id] })
		if len(c.FragmentIDs) > 0 {
			clusters = append(clusters, c)
		}
	}
	out.Clusters = clusters
	return out, nil
}

// ModelClusters converts the proposals into model clusters without ids.
func (c FragmentContext) ModelClusters() []model.Cluster {
	out := make([]model.Cluster, 0, len(c.Clusters))
	for _, p := range c.Clusters {
		out = append(out, model.Cluster{Theme: p.Theme, FragmentIDs: slices.Clone(p.FragmentIDs)})
	}
	return out
}
