// Package agents holds the LLM-backed steps the orchestrator and the puzzle
// session coordinator call: fragment analysis, mascot proposals and
// suggestions, puzzle design, quadrant pieces, central questions and
// summaries. Each step renders a prompt, asks for JSON and validates it.
package agents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

const (
	// DefaultMaxPieces caps pieces per quadrant.
	DefaultMaxPieces = 5
	// maxContextFragments bounds how many fragments a prompt lists.
	maxContextFragments = 24
	maxImages           = 4
	maxFragmentChars    = 400
)

// Agents runs the LLM steps against one client.
type Agents struct {
	client    llm.Client
	logger    zerolog.Logger
	maxPieces int
}

// Option configures Agents.
type Option func(*Agents)

// WithMaxPieces caps how many pieces a quadrant or design call may return.
func WithMaxPieces(n int) Option {
	return func(a *Agents) {
		if n > 0 {
			a.maxPieces = n
		}
	}
}

// New creates the agent set.
func New(client llm.Client, logger zerolog.Logger, opts ...Option) *Agents {
	a := &Agents{
		client:    client,
		logger:    logger.With().Str("component", "agents").Logger(),
		maxPieces: DefaultMaxPieces,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Client returns the underlying LLM client.
func (a *Agents) Client() llm.Client { return a.client }

// MaxPieces returns the per-quadrant cap.
func (a *Agents) MaxPieces() int { return a.maxPieces }

// Error is returned when a step produced no usable output.
type Error struct {
	Task   string
	Reason llm.Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Task, e.Reason)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Task, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether re-running the step may succeed.
func (e *Error) Recoverable() bool {
	switch e.Reason {
	case llm.ReasonCall, llm.ReasonParse, llm.ReasonSchema:
		return true
	}
	return false
}

func run[T any](ctx context.Context, a *Agents, task, prompt string, schema json.RawMessage, images []llm.Image, temperature float32) (T, error) {
	r := llm.StructuredWithImages[T](ctx, a.client, prompt, images, schema,
		llm.WithTask(task), llm.WithTemperature(temperature))
	if !r.OK {
		a.logger.Warn().Str("task", task).Str("reason", string(r.Reason)).Err(r.Err).Msg("agent step failed")
		var zero T
		return zero, &Error{Task: task, Reason: r.Reason, Err: r.Err}
	}
	return r.Value, nil
}

// ---- shared prompt rendering ----

func header(task, role string) *strings.Builder {
	var b strings.Builder
	b.WriteString(llm.Marker(task))
	b.WriteString("\n")
	b.WriteString(role)
	b.WriteString("\n")
	return &b
}

func writeAim(b *strings.Builder, aim string) {
	if aim = strings.TrimSpace(aim); aim != "" {
		fmt.Fprintf(b, "\nProject aim: %s\n", aim)
	}
}

func writeFragments(b *strings.Builder, fragments []model.Fragment) {
	if len(fragments) == 0 {
		b.WriteString("\n[No fragments on the canvas yet]\n")
		return
	}
	b.WriteString("\n[Fragments]\n")
	for i, f := range fragments {
		if i == maxContextFragments {
			fmt.Fprintf(b, "... and %d more\n", len(fragments)-i)
			break
		}
		fmt.Fprintf(b, "- %s %q (%s)", llm.FragmentRef(f.ID), f.Title, f.Type)
		if f.Type != model.FragmentTypeImage {
			fmt.Fprintf(b, ": %s", truncate(f.Content, maxFragmentChars))
		}
		if f.Summary != "" {
			fmt.Fprintf(b, "\n  summary: %s", f.Summary)
		}
		if len(f.Tags) > 0 {
			fmt.Fprintf(b, "\n  tags: %s", strings.Join(f.Tags, ", "))
		}
		b.WriteString("\n")
	}
}

func writeAnchors(b *strings.Builder, anchors []model.Anchor) {
	for _, t := range []model.AnchorType{model.AnchorStarting, model.AnchorSolution} {
		var latest *model.Anchor
		for i := range anchors {
			if anchors[i].Type == t {
				latest = &anchors[i]
			}
		}
		if latest != nil {
			fmt.Fprintf(b, "%s anchor: %s\n", strings.ToLower(string(t)), latest.Text)
		}
	}
}

func writeHints(b *strings.Builder, hints []string) {
	if len(hints) == 0 {
		return
	}
	b.WriteString("\n[What this user tends to like]\n")
	for _, h := range hints {
		fmt.Fprintf(b, "- %s\n", h)
	}
}

// imagesFrom decodes data-URL image fragments into prompt attachments.
func imagesFrom(fragments []model.Fragment) []llm.Image {
	var out []llm.Image
	for _, f := range fragments {
		if len(out) == maxImages {
			break
		}
		if f.Type != model.FragmentTypeImage {
			continue
		}
		if img, ok := decodeDataURL(f.Content); ok {
			out = append(out, img)
		}
	}
	return out
}

func decodeDataURL(s string) (llm.Image, bool) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return llm.Image{}, false
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return llm.Image{}, false
	}
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 || !strings.HasPrefix(mime, "image/") {
		return llm.Image{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return llm.Image{}, false
	}
	return llm.Image{MIMEType: mime, Data: raw}, true
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func jsonInstruction(b *strings.Builder, shape string) {
	fmt.Fprintf(b, "\nRespond with JSON only, shaped like:\n%s\n", shape)
}
