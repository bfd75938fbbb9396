package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

type mockRule struct {
	marker string
	fn     func(ctx context.Context, req Request) (string, error)
}

// Mock is a deterministic Backend. Responses are chosen by the first rule
// whose marker occurs in the prompt; rules added with On, OnFunc or Fail take
// precedence over the built-in fixtures, which return schema-shaped JSON for
// every agent task.
type Mock struct {
	mu       sync.Mutex
	rules    []mockRule
	defaults []mockRule
	calls    []Request
}

// NewMock returns a Mock loaded with fixtures for every task.
func NewMock() *Mock {
	m := &Mock{}
	m.defaults = []mockRule{
		{Marker(TaskFragmentContext), mockFragmentContext},
		{Marker(TaskMascotProposal), staticJSON(map[string]any{
			"puzzleType":      "CLARIFY",
			"centralQuestion": "What should this project make someone feel first?",
			"rationale":       "The question the user asked points at intent before form.",
			"primaryModes":    []string{"EXPRESSION", "FUNCTION"},
		})},
		{Marker(TaskPuzzleSuggestion), staticJSON(map[string]any{
			"shouldSuggest":   true,
			"puzzleType":      "EXPAND",
			"centralQuestion": "Where else could these recurring ideas lead?",
			"rationale":       "Several fragments circle the same theme.",
		})},
		{Marker(TaskPuzzleDesign), staticJSON(map[string]any{
			"centralQuestion": "What should this project make someone feel first?",
			"startingAnchor":  "The user wants a clear emotional entry point.",
			"solutionAnchor":  "A single sentence that names the feeling.",
			"pieces": []map[string]string{
				{"mode": "FORM", "text": "Which shape carries that feeling?", "category": "shape"},
				{"mode": "MOTION", "text": "How does it move when touched?", "category": "interaction"},
				{"mode": "EXPRESSION", "text": "What mood should the first glance set?", "category": "mood"},
				{"mode": "FUNCTION", "text": "What must it do on day one?", "category": "purpose"},
			},
		})},
		{Marker(TaskPuzzleSummary), staticJSON(map[string]any{
			"directionStatement": "Lead with warmth, let function follow.",
			"reasons":            []string{"Placed pieces favour mood over mechanics."},
			"openQuestions":      []string{"Which material carries the warmth?"},
		})},
		{Marker(TaskCentralQuestion), mockCentralQuestion},
		{Marker(TaskQuadrant), mockQuadrant},
	}
	return m
}

// On answers prompts containing marker with response.
func (m *Mock) On(marker, response string) *Mock {
	return m.OnFunc(marker, func(context.Context, Request) (string, error) { return response, nil })
}

// Fail makes prompts containing marker return err.
func (m *Mock) Fail(marker string, err error) *Mock {
	return m.OnFunc(marker, func(context.Context, Request) (string, error) { return "", err })
}

// OnFunc answers prompts containing marker with fn. Later rules win over
// earlier ones.
func (m *Mock) OnFunc(marker string, fn func(ctx context.Context, req Request) (string, error)) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]mockRule{{marker: marker, fn: fn}}, m.rules...)
	return m
}

// Complete implements Backend.
func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	rules := append(append([]mockRule(nil), m.rules...), m.defaults...)
	m.mu.Unlock()

	for _, r := range rules {
		if strings.Contains(req.Prompt, r.marker) {
			return r.fn(ctx, req)
		}
	}
	if req.Structured() {
		return "{}", nil
	}
	return "This is a mock response.", nil
}

// Calls returns every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount counts requests whose prompt contains marker.
func (m *Mock) CallCount(marker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.Contains(c.Prompt, marker) {
			n++
		}
	}
	return n
}

func staticJSON(v any) func(context.Context, Request) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock fixture: %v", err))
	}
	return func(context.Context, Request) (string, error) { return string(data), nil }
}

var (
	fragmentRefRe = regexp.MustCompile(`\[fragment:([^\]]+)\]`)
	modeRefRe     = regexp.MustCompile(`\[mode:([A-Z]+)\]`)
	quotedRe      = regexp.MustCompile(`- "([^"]{3,80})"`)
)

func mockFragmentContext(_ context.Context, req Request) (string, error) {
	type fragment struct {
		ID      string   `json:"id"`
		Summary string   `json:"summary"`
		Tags    []string `json:"tags"`
	}
	type cluster struct {
		Theme       string   `json:"theme"`
		FragmentIDs []string `json:"fragmentIds"`
	}
	out := struct {
		Fragments []fragment `json:"fragments"`
		Clusters  []cluster  `json:"clusters"`
	}{Fragments: []fragment{}, Clusters: []cluster{}}

	var ids []string
	for _, m := range fragmentRefRe.FindAllStringSubmatch(req.Prompt, -1) {
		ids = append(ids, m[1])
		out.Fragments = append(out.Fragments, fragment{
			ID:      m[1],
			Summary: "Mock summary of " + m[1],
			Tags:    []string{"mock"},
		})
	}
	if len(ids) > 1 {
		out.Clusters = append(out.Clusters, cluster{Theme: "Mock theme", FragmentIDs: ids})
	}
	data, err := json.Marshal(out)
	return string(data), err
}

func mockCentralQuestion(_ context.Context, req Request) (string, error) {
	subject := "this project"
	if m := quotedRe.FindStringSubmatch(req.Prompt); m != nil {
		subject = fmt.Sprintf("%q", m[1])
	}
	data, err := json.Marshal(map[string]string{
		"centralQuestion": fmt.Sprintf("How could %s shape what comes next?", subject),
	})
	return string(data), err
}

func mockQuadrant(_ context.Context, req Request) (string, error) {
	mode := "FORM"
	if m := modeRefRe.FindStringSubmatch(req.Prompt); m != nil {
		mode = m[1]
	}
	lower := strings.ToLower(mode)
	data, err := json.Marshal(map[string]any{
		"pieces": []map[string]string{
			{"text": fmt.Sprintf("Which %s choice matters most here?", lower), "category": "priority"},
			{"text": fmt.Sprintf("What %s detail would surprise you?", lower), "category": "detail"},
		},
	})
	return string(data), err
}
