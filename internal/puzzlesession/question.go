package puzzlesession

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/p-blackswan/puzzlecanvas/internal/agents"
	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

// QuestionSource records which tier produced a central question.
type QuestionSource string

const (
	SourceModel       QuestionSource = "model"
	SourceFragments   QuestionSource = "fragments"
	SourceAim         QuestionSource = "aim"
	SourcePlaceholder QuestionSource = "placeholder"
)

// Question is a central question and where it came from. Reason is set when
// the model's answer was rejected.
type Question struct {
	Text   string
	Source QuestionSource
	Reason llm.Reason
}

// QuestionInput is the project context a central question is built from.
type QuestionInput struct {
	PuzzleType      model.PuzzleType
	Aim             string
	Fragments       []model.Fragment
	PriorDirections []string
}

const (
	maxSubjectRunes = 60
	aimSubjectWords = 6
)

var (
	errGeneric    = errors.New("question is generic boilerplate")
	errUngrounded = errors.New("question shares nothing with the project context")
)

// CentralQuestion asks the model for a central question and checks it. A
// generic or ungrounded answer, a parse failure or a failed call all fall
// through to Fallback, so the result always carries text.
func (c *Coordinator) CentralQuestion(ctx context.Context, in QuestionInput) Question {
	r := c.gen.CentralQuestion(ctx, agents.QuestionInput{
		PuzzleType:      in.PuzzleType,
		Aim:             in.Aim,
		Fragments:       in.Fragments,
		PriorDirections: in.PriorDirections,
	}).
		Check(llm.ReasonGeneric, func(q string) error {
			if IsGeneric(q) {
				return errGeneric
			}
			return nil
		}).
		Check(llm.ReasonUngrounded, func(q string) error {
			if !Grounded(q, in) {
				return errUngrounded
			}
			return nil
		})
	if r.OK {
		return Question{Text: r.Value, Source: SourceModel}
	}

	q := Fallback(in)
	q.Reason = r.Reason
	c.logger.Info().
		Str("reason", string(r.Reason)).
		Str("fallback", string(q.Source)).
		Err(r.Err).
		Msg("central question replaced by fallback")
	return q
}

// Fallback walks the deterministic tiers: fragments first, then the process
// aim, then a placeholder. It never fails.
func Fallback(in QuestionInput) Question {
	if q, ok := FromFragments(in.PuzzleType, in.Fragments); ok {
		return Question{Text: q, Source: SourceFragments}
	}
	if q, ok := FromAim(in.PuzzleType, in.Aim); ok {
		return Question{Text: q, Source: SourceAim}
	}
	return Question{Text: Placeholder(in.PuzzleType), Source: SourcePlaceholder}
}

var templates = map[model.PuzzleType]string{
	model.PuzzleClarify: `What does "%s" mean for this project?`,
	model.PuzzleExpand:  `Where else could "%s" take this project?`,
	model.PuzzleRefine:  `What is the one thing "%s" must get right?`,
}

func templateFor(t model.PuzzleType) string {
	if tpl, ok := templates[t]; ok {
		return tpl
	}
	return templates[model.PuzzleClarify]
}

// FromFragments builds a question around the first fragment with a title,
// or failing that the first fragment tag.
func FromFragments(t model.PuzzleType, fragments []model.Fragment) (string, bool) {
	subject := ""
	for _, f := range fragments {
		if s := clean(f.Title); s != "" {
			subject = s
			break
		}
	}
	if subject == "" {
		for _, f := range fragments {
			if len(f.Tags) > 0 {
				if s := clean(f.Tags[0]); s != "" {
					subject = s
					break
				}
			}
		}
	}
	if subject == "" {
		return "", false
	}
	return fmt.Sprintf(templateFor(t), subject), true
}

// FromAim builds a question from the first few words of the process aim.
func FromAim(t model.PuzzleType, aim string) (string, bool) {
	words := strings.Fields(aim)
	if len(words) == 0 {
		return "", false
	}
	if len(words) > aimSubjectWords {
		words = words[:aimSubjectWords]
	}
	subject := clean(strings.TrimRightFunc(strings.Join(words, " "), unicode.IsPunct))
	if subject == "" {
		return "", false
	}
	return fmt.Sprintf(templateFor(t), subject), true
}

// Placeholder asks the user for more material.
func Placeholder(t model.PuzzleType) string {
	switch t {
	case model.PuzzleExpand:
		return "Add a few fragments so there is something to expand on. What should this project explore?"
	case model.PuzzleRefine:
		return "Add a few fragments so there is something to refine. What already works in this project?"
	default:
		return "Add a few fragments so the puzzle has something to clarify. What is this project about?"
	}
}

func clean(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, `"`, "'")), " ")
	if utf8.RuneCountInString(s) > maxSubjectRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxSubjectRunes])) + "…"
	}
	return s
}

var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^what (is|are) (the|your) (main|key|core|primary|central|real) (goal|idea|purpose|question|problem|point)s?\b`),
	regexp.MustCompile(`(?i)^how (can|could|might|do|should) (we|you|i) (improve|enhance|optimi[sz]e|make (it|this) better)\b`),
	regexp.MustCompile(`(?i)^what (do|does|should) (you|we|the user|users) (want|need|think)\b`),
	regexp.MustCompile(`(?i)^what('s| is) next\b`),
	regexp.MustCompile(`(?i)^(what|how) (is|does) (this|the|your) (project|design|idea) (work|about)\b`),
}

// IsGeneric reports whether q is boilerplate that would fit any project.
func IsGeneric(q string) bool {
	q = strings.TrimSpace(q)
	if len(strings.Fields(q)) < 4 {
		return true
	}
	for _, re := range genericPatterns {
		if re.MatchString(q) {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true,
	"being": true, "could": true, "does": true, "each": true, "from": true,
	"have": true, "here": true, "into": true, "just": true, "like": true,
	"make": true, "more": true, "most": true, "much": true, "must": true,
	"next": true, "only": true, "other": true, "over": true, "shape": true,
	"should": true, "some": true, "than": true, "that": true, "their": true,
	"them": true, "then": true, "there": true, "these": true, "they": true,
	"thing": true, "this": true, "those": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "with": true, "would": true,
	"your": true, "project": true, "design": true, "idea": true, "ideas": true,
	"comes": true, "mean": true, "right": true, "feel": true, "user": true,
}

func significantWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if utf8.RuneCountInString(w) >= 4 && !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

// Grounded reports whether q shares at least one significant word with the
// aim or the fragments. Without any context there is nothing to ground
// against and every question passes.
func Grounded(q string, in QuestionInput) bool {
	var ctxText strings.Builder
	ctxText.WriteString(in.Aim)
	for _, f := range in.Fragments {
		ctxText.WriteString(" ")
		ctxText.WriteString(f.Title)
		ctxText.WriteString(" ")
		ctxText.WriteString(f.Summary)
		ctxText.WriteString(" ")
		ctxText.WriteString(strings.Join(f.Tags, " "))
		if f.Type != model.FragmentTypeImage {
			ctxText.WriteString(" ")
			ctxText.WriteString(f.Content)
		}
	}
	known := significantWords(ctxText.String())
	if len(known) == 0 {
		return true
	}
	for w := range significantWords(q) {
		if known[w] {
			return true
		}
	}
	return false
}
