package puzzlesession

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/puzzlecanvas/internal/llm"
	"github.com/p-blackswan/puzzlecanvas/internal/model"
)

func nostalgic() []model.Fragment {
	return []model.Fragment{
		{ID: "f1", Title: "Nostalgic Future", Content: "Retro-futurism, chrome and warm bakelite"},
		{ID: "f2", Title: "Kitchen radio", Content: "The radio my grandmother kept on the sill"},
	}
}

func TestCentralQuestion_FallsBackToFragmentOnInvalidJSON(t *testing.T) {
	mock := llm.NewMock().On(llm.Marker(llm.TaskCentralQuestion), "Sure! Here is a great question for you.")
	c := New(mockAgents(mock), zerolog.Nop())

	q := c.CentralQuestion(context.Background(), QuestionInput{
		PuzzleType: model.PuzzleClarify,
		Fragments:  nostalgic(),
	})
	assert.Equal(t, `What does "Nostalgic Future" mean for this project?`, q.Text)
	assert.Equal(t, SourceFragments, q.Source)
	assert.Equal(t, llm.ReasonParse, q.Reason)
}

func TestCentralQuestion_AcceptsGroundedAnswer(t *testing.T) {
	c := New(mockAgents(llm.NewMock()), zerolog.Nop())
	q := c.CentralQuestion(context.Background(), QuestionInput{
		PuzzleType: model.PuzzleExpand,
		Fragments:  nostalgic(),
	})
	assert.Equal(t, SourceModel, q.Source)
	assert.Equal(t, `How could "Nostalgic Future" shape what comes next?`, q.Text)
	assert.Empty(t, q.Reason)
}

func TestCentralQuestion_RejectsGenericAndUngrounded(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		reason llm.Reason
	}{
		{"generic", `{"centralQuestion":"What is the main goal of this project?"}`, llm.ReasonGeneric},
		{"too short", `{"centralQuestion":"Why?"}`, llm.ReasonGeneric},
		{"ungrounded", `{"centralQuestion":"How might penguins migrate across glaciers?"}`, llm.ReasonUngrounded},
		{"schema", `{"centralQuestion":"   "}`, llm.ReasonSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMock().On(llm.Marker(llm.TaskCentralQuestion), tt.answer)
			q := New(mockAgents(mock), zerolog.Nop()).CentralQuestion(context.Background(), QuestionInput{
				PuzzleType: model.PuzzleRefine,
				Fragments:  nostalgic(),
			})
			assert.Equal(t, tt.reason, q.Reason)
			assert.Equal(t, `What is the one thing "Nostalgic Future" must get right?`, q.Text)
		})
	}
}

func TestCentralQuestion_CallFailure(t *testing.T) {
	mock := llm.NewMock().Fail(llm.Marker(llm.TaskCentralQuestion), errors.New("quota exceeded"))
	q := New(mockAgents(mock), zerolog.Nop()).CentralQuestion(context.Background(), QuestionInput{
		Aim: "A lamp that remembers",
	})
	assert.Equal(t, llm.ReasonCall, q.Reason)
	assert.Equal(t, SourceAim, q.Source)
	assert.Equal(t, `What does "A lamp that remembers" mean for this project?`, q.Text)
}

func TestFallback(t *testing.T) {
	t.Run("tags when no titles", func(t *testing.T) {
		q := Fallback(QuestionInput{
			PuzzleType: model.PuzzleExpand,
			Fragments:  []model.Fragment{{ID: "f", Tags: []string{"chrome"}}},
		})
		assert.Equal(t, `Where else could "chrome" take this project?`, q.Text)
		assert.Equal(t, SourceFragments, q.Source)
	})

	t.Run("aim is cut to six words", func(t *testing.T) {
		q := Fallback(QuestionInput{
			PuzzleType: model.PuzzleExpand,
			Aim:        "Build a lamp that remembers every evening, gently and quietly.",
		})
		assert.Equal(t, `Where else could "Build a lamp that remembers every" take this project?`, q.Text)
		assert.Equal(t, SourceAim, q.Source)
	})

	t.Run("placeholder per type", func(t *testing.T) {
		for _, pt := range []model.PuzzleType{model.PuzzleClarify, model.PuzzleExpand, model.PuzzleRefine, ""} {
			q := Fallback(QuestionInput{PuzzleType: pt, Aim: "   "})
			assert.Equal(t, SourcePlaceholder, q.Source)
			assert.Equal(t, Placeholder(pt), q.Text)
			assert.NotEmpty(t, q.Text)
		}
		assert.NotEqual(t, Placeholder(model.PuzzleClarify), Placeholder(model.PuzzleRefine))
	})

	t.Run("quotes in titles are neutralized", func(t *testing.T) {
		q, ok := FromFragments(model.PuzzleClarify, []model.Fragment{{Title: `The "Big" Idea`}})
		assert.True(t, ok)
		assert.Equal(t, `What does "The 'Big' Idea" mean for this project?`, q)
	})
}

func TestIsGeneric(t *testing.T) {
	generic := []string{
		"What is the main goal of this project?",
		"How can we improve the design?",
		"What do you want?",
		"What's next for the idea?",
		"Too short",
	}
	for _, q := range generic {
		assert.True(t, IsGeneric(q), q)
	}
	specific := []string{
		"How could the brass lamp dim when the room empties?",
		`What does "Nostalgic Future" mean for this project?`,
	}
	for _, q := range specific {
		assert.False(t, IsGeneric(q), q)
	}
}

func TestGrounded(t *testing.T) {
	in := QuestionInput{Aim: "A lamp that remembers", Fragments: nostalgic()}
	assert.True(t, Grounded("When should the lamp start glowing?", in))
	assert.True(t, Grounded("Which bakelite colour feels most like home?", in))
	assert.False(t, Grounded("What should this project be about?", in))
	assert.True(t, Grounded("Anything at all?", QuestionInput{}), "no context to ground against")
}
