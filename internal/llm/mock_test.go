package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
)

func TestMock_Fixtures(t *testing.T) {
	c := NewClient(NewMock(), "mock")
	assert.True(t, c.IsMock())
	assert.Equal(t, TierMock, c.Tier())
	ctx := context.Background()

	for _, task := range []string{
		TaskFragmentContext, TaskMascotProposal, TaskPuzzleSuggestion,
		TaskPuzzleDesign, TaskPuzzleSummary, TaskCentralQuestion, TaskQuadrant,
	} {
		out, err := c.GenerateStructured(ctx, Marker(task)+"\nprompt body", []byte(`{}`))
		require.NoError(t, err, task)
		assert.True(t, json.Valid([]byte(out)), "%s fixture should be valid JSON: %s", task, out)
	}
}

func TestMock_FragmentContextEchoesIDs(t *testing.T) {
	m := NewMock()
	out, err := m.Complete(context.Background(), Request{
		Prompt: Marker(TaskFragmentContext) + "\n" + FragmentRef("f1") + " brass\n" + FragmentRef("f2") + " glass",
	})
	require.NoError(t, err)

	var got struct {
		Fragments []struct{ ID string } `json:"fragments"`
		Clusters  []struct {
			FragmentIDs []string `json:"fragmentIds"`
		} `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Fragments, 2)
	assert.Equal(t, "f2", got.Fragments[1].ID)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, []string{"f1", "f2"}, got.Clusters[0].FragmentIDs)
}

func TestMock_QuadrantUsesMode(t *testing.T) {
	out, err := NewMock().Complete(context.Background(), Request{Prompt: Marker(TaskQuadrant) + " " + ModeRef("MOTION")})
	require.NoError(t, err)
	assert.Contains(t, out, "motion")
}

func TestMock_RulesOverrideFixtures(t *testing.T) {
	m := NewMock().On(Marker(TaskQuadrant), `{"pieces":[]}`)
	out, err := m.Complete(context.Background(), Request{Prompt: Marker(TaskQuadrant)})
	require.NoError(t, err)
	assert.Equal(t, `{"pieces":[]}`, out)
	assert.Equal(t, 1, m.CallCount(Marker(TaskQuadrant)))
}

func TestMock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Complete(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RejectsEmptyPromptAndResponse(t *testing.T) {
	c := NewClient(NewMock().On("[empty]", "  "), "mock")

	_, err := c.Generate(context.Background(), "  ")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = c.Generate(context.Background(), "[empty]")
	assert.ErrorIs(t, err, perrors.ErrEmptyResponse)
}

func TestClient_OptionsReachBackend(t *testing.T) {
	m := NewMock()
	c := NewClient(m, "mock")
	_, err := c.Generate(context.Background(), "hello", WithTemperature(0.2), WithMaxTokens(50), WithTask("probe"))
	require.NoError(t, err)

	req := m.Calls()[0]
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-6)
	assert.Equal(t, 50, req.MaxTokens)
	assert.Equal(t, "probe", req.Task)
}
