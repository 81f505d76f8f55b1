package refiner

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/shared"
)

type recordingGen struct {
	requests []string
	reply    string
}

func (g *recordingGen) Generate(ctx context.Context, request, model string) (string, error) {
	g.requests = append(g.requests, request)
	return g.reply, nil
}

type staticRules string

func (s staticRules) Rules(context.Context) (string, error) { return string(s), nil }

func TestRefine(t *testing.T) {
	g := &recordingGen{reply: "Summarize the article in three bullet points."}
	m := metrics.New()
	r := New(engine.New(g, staticRules("RULES")), m, zap.NewNop())

	out, err := r.Refine(context.Background(), shared.WorkflowRequest{Variables: []string{"{{article}}"}}, "summarize {{article}}", shared.PromptTypeUser)
	require.NoError(t, err)
	assert.Equal(t, "Summarize the article in three bullet points.", out)
	require.Len(t, g.requests, 1)
	assert.Contains(t, g.requests[0], "summarize {{article}}")
	assert.Contains(t, g.requests[0], "- {{article}}")

	n, err := testutil.GatherAndCount(m.Registry(), "promptsmith_workflow_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRefineConversation_Defaults(t *testing.T) {
	g := &recordingGen{reply: "Could you list three examples?"}
	r := New(engine.New(g, staticRules("RULES")), nil, zap.NewNop())

	out, err := r.RefineConversation(context.Background(), shared.WorkflowRequest{}, "", nil, "more examples")
	require.NoError(t, err)
	assert.Equal(t, "Could you list three examples?", out)
	assert.Contains(t, g.requests[0], "No system prompt provided.")
	assert.Contains(t, g.requests[0], "more examples")
}

func TestRefine_BlankInputs(t *testing.T) {
	g := &recordingGen{}
	r := New(engine.New(g, staticRules("RULES")), nil, zap.NewNop())
	var valErr *shared.ValidationError

	_, err := r.Refine(context.Background(), shared.WorkflowRequest{}, " ", shared.PromptTypeSystem)
	require.ErrorAs(t, err, &valErr)
	_, err = r.RefineConversation(context.Background(), shared.WorkflowRequest{}, "sys", nil, "")
	require.ErrorAs(t, err, &valErr)
	assert.Empty(t, g.requests)
}
