package advisor

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"promptsmith/engine"
	"promptsmith/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGen answers advice and apply requests; requests mentioning a text in
// failOn fail with a transport error.
type fakeGen struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (g *fakeGen) Generate(ctx context.Context, request, model string) (string, error) {
	g.mu.Lock()
	g.calls++
	failOn := g.failOn
	g.mu.Unlock()

	if failOn != "" && strings.Contains(request, failOn) {
		return "", &shared.TransportError{StatusCode: 500, Message: "upstream failure"}
	}
	if strings.HasSuffix(strings.TrimSpace(request), "Suggestions:") {
		return "- Be specific\n\n* Add an example", nil
	}
	return "refined text", nil
}

type staticRules string

func (s staticRules) Rules(context.Context) (string, error) { return string(s), nil }

func newAdvisor(g *fakeGen) *Advisor {
	return New(engine.New(g, staticRules("RULES")), shared.WorkflowRequest{Model: "gemini-2.5-flash"})
}

func TestAnalyzeThenApply_NeverMutatesPromptText(t *testing.T) {
	a := newAdvisor(&fakeGen{})
	ctx := context.Background()

	snap, err := a.Analyze(ctx, shared.PromptTypeSystem, "You are a tutor.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Be specific", "Add an example"}, snap.Advice)
	assert.Empty(t, snap.Error)

	snap, err = a.Apply(ctx, shared.PromptTypeSystem)
	require.NoError(t, err)
	assert.Equal(t, "refined text", snap.Refined)
	assert.Equal(t, "You are a tutor.", snap.PromptText)
	assert.Equal(t, []string{"Be specific", "Add an example"}, snap.Advice)
}

func TestAnalyze_BlankTextRejected(t *testing.T) {
	g := &fakeGen{}
	a := newAdvisor(g)

	snap, err := a.Analyze(context.Background(), shared.PromptTypeUser, "   ")
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.NotEmpty(t, snap.Error)
	assert.Zero(t, g.calls)
}

func TestApply_WithoutAdviceRejected(t *testing.T) {
	g := &fakeGen{}
	a := newAdvisor(g)

	_, err := a.Apply(context.Background(), shared.PromptTypeUser)
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Zero(t, g.calls)
}

func TestTracksAreIndependent(t *testing.T) {
	g := &fakeGen{failOn: "BROKEN"}
	a := newAdvisor(g)

	snap, err := a.AnalyzeAll(context.Background(), "You are a tutor.", "BROKEN user prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user prompt")

	assert.Empty(t, snap.System.Error)
	assert.Equal(t, []string{"Be specific", "Add an example"}, snap.System.Advice)
	assert.Equal(t, "TransportError", snap.User.ErrorKind)
	assert.Empty(t, snap.User.Advice)
	assert.Equal(t, "BROKEN user prompt", snap.User.PromptText)

	// retrying the failed track leaves the other one untouched
	g.mu.Lock()
	g.failOn = ""
	g.mu.Unlock()
	user, err := a.Analyze(context.Background(), shared.PromptTypeUser, "BROKEN user prompt")
	require.NoError(t, err)
	assert.Empty(t, user.Error)
	assert.Equal(t, snap.System, a.Snapshot().System)
}

func TestAnalyzeAll_SkipsBlankAndRejectsAllBlank(t *testing.T) {
	g := &fakeGen{}
	a := newAdvisor(g)

	snap, err := a.AnalyzeAll(context.Background(), "", "Summarize this article.")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.User.Advice)
	assert.Empty(t, snap.System.Advice)
	assert.Equal(t, 1, g.calls)

	_, err = a.AnalyzeAll(context.Background(), " ", "")
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestApplyFailureKeepsAdvice(t *testing.T) {
	g := &fakeGen{}
	a := newAdvisor(g)
	ctx := context.Background()

	_, err := a.Analyze(ctx, shared.PromptTypeSystem, "You are a tutor.")
	require.NoError(t, err)

	g.mu.Lock()
	g.failOn = "Suggestions to Apply"
	g.mu.Unlock()
	snap, err := a.Apply(ctx, shared.PromptTypeSystem)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, snap.Refined)
	assert.Len(t, snap.Advice, 2)
	assert.False(t, snap.Applying)
}

func TestUnknownPromptType(t *testing.T) {
	_, err := newAdvisor(&fakeGen{}).Analyze(context.Background(), shared.PromptType("assistant"), "x")
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
}
