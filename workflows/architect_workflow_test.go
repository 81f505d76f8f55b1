package workflows

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"

	"promptsmith/activities"
	"promptsmith/db"
	"promptsmith/engine"
	"promptsmith/services"
	"promptsmith/shared"
)

// scriptedGen answers by the closing line of the request and fails the step
// named in failStep.
type scriptedGen struct {
	failStep string
}

func (g *scriptedGen) Generate(ctx context.Context, request, model string) (string, error) {
	r := strings.TrimSpace(request)
	var step, answer string
	switch {
	case strings.HasSuffix(r, "Key Directives:"):
		step, answer = "directives", "- Be concise\n- Use examples"
	case strings.HasSuffix(r, "Refined System Prompt:"):
		step, answer = "apply", "You are a concise code reviewer who always gives examples."
	case strings.HasSuffix(r, "Suggestions:"):
		step, answer = "advice", "- Mention the audience"
	case strings.HasSuffix(r, "System Prompt:"):
		step, answer = "draft", "You are a code reviewer."
	}
	if step == g.failStep {
		return "", &shared.AuthError{StatusCode: 401, Message: "API key not valid"}
	}
	return answer, nil
}

type staticRules string

func (s staticRules) Rules(context.Context) (string, error) { return string(s), nil }

type ArchitectWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env     *testsuite.TestWorkflowEnvironment
	db      *sql.DB
	store   *services.RunStore
	gen     *scriptedGen
	libPath string
}

func (s *ArchitectWorkflowTestSuite) SetupTest() {
	d, err := db.InitDB(filepath.Join(s.T().TempDir(), "runs.db"), zap.NewNop())
	s.Require().NoError(err)
	s.db = d
	s.store = services.NewRunStore(d, zap.NewNop())
	s.gen = &scriptedGen{}
	s.libPath = s.T().TempDir()

	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(ArchitectWorkflow)
	activities.Register(s.env,
		activities.NewLLMActivities(engine.New(s.gen, staticRules("RULES")), nil),
		activities.NewGitActivities(services.NewGitService(s.libPath, "", "", zap.NewNop())),
		activities.NewRunActivities(s.store),
	)
}

func (s *ArchitectWorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
	s.db.Close()
}

var input = shared.ArchitectInput{
	Request: shared.WorkflowRequest{Description: "a helpful code reviewer", Model: "gemini-2.5-flash", Language: "English"},
}

func (s *ArchitectWorkflowTestSuite) run(in shared.ArchitectInput) shared.RunRecord {
	s.env.ExecuteWorkflow(ArchitectWorkflow, in)
	s.Require().True(s.env.IsWorkflowCompleted())
	runs, err := s.store.ListRuns(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	return runs[0]
}

func (s *ArchitectWorkflowTestSuite) TestCompletes() {
	rec := s.run(input)
	s.Require().NoError(s.env.GetWorkflowError())

	var out shared.ArchitectOutput
	s.Require().NoError(s.env.GetWorkflowResult(&out))
	s.Equal([]string{"Be concise", "Use examples"}, out.Directives)
	s.Equal("You are a code reviewer.", out.InitialPrompt)
	s.Equal([]string{"Mention the audience"}, out.Advice)
	s.Equal("You are a concise code reviewer who always gives examples.", out.FinalPrompt)
	s.Empty(out.CommitHash)

	s.Equal(shared.RunStatusCompleted, rec.Status)
	s.Equal(4, rec.Step)
	s.Equal("Be concise\nUse examples", rec.Directives)
	s.Equal(out.FinalPrompt, rec.FinalPrompt)
	s.Contains(rec.Request, "a helpful code reviewer")
}

func (s *ArchitectWorkflowTestSuite) TestFailingStep2KeepsStep1Artifacts() {
	s.gen.failStep = "draft"
	rec := s.run(input)

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), "step 2 failed")

	s.Equal(shared.RunStatusFailed, rec.Status)
	s.Equal(2, rec.Step)
	s.Equal("Be concise\nUse examples", rec.Directives)
	s.Empty(rec.InitialPrompt)
	s.Empty(rec.Advice)
	s.Empty(rec.FinalPrompt)
	s.NotEmpty(rec.ErrorDetails)
}

func (s *ArchitectWorkflowTestSuite) TestPublishesFinalPrompt() {
	in := input
	in.Publish = true
	in.Name = "Code reviewer"
	rec := s.run(in)
	s.Require().NoError(s.env.GetWorkflowError())

	var out shared.ArchitectOutput
	s.Require().NoError(s.env.GetWorkflowResult(&out))
	s.Len(out.CommitHash, 40)
	s.Equal(out.CommitHash, rec.CommitHash)
	s.FileExists(filepath.Join(s.libPath, "prompts", "code-reviewer.md"))
}

func TestArchitectWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(ArchitectWorkflowTestSuite))
}

func TestScriptedGen(t *testing.T) {
	g := &scriptedGen{failStep: "advice"}
	_, err := g.Generate(context.Background(), "...\nSuggestions:\n", "")
	var authErr *shared.AuthError
	require.True(t, errors.As(err, &authErr))
	out, err := g.Generate(context.Background(), "...\nKey Directives:", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Be concise")
}
