package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"promptsmith/architect"
	"promptsmith/config"
	"promptsmith/db"
	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/refiner"
	"promptsmith/services"
	"promptsmith/shared"
)

type stubGen struct {
	mu   sync.Mutex
	fail error
}

func (g *stubGen) Generate(_ context.Context, request, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return "", g.fail
	}
	r := strings.TrimSpace(request)
	switch {
	case strings.HasSuffix(r, "Key Directives:"):
		return "- Be concise\n- Use examples", nil
	case strings.HasSuffix(r, "Suggestions:"):
		return "- Add an output format", nil
	case strings.HasSuffix(r, "Prompt:") && strings.Contains(r, "Refined"):
		return "You are a concise reviewer. Reply in bullets.", nil
	case strings.HasSuffix(r, "System Prompt:"):
		return "You are a reviewer.", nil
	}
	return "refined text", nil
}

type staticRules string

func (s staticRules) Rules(context.Context) (string, error) { return string(s), nil }

type fakeStarter struct {
	input shared.ArchitectInput
}

func (f *fakeStarter) StartArchitect(_ context.Context, in shared.ArchitectInput) (string, error) {
	f.input = in
	return "architect-test", nil
}

type HandlersTestSuite struct {
	suite.Suite
	gen     *stubGen
	starter *fakeStarter
	runs    *services.RunStore
	srv     *httptest.Server
}

func (s *HandlersTestSuite) SetupTest() {
	d, err := db.InitDB(filepath.Join(s.T().TempDir(), "test.db"), zap.NewNop())
	s.Require().NoError(err)
	s.T().Cleanup(func() { d.Close() })

	s.gen = &stubGen{}
	s.starter = &fakeStarter{}
	s.runs = services.NewRunStore(d, zap.NewNop())
	runner := engine.New(s.gen, staticRules("rules"))
	m := metrics.New()
	gcfg := config.GenerationConfig{Provider: config.ProviderGemini, DefaultModel: "gemini-2.5-flash", Models: []string{"gemini-2.5-pro"}}
	settings := services.NewSettingsService(d, gcfg, zap.NewNop())

	h := NewHandler(Deps{
		Runner:     runner,
		Settings:   settings,
		Models:     services.NewLLMService(settings, gcfg, zap.NewNop()),
		Refiner:    refiner.New(runner, m, zap.NewNop()),
		Library:    services.NewGitService(s.T().TempDir(), "", "", zap.NewNop()),
		Runs:       s.runs,
		Starter:    s.starter,
		Metrics:    m,
		Logger:     zap.NewNop(),
		SessionTTL: time.Hour,
	})
	s.srv = httptest.NewServer(h.Router())
	s.T().Cleanup(s.srv.Close)
}

func (s *HandlersTestSuite) do(method, path string, body any, out any) int {
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *HandlersTestSuite) createArchitect() string {
	var created architectResponse
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/architect", map[string]string{"description": "a code reviewer"}, &created))
	s.NotEmpty(created.ID)
	s.Equal("gemini-2.5-flash", created.State.Request.Model)
	return created.ID
}

func (s *HandlersTestSuite) TestArchitectFlow() {
	id := s.createArchitect()

	var resp architectResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/architect/"+id+"/directives", nil, &resp))
	s.Equal([]string{"Be concise", "Use examples"}, resp.State.Artifacts.Directives)

	s.Equal(http.StatusOK, s.do(http.MethodPut, "/api/architect/"+id+"/directives/1", map[string]string{"text": "Cite sources"}, &resp))
	s.Equal("Cite sources", resp.State.Artifacts.Directives[1])

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/architect/"+id+"/prompt", nil, &resp))
	s.True(resp.State.IsCompleted(architect.StepApply), "auto-advance runs steps 3 and 4")
	s.Equal("You are a concise reviewer. Reply in bullets.", resp.State.Artifacts.FinalPrompt)

	var errResp errorBody
	s.Equal(http.StatusConflict, s.do(http.MethodDelete, "/api/architect/"+id+"/directives/0", nil, &errResp))

	var pub publishResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/architect/"+id+"/publish", map[string]string{"name": "Code reviewer"}, &pub))
	s.Len(pub.CommitHash, 40)
}

func (s *HandlersTestSuite) TestOutOfOrderAndMissingSession() {
	id := s.createArchitect()

	var errResp errorBody
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/api/architect/"+id+"/prompt", nil, &errResp))
	s.NotEmpty(errResp.Error)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/api/architect/"+id+"/publish", nil, &errResp))
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/architect/nope", nil, &errResp))
}

func (s *HandlersTestSuite) TestStepFailureIsReportedInState() {
	id := s.createArchitect()
	s.gen.mu.Lock()
	s.gen.fail = &shared.AuthError{StatusCode: 401, Message: "bad key"}
	s.gen.mu.Unlock()

	var resp architectResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/architect/"+id+"/automate", nil, &resp))
	s.Equal("Failed(1)", resp.State.Status.String())
	s.NotEmpty(resp.State.Error)
	s.Empty(resp.State.Completed)
}

func (s *HandlersTestSuite) TestAdvisor() {
	var created advisorResponse
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/advisor", map[string]string{"description": "a tutor"}, &created))

	var resp advisorResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/advisor/"+created.ID+"/analyze", analyzeAllBody{System: "You are a tutor."}, &resp))
	s.Equal([]string{"Add an output format"}, resp.State.System.Advice)
	s.Empty(resp.State.User.Advice)

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/advisor/"+created.ID+"/system/apply", nil, &resp))
	s.Equal("You are a concise reviewer. Reply in bullets.", resp.State.System.Refined)

	var errResp errorBody
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/advisor/"+created.ID+"/assistant/apply", nil, &errResp))
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/api/advisor/"+created.ID+"/analyze", analyzeAllBody{}, &errResp))
}

func (s *HandlersTestSuite) TestRefine() {
	var out refineResponse
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/refine", map[string]string{"description": "a tutor", "promptText": "You are a tutor.", "promptType": "user"}, &out))
	s.Equal("You are a concise reviewer. Reply in bullets.", out.Refined)
}

func (s *HandlersTestSuite) TestRuns() {
	var started map[string]string
	s.Equal(http.StatusAccepted, s.do(http.MethodPost, "/api/runs", map[string]any{"description": "a tutor", "publish": true}, &started))
	s.Equal("architect-test", started["workflowId"])
	s.True(s.starter.input.Publish)
	s.Equal("gemini-2.5-flash", s.starter.input.Request.Model)

	var run runResponse
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/runs/architect-test", nil, &run))
	s.Equal(shared.RunStatusPending, run.Status)
	s.False(run.Done)

	s.Require().NoError(s.runs.SaveRun(context.Background(), shared.RunRecord{WorkflowID: "architect-test", Status: shared.RunStatusCompleted, Step: 4, FinalPrompt: "done"}))
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/runs/architect-test", nil, &run))
	s.True(run.Done)

	var list []shared.RunRecord
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/runs", nil, &list))
	s.Len(list, 1)
}

func (s *HandlersTestSuite) TestSettingsAndModels() {
	var models struct {
		Default string   `json:"default"`
		Models  []string `json:"models"`
	}
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/models", nil, &models))
	s.Equal("gemini-2.5-flash", models.Default)
	s.Equal("gemini-2.5-flash", models.Models[0])

	var view services.SettingsView
	s.Equal(http.StatusOK, s.do(http.MethodPut, "/api/settings", settingsBody{APIKey: "stored", Host: "example.com"}, &view))
	s.Equal("https://example.com", view.Host)
	s.Equal(shared.KeySourceStorage, view.KeySource)
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{architect.ErrBusy, http.StatusConflict},
		{errSessionNotFound, http.StatusNotFound},
		{services.ErrRunNotFound, http.StatusNotFound},
		{services.ErrLibraryDisabled, http.StatusNotImplemented},
		{&shared.ValidationError{Field: "description"}, http.StatusBadRequest},
		{&shared.ConfigurationError{Message: "API key not configured."}, http.StatusPreconditionFailed},
		{&shared.AuthError{StatusCode: 403, Permission: true}, http.StatusUnauthorized},
		{&shared.TransportError{StatusCode: 503}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestStartRunWithoutTemporal(t *testing.T) {
	h := NewHandler(Deps{Logger: zap.NewNop(), SessionTTL: time.Minute})
	rec := httptest.NewRecorder()
	h.HandleStartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"description":"x"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
