// handlers/handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"promptsmith/advisor"
	"promptsmith/architect"
	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/refiner"
	"promptsmith/services"
	"promptsmith/shared"
)

// ModelLister reports the selectable models.
type ModelLister interface {
	ListModels() []string
	DefaultModel() string
}

// RunStarter launches durable architect runs. Nil when Temporal is disabled.
type RunStarter interface {
	StartArchitect(ctx context.Context, input shared.ArchitectInput) (string, error)
}

// Deps holds the collaborators of the HTTP API.
type Deps struct {
	Runner     *engine.Runner
	Settings   *services.SettingsService
	Models     ModelLister
	Refiner    *refiner.Refiner
	Library    *services.GitService
	Runs       *services.RunStore
	Starter    RunStarter
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	SessionTTL time.Duration
	Language   string // output language when a request names none
}

// Handler serves the JSON API.
type Handler struct {
	Deps
	logger     *zap.Logger
	architects *services.SessionStore[*architect.Architect]
	advisors   *services.SessionStore[*advisor.Advisor]
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps:       d,
		logger:     d.Logger.Named("http"),
		architects: services.NewSessionStore[*architect.Architect](d.SessionTTL),
		advisors:   services.NewSessionStore[*advisor.Advisor](d.SessionTTL),
	}
}

// Router builds the chi router with middleware and every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.requestLogger, middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", h.HandleModels)
		r.Get("/settings", h.HandleGetSettings)
		r.Put("/settings", h.HandlePutSettings)

		r.Post("/architect", h.HandleCreateArchitect)
		r.Route("/architect/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetArchitect)
			r.Put("/", h.HandleResetArchitect)
			r.Post("/directives", h.HandleGetDirectives)
			r.Put("/directives/{index}", h.HandleEditDirective)
			r.Delete("/directives/{index}", h.HandleRemoveDirective)
			r.Post("/prompt", h.HandleGeneratePrompt)
			r.Post("/advice", h.HandleAnalyzeDraft)
			r.Post("/refine", h.HandleApplyAdvice)
			r.Post("/automate", h.HandleAutomate)
			r.Post("/publish", h.HandlePublish)
		})

		r.Post("/advisor", h.HandleCreateAdvisor)
		r.Route("/advisor/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetAdvisor)
			r.Post("/analyze", h.HandleAnalyzeAll)
			r.Post("/{type}/analyze", h.HandleAnalyzeTrack)
			r.Post("/{type}/apply", h.HandleApplyTrack)
		})

		r.Post("/refine", h.HandleRefine)
		r.Post("/refine/conversation", h.HandleRefineConversation)

		r.Get("/runs", h.HandleListRuns)
		r.Post("/runs", h.HandleStartRun)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
}

// requestLogger logs one line per request through zap.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default": h.Models.DefaultModel(),
		"models":  h.Models.ListModels(),
	})
}

func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := h.Settings.Describe(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type settingsBody struct {
	APIKey string `json:"apiKey"`
	Host   string `json:"host"`
}

func (h *Handler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.Settings.Save(r.Context(), body.APIKey, body.Host); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.HandleGetSettings(w, r)
}

// requestBody is the WorkflowRequest as sent by clients.
type requestBody struct {
	Description string   `json:"description"`
	Model       string   `json:"model"`
	Language    string   `json:"language"`
	Variables   []string `json:"variables"`
}

func (h *Handler) workflowRequest(b requestBody) shared.WorkflowRequest {
	model := strings.TrimSpace(b.Model)
	if model == "" {
		model = h.Models.DefaultModel()
	}
	lang := strings.TrimSpace(b.Language)
	if lang == "" {
		lang = h.Language
	}
	return shared.WorkflowRequest{
		Description: b.Description,
		Model:       model,
		Language:    lang,
		Variables:   b.Variables,
	}
}

// detached keeps generation calls running after the client disconnects.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	State any    `json:"state,omitempty"`
}

var errSessionNotFound = errors.New("session not found")

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	var (
		cfgErr   *shared.ConfigurationError
		authErr  *shared.AuthError
		trErr    *shared.TransportError
		unexpErr *shared.UnexpectedResponseError
		valErr   *shared.ValidationError
	)
	switch {
	case errors.Is(err, architect.ErrBusy), errors.Is(err, advisor.ErrBusy),
		errors.Is(err, architect.ErrOutOfOrder), errors.Is(err, architect.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, errSessionNotFound), errors.Is(err, services.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrLibraryDisabled):
		return http.StatusNotImplemented
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusPreconditionFailed
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &trErr), errors.As(err, &unexpErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error, state any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: shared.UserMessage(err), Kind: shared.ErrorKind(err), State: state})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, &shared.ValidationError{Field: "body", Message: "invalid JSON body: " + err.Error()}, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
