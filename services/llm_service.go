package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"promptsmith/config"
	"promptsmith/metrics"
	"promptsmith/shared"
)

// Generator sends one request string to a model and returns the cleaned text.
type Generator interface {
	Generate(ctx context.Context, request, model string) (string, error)
}

// LLMService is the generation client. Credentials are resolved on every
// call; backend clients are cached per credential and dropped when the
// settings change.
type LLMService struct {
	creds        CredentialResolver
	metrics      *metrics.Metrics
	logger       *zap.Logger
	defaultModel string
	models       []string
	httpClient   *http.Client

	clients *cache.Cache
}

type LLMOption func(*LLMService)

// WithHTTPClient overrides the HTTP client used by both backends.
func WithHTTPClient(c *http.Client) LLMOption {
	return func(s *LLMService) { s.httpClient = c }
}

func WithMetrics(m *metrics.Metrics) LLMOption {
	return func(s *LLMService) { s.metrics = m }
}

func NewLLMService(creds CredentialResolver, cfg config.GenerationConfig, logger *zap.Logger, opts ...LLMOption) *LLMService {
	s := &LLMService{
		creds:        creds,
		logger:       logger.Named("llm"),
		defaultModel: cfg.DefaultModel,
		models:       cfg.Models,
		clients:      cache.New(30*time.Minute, 10*time.Minute),
	}
	if s.defaultModel == "" {
		s.defaultModel = config.DefaultModel
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops every cached backend client.
func (s *LLMService) Invalidate() {
	s.clients.Flush()
}

// DefaultModel returns the model used when a request names none.
func (s *LLMService) DefaultModel() string {
	return s.defaultModel
}

// ListModels returns the selectable models with the default first.
func (s *LLMService) ListModels() []string {
	out := []string{s.defaultModel}
	for _, m := range s.models {
		if m != s.defaultModel {
			out = append(out, m)
		}
	}
	return out
}

// Generate sends request to model. Fenced-code markers are removed from the
// response and surrounding whitespace trimmed.
func (s *LLMService) Generate(ctx context.Context, request, model string) (string, error) {
	if model == "" {
		model = s.defaultModel
	}
	creds, err := s.creds.Resolve(ctx)
	if err != nil {
		return "", &shared.ConfigurationError{Message: fmt.Sprintf("could not read settings: %v", err)}
	}
	if creds.APIKey == "" {
		return "", &shared.ConfigurationError{Message: "API key not configured."}
	}

	start := time.Now()
	var text string
	switch creds.Provider {
	case config.ProviderOpenAI:
		text, err = s.generateOpenAI(ctx, creds, request, model)
	default:
		text, err = s.generateGemini(ctx, creds, request, model)
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = shared.ErrorKind(err)
		s.logger.Warn("Generation failed",
			zap.String("provider", creds.Provider),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		s.logger.Debug("Generation succeeded",
			zap.String("provider", creds.Provider),
			zap.String("model", model),
			zap.Int("requestLen", len(request)),
			zap.Int("responseLen", len(text)),
			zap.Duration("elapsed", elapsed))
	}
	s.metrics.ObserveGeneration(creds.Provider, model, outcome, elapsed)
	if err != nil {
		return "", err
	}
	return CleanResponse(text), nil
}

// CleanResponse removes every ``` marker and trims surrounding whitespace.
func CleanResponse(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
}

func clientKey(creds shared.Credentials) string {
	h := fnv.New64a()
	h.Write([]byte(creds.APIKey))
	return fmt.Sprintf("%s|%s|%x", creds.Provider, creds.Host, h.Sum64())
}

func (s *LLMService) geminiClient(ctx context.Context, creds shared.Credentials) (*genai.Client, error) {
	key := clientKey(creds)
	if c, ok := s.clients.Get(key); ok {
		return c.(*genai.Client), nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      creds.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  s.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: creds.Host + "/"},
	})
	if err != nil {
		return nil, &shared.ConfigurationError{Message: fmt.Sprintf("failed to create Gemini client: %v", err)}
	}
	s.clients.SetDefault(key, client)
	return client, nil
}

func (s *LLMService) generateGemini(ctx context.Context, creds shared.Credentials, request, model string) (string, error) {
	client, err := s.geminiClient(ctx, creds)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(request), nil)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &shared.UnexpectedResponseError{Message: "response contained no candidates"}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &shared.UnexpectedResponseError{Message: "response contained no text"}
	}
	return text, nil
}

// classifyGeminiError maps a Gemini failure onto the error taxonomy. Status
// codes decide first; the message substrings cover proxies that rewrite codes.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &shared.TransportError{Message: "request cancelled", Cause: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		lower := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.Code == http.StatusForbidden || apiErr.Status == "PERMISSION_DENIED":
			return &shared.AuthError{StatusCode: apiErr.Code, Permission: true, Message: apiErr.Message}
		case apiErr.Code == http.StatusUnauthorized || apiErr.Status == "UNAUTHENTICATED":
			return &shared.AuthError{StatusCode: apiErr.Code, Message: apiErr.Message}
		case apiErr.Code == http.StatusBadRequest && strings.Contains(lower, "api key not valid"):
			return &shared.AuthError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return &shared.TransportError{StatusCode: apiErr.Code, Message: apiErr.Message, Cause: err}
	}
	return classifyByMessage(0, err)
}

func classifyByMessage(status int, err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "permission denied"):
		return &shared.AuthError{StatusCode: status, Permission: true, Message: err.Error()}
	case strings.Contains(lower, "api key not valid"):
		return &shared.AuthError{StatusCode: status, Message: err.Error()}
	}
	return &shared.TransportError{StatusCode: status, Message: err.Error(), Cause: err}
}

func (s *LLMService) openaiClient(creds shared.Credentials) *openai.Client {
	key := clientKey(creds)
	if c, ok := s.clients.Get(key); ok {
		return c.(*openai.Client)
	}
	cfg := openai.DefaultConfig(creds.APIKey)
	cfg.BaseURL = creds.Host + "/v1"
	if s.httpClient != nil {
		cfg.HTTPClient = s.httpClient
	}
	client := openai.NewClientWithConfig(cfg)
	s.clients.SetDefault(key, client)
	return client
}

func (s *LLMService) generateOpenAI(ctx context.Context, creds shared.Credentials, request, model string) (string, error) {
	resp, err := s.openaiClient(creds).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: request},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &shared.UnexpectedResponseError{Message: "response contained no choices"}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &shared.UnexpectedResponseError{Message: "response contained no text"}
	}
	return text, nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &shared.TransportError{Message: "request cancelled", Cause: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return &shared.AuthError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		case http.StatusForbidden:
			return &shared.AuthError{StatusCode: apiErr.HTTPStatusCode, Permission: true, Message: apiErr.Message}
		}
		return &shared.TransportError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized:
			return &shared.AuthError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		case http.StatusForbidden:
			return &shared.AuthError{StatusCode: reqErr.HTTPStatusCode, Permission: true, Message: reqErr.Error()}
		}
		return &shared.TransportError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Cause: err}
	}
	return classifyByMessage(0, err)
}
