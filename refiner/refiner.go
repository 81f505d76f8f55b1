// Package refiner rewrites prompts in a single call: a standalone system or
// user prompt, or the next user turn of an ongoing conversation.
package refiner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/shared"
)

type Refiner struct {
	runner  *engine.Runner
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(runner *engine.Runner, m *metrics.Metrics, logger *zap.Logger) *Refiner {
	return &Refiner{runner: runner, metrics: m, logger: logger.Named("refiner")}
}

// Refine returns an improved version of promptText.
func (r *Refiner) Refine(ctx context.Context, req shared.WorkflowRequest, promptText string, promptType shared.PromptType) (string, error) {
	start := time.Now()
	out, err := r.runner.Refine(ctx, req, promptText, promptType)
	r.observe(string(promptType), start, err)
	return out, err
}

// RefineConversation returns an improved next user message given the system
// prompt and the turns so far. Both may be empty.
func (r *Refiner) RefineConversation(ctx context.Context, req shared.WorkflowRequest, systemPrompt string, history []shared.Turn, draft string) (string, error) {
	start := time.Now()
	out, err := r.runner.RefineConversation(ctx, req, systemPrompt, history, draft)
	r.observe("conversation", start, err)
	return out, err
}

func (r *Refiner) observe(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = shared.ErrorKind(err)
		r.logger.Warn("Refine failed", zap.String("kind", kind), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	} else {
		r.logger.Debug("Refine complete", zap.String("kind", kind), zap.Duration("elapsed", time.Since(start)))
	}
	r.metrics.ObserveStep("refiner", kind, outcome)
}
