package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/shared"
)

const (
	ActivityName_Directives = "DirectivesActivity"
	ActivityName_Draft      = "DraftActivity"
	ActivityName_Advice     = "AdviceActivity"
	ActivityName_Apply      = "ApplyActivity"
)

// LLMActivities runs the four architect steps as Temporal activities.
type LLMActivities struct {
	Runner  *engine.Runner
	Metrics *metrics.Metrics
}

func NewLLMActivities(runner *engine.Runner, m *metrics.Metrics) *LLMActivities {
	return &LLMActivities{Runner: runner, Metrics: m}
}

func (a *LLMActivities) DirectivesActivity(ctx context.Context, req shared.WorkflowRequest) ([]string, error) {
	activity.GetLogger(ctx).Info("Extracting directives", "Model", req.Model)
	_, directives, err := a.Runner.Directives(ctx, req)
	a.observe("directives", err)
	if err != nil {
		return nil, toApplicationError(err)
	}
	return directives, nil
}

func (a *LLMActivities) DraftActivity(ctx context.Context, input shared.DraftActivityInput) (string, error) {
	activity.GetLogger(ctx).Info("Generating initial prompt", "Directives", len(input.Directives))
	draft, err := a.Runner.Draft(ctx, input.Request, input.Directives)
	a.observe("draft", err)
	if err != nil {
		return "", toApplicationError(err)
	}
	return draft, nil
}

func (a *LLMActivities) AdviceActivity(ctx context.Context, input shared.AdviceActivityInput) ([]string, error) {
	activity.GetLogger(ctx).Info("Analyzing prompt", "PromptType", input.PromptType)
	advice, err := a.Runner.Advice(ctx, input.Request, input.PromptText, input.PromptType)
	a.observe("advice", err)
	if err != nil {
		return nil, toApplicationError(err)
	}
	return advice, nil
}

func (a *LLMActivities) ApplyActivity(ctx context.Context, input shared.ApplyActivityInput) (string, error) {
	activity.GetLogger(ctx).Info("Applying advice", "Suggestions", len(input.Advice))
	final, err := a.Runner.Apply(ctx, input.Request, input.PromptText, input.Advice, input.PromptType)
	a.observe("apply", err)
	if err != nil {
		return "", toApplicationError(err)
	}
	return final, nil
}

func (a *LLMActivities) observe(step string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = shared.ErrorKind(err)
	}
	a.Metrics.ObserveStep("temporal", step, outcome)
}

// toApplicationError converts a step failure into a non-retryable
// application error whose type is the error kind and whose message is the
// user-facing text.
func toApplicationError(err error) error {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(shared.UserMessage(err), shared.ErrorKind(err), err)
}
