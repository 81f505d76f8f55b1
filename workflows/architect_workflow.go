package workflows

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"promptsmith/activities"
	"promptsmith/shared"
)

// ArchitectWorkflow runs the four architect steps back to back, recording
// progress in the runs table. It stops at the first failing step; artifacts
// of earlier steps stay recorded.
func ArchitectWorkflow(ctx workflow.Context, input shared.ArchitectInput) (*shared.ArchitectOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID
	logger.Info("ArchitectWorkflow started", "Description", input.Request.Description, "Model", input.Request.Model)

	save := func(rec shared.RunRecord) {
		rec.WorkflowID = workflowID
		if err := workflow.ExecuteActivity(ctx, activities.ActivityName_SaveRun, rec).Get(ctx, nil); err != nil {
			logger.Warn("Failed to save run state", "Status", rec.Status, "Error", err)
		}
	}

	requestJSON, err := json.Marshal(input.Request)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid request", "ValidationError", err)
	}
	if err := workflow.ExecuteActivity(ctx, activities.ActivityName_CreatePendingRun, workflowID, string(requestJSON)).Get(ctx, nil); err != nil {
		logger.Warn("CreatePendingRunActivity failed, continuing...", "Error", err)
	}

	out := &shared.ArchitectOutput{}
	var (
		failedStep int
		stepErr    error
	)
	defer func() {
		if stepErr == nil {
			return
		}
		// the failure record is written even if the workflow was cancelled
		disconnected, _ := workflow.NewDisconnectedContext(ctx)
		rec := shared.RunRecord{
			WorkflowID:   workflowID,
			Status:       shared.RunStatusFailed,
			Step:         failedStep,
			ErrorDetails: stepErr.Error(),
		}
		if err := workflow.ExecuteActivity(disconnected, activities.ActivityName_SaveRun, rec).Get(disconnected, nil); err != nil {
			logger.Error("Final SaveRunActivity failed", "Error", err)
		}
	}()
	fail := func(step int, err error) (*shared.ArchitectOutput, error) {
		failedStep, stepErr = step, err
		logger.Error("Architect step failed", "Step", step, "Error", err)
		return nil, fmt.Errorf("step %d failed: %w", step, err)
	}

	// 1. Directives
	save(shared.RunRecord{Status: shared.RunStepStatus(1), Step: 1})
	if err := workflow.ExecuteActivity(ctx, activities.ActivityName_Directives, input.Request).Get(ctx, &out.Directives); err != nil {
		return fail(1, err)
	}
	save(shared.RunRecord{Status: shared.RunStepStatus(1), Step: 1, Directives: strings.Join(out.Directives, "\n")})

	// 2. Initial prompt
	save(shared.RunRecord{Status: shared.RunStepStatus(2), Step: 2})
	draftInput := shared.DraftActivityInput{Request: input.Request, Directives: out.Directives}
	if err := workflow.ExecuteActivity(ctx, activities.ActivityName_Draft, draftInput).Get(ctx, &out.InitialPrompt); err != nil {
		return fail(2, err)
	}
	save(shared.RunRecord{Status: shared.RunStepStatus(2), Step: 2, InitialPrompt: out.InitialPrompt})

	// 3. Advice, always for a system prompt
	save(shared.RunRecord{Status: shared.RunStepStatus(3), Step: 3})
	adviceInput := shared.AdviceActivityInput{Request: input.Request, PromptText: out.InitialPrompt, PromptType: shared.PromptTypeSystem}
	if err := workflow.ExecuteActivity(ctx, activities.ActivityName_Advice, adviceInput).Get(ctx, &out.Advice); err != nil {
		return fail(3, err)
	}
	save(shared.RunRecord{Status: shared.RunStepStatus(3), Step: 3, Advice: strings.Join(out.Advice, "\n")})

	// 4. Final prompt
	save(shared.RunRecord{Status: shared.RunStepStatus(4), Step: 4})
	applyInput := shared.ApplyActivityInput{Request: input.Request, PromptText: out.InitialPrompt, Advice: out.Advice, PromptType: shared.PromptTypeSystem}
	if err := workflow.ExecuteActivity(ctx, activities.ActivityName_Apply, applyInput).Get(ctx, &out.FinalPrompt); err != nil {
		return fail(4, err)
	}

	final := shared.RunRecord{Status: shared.RunStatusCompleted, Step: 4, FinalPrompt: out.FinalPrompt}
	if input.Publish {
		name := input.Name
		if strings.TrimSpace(name) == "" {
			name = input.Request.Description
		}
		publishInput := shared.PublishActivityInput{
			Name:    name,
			Content: out.FinalPrompt,
			Message: fmt.Sprintf("Add system prompt: %s", name),
		}
		// a publish failure does not fail the run
		if err := workflow.ExecuteActivity(ctx, activities.ActivityName_Publish, publishInput).Get(ctx, &out.CommitHash); err != nil {
			logger.Warn("Publishing the final prompt failed", "Error", err)
			final.ErrorDetails = fmt.Sprintf("prompt completed but publishing failed: %v", err)
		}
		final.CommitHash = out.CommitHash
	}
	save(final)

	logger.Info("ArchitectWorkflow completed", "Directives", len(out.Directives), "Advice", len(out.Advice))
	return out, nil
}
