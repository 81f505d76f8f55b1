package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"promptsmith/shared"
	"promptsmith/workflows"
)

const workflowIDPrefix = "architect-"

// Starter launches durable architect runs.
type Starter struct {
	Client    client.Client
	TaskQueue string
}

// StartArchitect starts ArchitectWorkflow and returns its workflow ID.
func (s *Starter) StartArchitect(ctx context.Context, input shared.ArchitectInput) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        workflowIDPrefix + uuid.NewString(),
		TaskQueue: s.TaskQueue,
	}
	run, err := s.Client.ExecuteWorkflow(ctx, opts, workflows.ArchitectWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("start architect workflow: %w", err)
	}
	return run.GetID(), nil
}

// WaitArchitect blocks until the run finishes and returns its output.
func (s *Starter) WaitArchitect(ctx context.Context, workflowID string) (*shared.ArchitectOutput, error) {
	var out shared.ArchitectOutput
	if err := s.Client.GetWorkflow(ctx, workflowID, "").Get(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
