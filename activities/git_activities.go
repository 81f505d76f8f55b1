package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"promptsmith/services"
	"promptsmith/shared"
)

const (
	ActivityName_Publish          = "PublishActivity"
	ActivityName_CreatePendingRun = "CreatePendingRunActivity"
	ActivityName_SaveRun          = "SaveRunActivity"
)

// GitActivities commits finished prompts into the prompt library.
type GitActivities struct {
	Git *services.GitService
}

func NewGitActivities(git *services.GitService) *GitActivities {
	return &GitActivities{Git: git}
}

// PublishActivity returns the commit hash of the published prompt.
func (a *GitActivities) PublishActivity(ctx context.Context, input shared.PublishActivityInput) (string, error) {
	hash, err := a.Git.Publish(input.Name, input.Content, input.Message)
	if errors.Is(err, services.ErrLibraryDisabled) {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), "LibraryDisabled", err)
	}
	if err != nil {
		return "", err
	}
	activity.GetLogger(ctx).Info("Prompt published", "Name", input.Name, "Commit", hash)
	return hash, nil
}

// RunActivities records run progress in sqlite.
type RunActivities struct {
	Store *services.RunStore
}

func NewRunActivities(store *services.RunStore) *RunActivities {
	return &RunActivities{Store: store}
}

func (a *RunActivities) CreatePendingRunActivity(ctx context.Context, workflowID, request string) error {
	return a.Store.CreatePending(ctx, workflowID, request)
}

func (a *RunActivities) SaveRunActivity(ctx context.Context, rec shared.RunRecord) error {
	return a.Store.SaveRun(ctx, rec)
}
