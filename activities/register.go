package activities

import (
	"go.temporal.io/sdk/activity"
)

// Registry is satisfied by a Temporal worker and by the test workflow
// environment.
type Registry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register registers every activity under its ActivityName_* constant.
func Register(r Registry, llm *LLMActivities, git *GitActivities, runs *RunActivities) {
	r.RegisterActivityWithOptions(llm.DirectivesActivity, activity.RegisterOptions{Name: ActivityName_Directives})
	r.RegisterActivityWithOptions(llm.DraftActivity, activity.RegisterOptions{Name: ActivityName_Draft})
	r.RegisterActivityWithOptions(llm.AdviceActivity, activity.RegisterOptions{Name: ActivityName_Advice})
	r.RegisterActivityWithOptions(llm.ApplyActivity, activity.RegisterOptions{Name: ActivityName_Apply})

	r.RegisterActivityWithOptions(git.PublishActivity, activity.RegisterOptions{Name: ActivityName_Publish})

	r.RegisterActivityWithOptions(runs.CreatePendingRunActivity, activity.RegisterOptions{Name: ActivityName_CreatePendingRun})
	r.RegisterActivityWithOptions(runs.SaveRunActivity, activity.RegisterOptions{Name: ActivityName_SaveRun})
}
