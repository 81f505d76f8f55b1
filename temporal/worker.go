// temporal/worker.go
package temporal

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"promptsmith/activities"
	"promptsmith/workflows"
)

// NewWorker creates a worker on taskQueue with the architect workflow and
// every activity registered.
func NewWorker(c client.Client, taskQueue string, llm *activities.LLMActivities, git *activities.GitActivities, runs *activities.RunActivities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ArchitectWorkflow)
	activities.Register(w, llm, git, runs)
	return w
}

// RunWorker blocks until the worker stops or an interrupt signal arrives.
func RunWorker(w worker.Worker, taskQueue string, logger *zap.Logger) error {
	logger.Info("Starting Temporal worker", zap.String("taskQueue", taskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("Temporal worker Run() failed", zap.Error(err))
		return err
	}
	logger.Info("Temporal worker stopped gracefully")
	return nil
}
