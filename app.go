package main

import (
	"database/sql"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"promptsmith/activities"
	"promptsmith/config"
	"promptsmith/db"
	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/services"
	"promptsmith/shared"
	"promptsmith/temporal"
)

// app holds the services shared by every command.
type app struct {
	db       *sql.DB
	metrics  *metrics.Metrics
	settings *services.SettingsService
	llm      *services.LLMService
	runner   *engine.Runner
	library  *services.GitService
	runs     *services.RunStore
	temporal client.Client
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	database, err := db.InitDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	source, err := services.NewRulesSource(cfg.Rules)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("rules source: %w", err)
	}

	m := metrics.New()
	settings := services.NewSettingsService(database, cfg.Generation, logger)
	llm := services.NewLLMService(settings, cfg.Generation, logger, services.WithMetrics(m))
	settings.OnChange(llm.Invalidate)

	return &app{
		db:       database,
		metrics:  m,
		settings: settings,
		llm:      llm,
		runner:   engine.New(llm, services.NewRulesService(source, logger)),
		library:  services.NewGitService(cfg.Library.Path, cfg.Library.AuthorName, cfg.Library.AuthorEmail, logger),
		runs:     services.NewRunStore(database, logger),
	}, nil
}

// connectTemporal dials Temporal once; later calls reuse the client.
func (a *app) connectTemporal(cfg config.TemporalConfig, logger *zap.Logger) (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}
	c, err := temporal.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.temporal = c
	return c, nil
}

func (a *app) newWorker(c client.Client, taskQueue string) worker.Worker {
	return temporal.NewWorker(c, taskQueue,
		activities.NewLLMActivities(a.runner, a.metrics),
		activities.NewGitActivities(a.library),
		activities.NewRunActivities(a.runs),
	)
}

func (a *app) request(description, model, language string, variables []string) shared.WorkflowRequest {
	if model == "" {
		model = a.llm.DefaultModel()
	}
	if language == "" {
		language = cfg.Generation.OutputLanguage
	}
	return shared.WorkflowRequest{Description: description, Model: model, Language: language, Variables: variables}
}

func (a *app) Close() {
	if a.temporal != nil {
		a.temporal.Close()
	}
	a.db.Close()
}
