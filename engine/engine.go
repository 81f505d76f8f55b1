// Package engine runs single generation steps: render the request, call the
// generator, parse the result. Every higher-level flow (architect, advisor,
// refiner, Temporal activities) is composed from these functions.
package engine

import (
	"context"
	"fmt"
	"strings"

	"promptsmith/prompts"
	"promptsmith/shared"
)

// Generator sends one rendered request to a model.
type Generator interface {
	Generate(ctx context.Context, request, model string) (string, error)
}

// RulesProvider supplies the rules document substituted into every template.
type RulesProvider interface {
	Rules(ctx context.Context) (string, error)
}

// Runner holds the two collaborators every step needs.
type Runner struct {
	Gen   Generator
	Rules RulesProvider
}

func New(gen Generator, rules RulesProvider) *Runner {
	return &Runner{Gen: gen, Rules: rules}
}

func (r *Runner) rules(ctx context.Context) (string, error) {
	rules, err := r.Rules.Rules(ctx)
	if err != nil {
		return "", fmt.Errorf("loading rules: %w", err)
	}
	return rules, nil
}

// Directives runs step 1 and returns the raw response and the parsed list.
func (r *Runner) Directives(ctx context.Context, req shared.WorkflowRequest) (string, []string, error) {
	if strings.TrimSpace(req.Description) == "" {
		return "", nil, &shared.ValidationError{Field: "description", Message: "Please enter a description for the AI persona."}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return "", nil, err
	}
	raw, err := r.Gen.Generate(ctx, prompts.BuildDirectivesRequest(req.Description, rules, req.Variables, req.Language), req.Model)
	if err != nil {
		return "", nil, err
	}
	return raw, prompts.ParseList(raw), nil
}

// Draft runs step 2 and returns the initial prompt.
func (r *Runner) Draft(ctx context.Context, req shared.WorkflowRequest, directives []string) (string, error) {
	if strings.TrimSpace(req.Description) == "" {
		return "", &shared.ValidationError{Field: "description", Message: "Please enter a description for the AI persona."}
	}
	if !anyNonBlank(directives) {
		return "", &shared.ValidationError{Field: "directives", Message: "At least one directive is required to generate a prompt."}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return "", err
	}
	return r.Gen.Generate(ctx, prompts.BuildGenerationRequest(req.Description, rules, req.Variables, directives, req.Language), req.Model)
}

// Advice analyzes promptText and returns the parsed suggestions.
func (r *Runner) Advice(ctx context.Context, req shared.WorkflowRequest, promptText string, promptType shared.PromptType) ([]string, error) {
	if strings.TrimSpace(promptText) == "" {
		return nil, &shared.ValidationError{Field: "promptText", Message: fmt.Sprintf("Please enter a %s prompt to analyze.", strings.ToLower(promptType.Label()))}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := r.Gen.Generate(ctx, prompts.BuildAdviceRequest(promptText, promptType, rules, req.Variables, req.Language), req.Model)
	if err != nil {
		return nil, err
	}
	return prompts.ParseList(raw), nil
}

// Apply rewrites promptText so that it incorporates every suggestion.
func (r *Runner) Apply(ctx context.Context, req shared.WorkflowRequest, promptText string, advice []string, promptType shared.PromptType) (string, error) {
	if strings.TrimSpace(promptText) == "" {
		return "", &shared.ValidationError{Field: "promptText", Message: "There is no prompt to refine."}
	}
	if !anyNonBlank(advice) {
		return "", &shared.ValidationError{Field: "advice", Message: "There is no advice to apply."}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return "", err
	}
	return r.Gen.Generate(ctx, prompts.BuildApplyAdviceRequest(promptText, advice, promptType, rules, req.Variables, req.Language), req.Model)
}

// Refine rewrites an existing prompt without a separate analysis step.
func (r *Runner) Refine(ctx context.Context, req shared.WorkflowRequest, promptText string, promptType shared.PromptType) (string, error) {
	if strings.TrimSpace(promptText) == "" {
		return "", &shared.ValidationError{Field: "promptText", Message: fmt.Sprintf("Please enter a %s prompt to refine.", strings.ToLower(promptType.Label()))}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return "", err
	}
	return r.Gen.Generate(ctx, prompts.BuildRefineRequest(promptText, promptType, rules, req.Variables, req.Language), req.Model)
}

// RefineConversation rewrites the next user turn of a conversation.
func (r *Runner) RefineConversation(ctx context.Context, req shared.WorkflowRequest, systemPrompt string, history []shared.Turn, draft string) (string, error) {
	if strings.TrimSpace(draft) == "" {
		return "", &shared.ValidationError{Field: "draft", Message: "Please enter a draft of your next message."}
	}
	rules, err := r.rules(ctx)
	if err != nil {
		return "", err
	}
	return r.Gen.Generate(ctx, prompts.BuildConversationalRequest(systemPrompt, history, draft, rules, req.Variables, req.Language), req.Model)
}

func anyNonBlank(items []string) bool {
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			return true
		}
	}
	return false
}
