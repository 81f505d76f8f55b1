package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptsmith/shared"
)

const testRules = "RULE-1: be specific."

func TestBuildGenerationRequest_VariableSection(t *testing.T) {
	t.Run("all blank variables are omitted", func(t *testing.T) {
		out := BuildGenerationRequest("a helpful code reviewer", testRules, []string{"", "  "}, nil, "English")
		assert.NotContains(t, out, "Variable Integration")
	})

	t.Run("single variable renders one bullet", func(t *testing.T) {
		out := BuildGenerationRequest("a helpful code reviewer", testRules, []string{"{{topic}}"}, nil, "English")
		require.Contains(t, out, "**Variable Integration:**")
		assert.Equal(t, 1, strings.Count(out, "- {{topic}}\n"))
		assert.Equal(t, 1, strings.Count(out, "{{topic}}"))
	})
}

func TestBuildGenerationRequest_Directives(t *testing.T) {
	out := BuildGenerationRequest("a helpful code reviewer", testRules, nil, []string{"Be concise", "Use examples"}, "English")

	idx := strings.Index(out, "**Key Directives to Incorporate:**")
	require.GreaterOrEqual(t, idx, 0)
	section := out[idx:]
	first := strings.Index(section, "- Be concise\n")
	second := strings.Index(section, "- Use examples\n")
	require.Greater(t, first, 0)
	require.Greater(t, second, first, "directives must keep their order")

	assert.Contains(t, out, "a helpful code reviewer")
	assert.Contains(t, out, testRules)
}

func TestBuildGenerationRequest_BlankDirectivesOmitted(t *testing.T) {
	out := BuildGenerationRequest("persona", testRules, nil, []string{" ", ""}, "English")
	assert.NotContains(t, out, "Key Directives to Incorporate")
}

func TestBuilders_Idempotent(t *testing.T) {
	vars := []string{"{{user_input}}", ""}
	directives := []string{"Be concise"}

	assert.Equal(t,
		BuildDirectivesRequest("persona", testRules, vars, "French"),
		BuildDirectivesRequest("persona", testRules, vars, "French"))
	assert.Equal(t,
		BuildGenerationRequest("persona", testRules, vars, directives, "French"),
		BuildGenerationRequest("persona", testRules, vars, directives, "French"))
	assert.Equal(t,
		BuildAdviceRequest("draft", shared.PromptTypeUser, testRules, vars, "French"),
		BuildAdviceRequest("draft", shared.PromptTypeUser, testRules, vars, "French"))
	assert.Equal(t,
		BuildApplyAdviceRequest("draft", []string{"a", "b"}, shared.PromptTypeUser, testRules, vars, "French"),
		BuildApplyAdviceRequest("draft", []string{"a", "b"}, shared.PromptTypeUser, testRules, vars, "French"))
}

func TestBuildDirectivesRequest(t *testing.T) {
	out := BuildDirectivesRequest("a marketing expert", testRules, []string{"${customer_name}"}, "German")

	assert.Contains(t, out, "a marketing expert")
	assert.Contains(t, out, "raw bullet list")
	assert.Contains(t, out, "You must generate the output in German.")
	assert.Contains(t, out, "- ${customer_name}\n")
	assert.NotContains(t, out, "Key Directives to Incorporate")
}

func TestBuildAdviceRequest_PromptType(t *testing.T) {
	sys := BuildAdviceRequest("You are a bot.", shared.PromptTypeSystem, testRules, nil, "")
	usr := BuildAdviceRequest("Summarize this.", shared.PromptTypeUser, testRules, nil, "")

	assert.Contains(t, sys, "System Prompt to analyze")
	assert.Contains(t, usr, "User Prompt to analyze")
	assert.Contains(t, usr, "You must generate the output in English.")
}

func TestBuildApplyAdviceRequest_ListsEverySuggestion(t *testing.T) {
	out := BuildApplyAdviceRequest("You are a bot.", []string{"Add a persona", "  ", "Define output format"}, shared.PromptTypeSystem, testRules, nil, "English")

	assert.Contains(t, out, "- Add a persona\n- Define output format\n")
	assert.Contains(t, out, "You are a bot.")
}

func TestBuildConversationalRequest_Defaults(t *testing.T) {
	out := BuildConversationalRequest("", nil, "tell me more", testRules, nil, "English")
	assert.Contains(t, out, "No system prompt provided.")
	assert.Contains(t, out, "No conversation history provided.")
	assert.Contains(t, out, "tell me more")

	out = BuildConversationalRequest("You are terse.", []shared.Turn{
		{Role: "user", Content: "hi"},
		{Role: "ai", Content: "hello"},
		{Role: "user", Content: "  "},
	}, "next", testRules, nil, "English")
	assert.Contains(t, out, "User: hi\nAssistant: hello\n")
}

func TestBuildRefineRequest(t *testing.T) {
	out := BuildRefineRequest("Write a poem.", shared.PromptTypeUser, testRules, nil, "English")
	assert.Contains(t, out, "Existing User Prompt")
	assert.Contains(t, out, "used as a user prompt")
}

func TestDefaultRules(t *testing.T) {
	assert.Contains(t, DefaultRules(), "Mastering User Prompts")
}
