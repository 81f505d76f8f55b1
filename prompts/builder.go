// Package prompts renders the request text sent to the language model.
//
// Every builder is a pure function of its arguments: identical inputs yield
// byte-identical requests. Optional sections (variables, directives) are
// omitted when every entry is blank.
package prompts

import (
	"embed"
	"strings"
	"text/template"

	"promptsmith/shared"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed rules/systemPromptRules.txt
var defaultRules string

// DefaultRules returns the rules document shipped with the binary.
func DefaultRules() string {
	return defaultRules
}

const defaultLanguage = "English"

var templates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"variablesSection":  VariablesSection,
	"directivesSection": DirectivesSection,
	"bulletList":        bulletList,
}).ParseFS(templateFS, "templates/*.tmpl"))

type templateData struct {
	Rules           string
	Description     string
	PromptText      string
	PromptType      shared.PromptType
	PromptTypeLabel string
	SystemPrompt    string
	History         string
	Draft           string
	Language        string
	Variables       []string
	Directives      []string
	Advice          []string
}

// BuildDirectivesRequest asks for the key directives of a persona as a raw
// bullet list.
func BuildDirectivesRequest(description, rules string, variables []string, language string) string {
	return render("directives.tmpl", templateData{
		Rules:       rules,
		Description: description,
		Variables:   variables,
		Language:    languageOrDefault(language),
	})
}

// BuildGenerationRequest asks for the final system prompt body.
func BuildGenerationRequest(description, rules string, variables, directives []string, language string) string {
	return render("generate.tmpl", templateData{
		Rules:       rules,
		Description: description,
		Variables:   variables,
		Directives:  directives,
		Language:    languageOrDefault(language),
	})
}

// BuildAdviceRequest asks for improvement suggestions for a prompt.
func BuildAdviceRequest(promptText string, promptType shared.PromptType, rules string, variables []string, language string) string {
	return render("advice.tmpl", typedData(promptText, promptType, rules, variables, language))
}

// BuildApplyAdviceRequest asks for a rewrite of promptText incorporating
// every suggestion in advice.
func BuildApplyAdviceRequest(promptText string, advice []string, promptType shared.PromptType, rules string, variables []string, language string) string {
	data := typedData(promptText, promptType, rules, variables, language)
	data.Advice = advice
	return render("apply.tmpl", data)
}

// BuildRefineRequest asks for a single-shot optimization of an existing prompt.
func BuildRefineRequest(promptText string, promptType shared.PromptType, rules string, variables []string, language string) string {
	return render("refine.tmpl", typedData(promptText, promptType, rules, variables, language))
}

// BuildConversationalRequest asks for a refined next user turn given the
// system prompt and the conversation so far.
func BuildConversationalRequest(systemPrompt string, history []shared.Turn, draft, rules string, variables []string, language string) string {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = "No system prompt provided."
	}
	return render("conversation.tmpl", templateData{
		Rules:        rules,
		SystemPrompt: systemPrompt,
		History:      formatHistory(history),
		Draft:        draft,
		Variables:    variables,
		Language:     languageOrDefault(language),
	})
}

// VariablesSection renders the "Variable Integration" section, or "" when
// no variable is present.
func VariablesSection(variables []string) string {
	present := nonBlank(variables)
	if len(present) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n**Variable Integration:**\n")
	b.WriteString("The prompt must include each of the following placeholders verbatim, exactly as written, where its value belongs:\n")
	b.WriteString(bulletList(present))
	return b.String()
}

// DirectivesSection renders the "Key Directives to Incorporate" section, or
// "" when no directive is present.
func DirectivesSection(directives []string) string {
	present := nonBlank(directives)
	if len(present) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n**Key Directives to Incorporate:**\n")
	b.WriteString("The System Prompt must honor every one of these directives:\n")
	b.WriteString(bulletList(present))
	return b.String()
}

func typedData(promptText string, promptType shared.PromptType, rules string, variables []string, language string) templateData {
	if promptType == "" {
		promptType = shared.PromptTypeSystem
	}
	return templateData{
		Rules:           rules,
		PromptText:      promptText,
		PromptType:      promptType,
		PromptTypeLabel: promptType.Label(),
		Variables:       variables,
		Language:        languageOrDefault(language),
	}
}

func render(name string, data templateData) string {
	var b strings.Builder
	// templates are parsed at init and only reference fields of templateData
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		panic("prompts: executing " + name + ": " + err.Error())
	}
	return b.String()
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range nonBlank(items) {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatHistory(history []shared.Turn) string {
	var b strings.Builder
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "User"
		if strings.EqualFold(turn.Role, "assistant") || strings.EqualFold(turn.Role, "ai") || strings.EqualFold(turn.Role, "model") {
			role = "Assistant"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "No conversation history provided."
	}
	return strings.TrimRight(b.String(), "\n")
}

func languageOrDefault(language string) string {
	if strings.TrimSpace(language) == "" {
		return defaultLanguage
	}
	return language
}
