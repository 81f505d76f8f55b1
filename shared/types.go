// shared/types.go
package shared

import (
	"fmt"
	"strings"
	"time"
)

// PromptType selects which kind of prompt a template targets.
type PromptType string

const (
	PromptTypeSystem PromptType = "system"
	PromptTypeUser   PromptType = "user"
)

// ParsePromptType accepts "system" or "user" (case-insensitive).
func ParsePromptType(s string) (PromptType, error) {
	switch PromptType(strings.ToLower(strings.TrimSpace(s))) {
	case PromptTypeSystem:
		return PromptTypeSystem, nil
	case PromptTypeUser:
		return PromptTypeUser, nil
	}
	return "", &ValidationError{Field: "promptType", Message: fmt.Sprintf("unknown prompt type %q (want system or user)", s)}
}

// Label is the human readable form used inside templates ("System", "User").
func (t PromptType) Label() string {
	if t == PromptTypeUser {
		return "User"
	}
	return "System"
}

// WorkflowRequest is the immutable input of one architect run.
type WorkflowRequest struct {
	Description string   `json:"description"`
	Model       string   `json:"model"`
	Language    string   `json:"language"`
	Variables   []string `json:"variables,omitempty"`
}

// Equal reports whether two requests would render identical templates.
func (r WorkflowRequest) Equal(o WorkflowRequest) bool {
	if r.Description != o.Description || r.Model != o.Model || r.Language != o.Language {
		return false
	}
	if len(r.Variables) != len(o.Variables) {
		return false
	}
	for i := range r.Variables {
		if r.Variables[i] != o.Variables[i] {
			return false
		}
	}
	return true
}

// Turn is one message of a conversation handed to the conversational refiner.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Credentials is the resolved key/host pair for one generation call.
type Credentials struct {
	Provider  string
	APIKey    string
	Host      string
	KeySource KeySource
}

// KeySource tells where the API key came from.
type KeySource string

const (
	KeySourceStorage     KeySource = "storage"
	KeySourceEnvironment KeySource = "environment"
	KeySourceNone        KeySource = "none"
)

// --- Durable automation (Temporal) ---

// ArchitectInput defines the input for the durable architect workflow.
type ArchitectInput struct {
	Request WorkflowRequest
	Publish bool   // commit the final prompt to the prompt library
	Name    string // library entry name, defaults to the description
}

// ArchitectOutput defines the result of the durable architect workflow.
type ArchitectOutput struct {
	Directives    []string
	InitialPrompt string
	Advice        []string
	FinalPrompt   string
	CommitHash    string
}

// DraftActivityInput is the input of the step 2 activity.
type DraftActivityInput struct {
	Request    WorkflowRequest
	Directives []string
}

// AdviceActivityInput is the input of the step 3 activity.
type AdviceActivityInput struct {
	Request    WorkflowRequest
	PromptText string
	PromptType PromptType
}

// ApplyActivityInput is the input of the step 4 activity.
type ApplyActivityInput struct {
	Request    WorkflowRequest
	PromptText string
	Advice     []string
	PromptType PromptType
}

// PublishActivityInput is the input of the prompt library activity.
type PublishActivityInput struct {
	Name    string
	Content string
	Message string
}

// Run statuses stored in the runs table.
const (
	RunStatusPending   = "PENDING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// RunStepStatus is the status stored while step k is executing.
func RunStepStatus(step int) string {
	return fmt.Sprintf("STEP_%d", step)
}

// RunRecord is one durable automate run as stored in sqlite. Empty strings
// in an update leave the stored column untouched.
type RunRecord struct {
	WorkflowID    string    `json:"workflowId"`
	Request       string    `json:"request,omitempty"` // JSON encoded WorkflowRequest
	Status        string    `json:"status"`
	Step          int       `json:"step"`
	Directives    string    `json:"directives,omitempty"` // newline separated
	InitialPrompt string    `json:"initialPrompt,omitempty"`
	Advice        string    `json:"advice,omitempty"` // newline separated
	FinalPrompt   string    `json:"finalPrompt,omitempty"`
	CommitHash    string    `json:"commitHash,omitempty"`
	ErrorDetails  string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
