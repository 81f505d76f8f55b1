package architect

import (
	"fmt"

	"promptsmith/shared"
)

// Phase is the lifecycle phase of the current step.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDone
	PhaseFailed
)

// Status is the state machine position: Idle, StepNRunning, StepNDone or
// Failed(N).
type Status struct {
	Step  int
	Phase Phase
}

func (s Status) String() string {
	switch s.Phase {
	case PhaseRunning:
		return fmt.Sprintf("Step%dRunning", s.Step)
	case PhaseDone:
		return fmt.Sprintf("Step%dDone", s.Step)
	case PhaseFailed:
		return fmt.Sprintf("Failed(%d)", s.Step)
	}
	return "Idle"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the String form.
func (s *Status) UnmarshalText(b []byte) error {
	text := string(b)
	if text == "Idle" {
		*s = Status{}
		return nil
	}
	var step int
	if _, err := fmt.Sscanf(text, "Failed(%d)", &step); err == nil {
		*s = Status{Step: step, Phase: PhaseFailed}
		return nil
	}
	var phase string
	if _, err := fmt.Sscanf(text, "Step%d%s", &step, &phase); err == nil {
		switch phase {
		case "Running":
			*s = Status{Step: step, Phase: PhaseRunning}
			return nil
		case "Done":
			*s = Status{Step: step, Phase: PhaseDone}
			return nil
		}
	}
	return fmt.Errorf("invalid status %q", text)
}

// Artifacts holds the output of each step. A field is empty until its step
// has succeeded.
type Artifacts struct {
	DirectivesText string   `json:"directivesText,omitempty"`
	Directives     []string `json:"directives"`
	InitialPrompt  string   `json:"initialPrompt,omitempty"`
	Advice         []string `json:"advice"`
	FinalPrompt    string   `json:"finalPrompt,omitempty"`
}

func (a Artifacts) clone() Artifacts {
	a.Directives = append([]string(nil), a.Directives...)
	a.Advice = append([]string(nil), a.Advice...)
	return a
}

// clearFrom drops the artifacts of step and every later step.
func (a *Artifacts) clearFrom(step int) {
	if step <= 1 {
		a.DirectivesText, a.Directives = "", nil
	}
	if step <= 2 {
		a.InitialPrompt = ""
	}
	if step <= 3 {
		a.Advice = nil
	}
	a.FinalPrompt = ""
}

// Snapshot is a copy of the workflow state for rendering.
type Snapshot struct {
	Request     shared.WorkflowRequest `json:"request"`
	Status      Status                 `json:"status"`
	CurrentStep int                    `json:"currentStep"`
	Completed   []int                  `json:"completed"`
	Artifacts   Artifacts              `json:"artifacts"`
	Error       string                 `json:"error,omitempty"`
	ErrorKind   string                 `json:"errorKind,omitempty"`
	Running     int                    `json:"running"`
	Progress    string                 `json:"progress,omitempty"`
}

// IsCompleted reports whether step is in the completed set.
func (s Snapshot) IsCompleted(step int) bool {
	return step >= 1 && step <= len(s.Completed)
}
