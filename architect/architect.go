// Package architect drives the four-step System Prompt Architect workflow:
// extract directives, generate a draft, analyze it, apply the advice.
package architect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/shared"
)

const (
	StepDirectives = 1
	StepDraft      = 2
	StepAdvice     = 3
	StepApply      = 4
)

var (
	// ErrBusy is returned when an action is triggered while a step runs.
	// The state is left untouched.
	ErrBusy = errors.New("a step is already running")
	// ErrOutOfOrder is returned when a step's input artifact is missing.
	ErrOutOfOrder = errors.New("the previous step has not completed")
	// ErrNotEditable is returned by directive edits outside Step1Done.
	ErrNotEditable = errors.New("directives can only be changed before generating the prompt")
)

var progressLabels = [...]string{
	StepDirectives: "Step 1/4: Extracting key directives...",
	StepDraft:      "Step 2/4: Generating initial prompt...",
	StepAdvice:     "Step 3/4: Analyzing for improvements...",
	StepApply:      "Step 4/4: Applying refinements...",
}

var stepNames = [...]string{
	StepDirectives: "directives",
	StepDraft:      "draft",
	StepAdvice:     "advice",
	StepApply:      "apply",
}

// Architect is one workflow instance. All methods are safe for concurrent
// use; the lock is never held across a generation call.
type Architect struct {
	runner      *engine.Runner
	autoAdvance bool
	observer    func(Snapshot)
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu        sync.Mutex
	req       shared.WorkflowRequest
	status    Status
	current   int
	completed int // steps 1..completed have succeeded
	art       Artifacts
	err       error
	running   int
	progress  string
}

type Option func(*Architect)

// WithAutoAdvance controls whether a successful step 2 chains into steps 3
// and 4. Default true.
func WithAutoAdvance(on bool) Option {
	return func(a *Architect) { a.autoAdvance = on }
}

// WithObserver registers fn to receive a snapshot after every change. fn is
// called without the lock held.
func WithObserver(fn func(Snapshot)) Option {
	return func(a *Architect) { a.observer = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Architect) { a.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Architect) { a.logger = l }
}

func New(runner *engine.Runner, req shared.WorkflowRequest, opts ...Option) *Architect {
	a := &Architect{
		runner:      runner,
		req:         req,
		autoAdvance: true,
		logger:      zap.NewNop(),
		current:     StepDirectives,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("architect")
	return a
}

// Reset replaces the request and clears every artifact and error.
func (a *Architect) Reset(req shared.WorkflowRequest) (Snapshot, error) {
	a.mu.Lock()
	if a.running != 0 {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, ErrBusy
	}
	a.req = req
	a.status = Status{}
	a.current = StepDirectives
	a.completed = 0
	a.art = Artifacts{}
	a.err = nil
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
	return snap, nil
}

func (a *Architect) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// GetDirectives runs step 1. It discards every previous artifact.
func (a *Architect) GetDirectives(ctx context.Context) (Snapshot, error) {
	return a.run(ctx, StepDirectives, StepDirectives, false)
}

// GeneratePrompt runs step 2 from the current, possibly edited, directives.
func (a *Architect) GeneratePrompt(ctx context.Context) (Snapshot, error) {
	to := StepDraft
	if a.autoAdvance {
		to = StepApply
	}
	return a.run(ctx, StepDraft, to, false)
}

// AnalyzeDraft runs step 3 on the initial prompt.
func (a *Architect) AnalyzeDraft(ctx context.Context) (Snapshot, error) {
	to := StepAdvice
	if a.autoAdvance {
		to = StepApply
	}
	return a.run(ctx, StepAdvice, to, false)
}

// ApplyAdvice runs step 4.
func (a *Architect) ApplyAdvice(ctx context.Context) (Snapshot, error) {
	return a.run(ctx, StepApply, StepApply, false)
}

// Automate runs steps 1 through 4 back to back with progress labels and
// stops at the first failure.
func (a *Architect) Automate(ctx context.Context) (Snapshot, error) {
	return a.run(ctx, StepDirectives, StepApply, true)
}

// EditDirective replaces directive i. Only allowed while step 1 is the last
// completed step and nothing is running.
func (a *Architect) EditDirective(i int, text string) (Snapshot, error) {
	return a.editDirectives(func(d []string) ([]string, error) {
		if i < 0 || i >= len(d) {
			return nil, indexError(i, len(d))
		}
		d[i] = text
		return d, nil
	})
}

// RemoveDirective deletes directive i; later entries shift down.
func (a *Architect) RemoveDirective(i int) (Snapshot, error) {
	return a.editDirectives(func(d []string) ([]string, error) {
		if i < 0 || i >= len(d) {
			return nil, indexError(i, len(d))
		}
		return append(d[:i], d[i+1:]...), nil
	})
}

func indexError(i, n int) error {
	return &shared.ValidationError{Field: "index", Message: fmt.Sprintf("directive %d does not exist (have %d)", i, n)}
}

func (a *Architect) editDirectives(fn func([]string) ([]string, error)) (Snapshot, error) {
	a.mu.Lock()
	if a.running != 0 {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, ErrBusy
	}
	if a.completed != StepDirectives {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, ErrNotEditable
	}
	d, err := fn(append([]string(nil), a.art.Directives...))
	if err != nil {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, err
	}
	a.art.Directives = d
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)
	return snap, nil
}

// stepInput is the copy of state a step call works from.
type stepInput struct {
	req        shared.WorkflowRequest
	directives []string
	initial    string
	advice     []string
}

// run is the driver loop. It checks the first step can start, then executes
// one step at a time, records the result and decides whether to continue.
// The running flag stays set across the whole chain. Step failures are
// recorded in the state; the returned error only reports a refused start.
func (a *Architect) run(ctx context.Context, from, to int, labels bool) (Snapshot, error) {
	a.mu.Lock()
	if a.running != 0 {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, ErrBusy
	}
	if err := a.readyLocked(from); err != nil {
		var valErr *shared.ValidationError
		if errors.As(err, &valErr) {
			a.err = err
		}
		snap := a.snapshotLocked()
		a.mu.Unlock()
		a.notify(snap)
		return snap, err
	}
	a.startLocked(from, labels)
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.notify(snap)

	for step := from; ; step++ {
		a.mu.Lock()
		in := a.inputLocked()
		a.mu.Unlock()

		out, err := a.exec(ctx, step, in)

		a.mu.Lock()
		if err != nil {
			a.failLocked(step, err)
			snap := a.snapshotLocked()
			a.mu.Unlock()
			a.notify(snap)
			return snap, nil
		}
		a.completeLocked(step, out)
		if step >= to {
			a.running, a.progress = 0, ""
			snap := a.snapshotLocked()
			a.mu.Unlock()
			a.notify(snap)
			return snap, nil
		}
		a.startLocked(step+1, labels)
		snap := a.snapshotLocked()
		a.mu.Unlock()
		a.notify(snap)
	}
}

// readyLocked reports whether step may start given the completed prefix.
func (a *Architect) readyLocked(step int) error {
	if a.completed < step-1 {
		return fmt.Errorf("%w: step %d needs step %d", ErrOutOfOrder, step, step-1)
	}
	switch step {
	case StepDirectives:
		if strings.TrimSpace(a.req.Description) == "" {
			return &shared.ValidationError{Field: "description", Message: "Please enter a description for the AI persona."}
		}
	case StepDraft:
		for _, d := range a.art.Directives {
			if strings.TrimSpace(d) != "" {
				return nil
			}
		}
		return &shared.ValidationError{Field: "directives", Message: "At least one directive is required to generate a prompt."}
	case StepApply:
		if len(a.art.Advice) == 0 {
			return &shared.ValidationError{Field: "advice", Message: "There is no advice to apply."}
		}
	}
	return nil
}

func (a *Architect) startLocked(step int, labels bool) {
	a.art.clearFrom(step)
	a.completed = step - 1
	a.err = nil
	a.running = step
	a.current = step
	a.status = Status{Step: step, Phase: PhaseRunning}
	if labels {
		a.progress = progressLabels[step]
	} else {
		a.progress = ""
	}
}

func (a *Architect) failLocked(step int, err error) {
	a.running, a.progress = 0, ""
	a.err = err
	a.status = Status{Step: step, Phase: PhaseFailed}
	a.metrics.ObserveStep("architect", stepNames[step], shared.ErrorKind(err))
	a.logger.Warn("Step failed", zap.Int("step", step), zap.String("kind", shared.ErrorKind(err)), zap.Error(err))
}

func (a *Architect) completeLocked(step int, out Artifacts) {
	switch step {
	case StepDirectives:
		a.art.DirectivesText, a.art.Directives = out.DirectivesText, out.Directives
	case StepDraft:
		a.art.InitialPrompt = out.InitialPrompt
	case StepAdvice:
		a.art.Advice = out.Advice
	case StepApply:
		a.art.FinalPrompt = out.FinalPrompt
	}
	a.completed = step
	a.status = Status{Step: step, Phase: PhaseDone}
	a.metrics.ObserveStep("architect", stepNames[step], "ok")
	a.logger.Info("Step complete", zap.Int("step", step))
}

func (a *Architect) inputLocked() stepInput {
	return stepInput{
		req:        a.req,
		directives: append([]string(nil), a.art.Directives...),
		initial:    a.art.InitialPrompt,
		advice:     append([]string(nil), a.art.Advice...),
	}
}

// exec performs the generation call of one step. Step 3 and 4 always treat
// the draft as a system prompt.
func (a *Architect) exec(ctx context.Context, step int, in stepInput) (Artifacts, error) {
	var (
		out Artifacts
		err error
	)
	switch step {
	case StepDirectives:
		out.DirectivesText, out.Directives, err = a.runner.Directives(ctx, in.req)
	case StepDraft:
		out.InitialPrompt, err = a.runner.Draft(ctx, in.req, in.directives)
	case StepAdvice:
		out.Advice, err = a.runner.Advice(ctx, in.req, in.initial, shared.PromptTypeSystem)
	case StepApply:
		out.FinalPrompt, err = a.runner.Apply(ctx, in.req, in.initial, in.advice, shared.PromptTypeSystem)
	default:
		err = fmt.Errorf("unknown step %d", step)
	}
	return out, err
}

func (a *Architect) snapshotLocked() Snapshot {
	completed := make([]int, a.completed)
	for i := range completed {
		completed[i] = i + 1
	}
	snap := Snapshot{
		Request:     a.req,
		Status:      a.status,
		CurrentStep: a.current,
		Completed:   completed,
		Artifacts:   a.art.clone(),
		Running:     a.running,
		Progress:    a.progress,
	}
	snap.Request.Variables = append([]string(nil), a.req.Variables...)
	if a.err != nil {
		snap.Error = shared.UserMessage(a.err)
		snap.ErrorKind = shared.ErrorKind(a.err)
	}
	return snap
}

func (a *Architect) notify(snap Snapshot) {
	if a.observer != nil {
		a.observer(snap)
	}
}
