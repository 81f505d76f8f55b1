// Package advisor analyzes an existing system or user prompt and applies the
// resulting advice. Each prompt type has its own track; tracks never share
// state and may run concurrently.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promptsmith/engine"
	"promptsmith/metrics"
	"promptsmith/shared"
)

// ErrBusy is returned when a track is already analyzing or applying.
var ErrBusy = errors.New("this prompt is already being processed")

// TrackSnapshot is a copy of one track's state.
type TrackSnapshot struct {
	PromptType shared.PromptType `json:"promptType"`
	PromptText string            `json:"promptText"`
	Advice     []string          `json:"advice"`
	Refined    string            `json:"refined,omitempty"`
	Analyzing  bool              `json:"analyzing"`
	Applying   bool              `json:"applying"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
}

// Track is the analyze/apply state of one prompt type.
type Track struct {
	promptType shared.PromptType
	runner     *engine.Runner
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu        sync.Mutex
	req       shared.WorkflowRequest
	text      string
	advice    []string
	refined   string
	analyzing bool
	applying  bool
	err       error
}

func (t *Track) Snapshot() TrackSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Track) snapshotLocked() TrackSnapshot {
	snap := TrackSnapshot{
		PromptType: t.promptType,
		PromptText: t.text,
		Advice:     append([]string(nil), t.advice...),
		Refined:    t.refined,
		Analyzing:  t.analyzing,
		Applying:   t.applying,
	}
	if t.err != nil {
		snap.Error = shared.UserMessage(t.err)
		snap.ErrorKind = shared.ErrorKind(t.err)
	}
	return snap
}

// Err returns the error recorded by the last action, if any.
func (t *Track) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Analyze stores promptText and asks for improvement suggestions. A blank
// text is rejected before any call. Generation failures are recorded in the
// track; the returned error only reports a refused start.
func (t *Track) Analyze(ctx context.Context, promptText string) (TrackSnapshot, error) {
	t.mu.Lock()
	if t.analyzing || t.applying {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, ErrBusy
	}
	if strings.TrimSpace(promptText) == "" {
		t.err = &shared.ValidationError{Field: "promptText", Message: fmt.Sprintf("Please enter a %s prompt to analyze.", strings.ToLower(t.promptType.Label()))}
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, t.err
	}
	t.text = promptText
	t.advice, t.refined, t.err = nil, "", nil
	t.analyzing = true
	req := t.req
	t.mu.Unlock()

	advice, err := t.runner.Advice(ctx, req, promptText, t.promptType)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.analyzing = false
	t.record("analyze", err)
	if err == nil {
		t.advice = advice
	}
	return t.snapshotLocked(), nil
}

// Apply rewrites the analyzed prompt with the current advice. The refined
// text replaces the previous one; the prompt text itself is never changed.
func (t *Track) Apply(ctx context.Context) (TrackSnapshot, error) {
	t.mu.Lock()
	if t.analyzing || t.applying {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, ErrBusy
	}
	if len(t.advice) == 0 {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, &shared.ValidationError{Field: "advice", Message: "There is no advice to apply."}
	}
	t.err = nil
	t.applying = true
	req, text, advice := t.req, t.text, append([]string(nil), t.advice...)
	t.mu.Unlock()

	refined, err := t.runner.Apply(ctx, req, text, advice, t.promptType)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.applying = false
	t.record("apply", err)
	if err == nil {
		t.refined = refined
	}
	return t.snapshotLocked(), nil
}

func (t *Track) record(phase string, err error) {
	t.err = err
	outcome := "ok"
	if err != nil {
		outcome = shared.ErrorKind(err)
		t.logger.Warn("Advisor call failed", zap.String("phase", phase), zap.String("type", string(t.promptType)), zap.Error(err))
	}
	t.metrics.ObserveStep("advisor", string(t.promptType)+"_"+phase, outcome)
}

// Advisor owns the system and user tracks.
type Advisor struct {
	tracks map[shared.PromptType]*Track
}

type Option func(*Track)

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Track) { t.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Track) { t.logger = l.Named("advisor") }
}

// New creates both tracks. req supplies model, language and variables.
func New(runner *engine.Runner, req shared.WorkflowRequest, opts ...Option) *Advisor {
	a := &Advisor{tracks: map[shared.PromptType]*Track{}}
	for _, pt := range []shared.PromptType{shared.PromptTypeSystem, shared.PromptTypeUser} {
		t := &Track{promptType: pt, runner: runner, req: req, logger: zap.NewNop()}
		for _, opt := range opts {
			opt(t)
		}
		a.tracks[pt] = t
	}
	return a
}

// Track returns the track for promptType.
func (a *Advisor) Track(promptType shared.PromptType) (*Track, error) {
	t, ok := a.tracks[promptType]
	if !ok {
		return nil, &shared.ValidationError{Field: "promptType", Message: fmt.Sprintf("unknown prompt type %q", promptType)}
	}
	return t, nil
}

func (a *Advisor) Analyze(ctx context.Context, promptType shared.PromptType, promptText string) (TrackSnapshot, error) {
	t, err := a.Track(promptType)
	if err != nil {
		return TrackSnapshot{}, err
	}
	return t.Analyze(ctx, promptText)
}

func (a *Advisor) Apply(ctx context.Context, promptType shared.PromptType) (TrackSnapshot, error) {
	t, err := a.Track(promptType)
	if err != nil {
		return TrackSnapshot{}, err
	}
	return t.Apply(ctx)
}

// Snapshot returns both tracks.
type Snapshot struct {
	System TrackSnapshot `json:"system"`
	User   TrackSnapshot `json:"user"`
}

func (a *Advisor) Snapshot() Snapshot {
	return Snapshot{
		System: a.tracks[shared.PromptTypeSystem].Snapshot(),
		User:   a.tracks[shared.PromptTypeUser].Snapshot(),
	}
}

// AnalyzeAll analyzes the non-blank texts concurrently and returns the
// joined errors of both tracks. One track failing does not stop the other.
func (a *Advisor) AnalyzeAll(ctx context.Context, systemText, userText string) (Snapshot, error) {
	var (
		g    errgroup.Group
		errs [2]error
	)
	inputs := [2]struct {
		pt   shared.PromptType
		text string
	}{{shared.PromptTypeSystem, systemText}, {shared.PromptTypeUser, userText}}

	for i, in := range inputs {
		if strings.TrimSpace(in.text) == "" {
			continue
		}
		g.Go(func() error {
			t := a.tracks[in.pt]
			if _, err := t.Analyze(ctx, in.text); err != nil {
				errs[i] = fmt.Errorf("%s prompt: %w", in.pt, err)
				return nil
			}
			if err := t.Err(); err != nil {
				errs[i] = fmt.Errorf("%s prompt: %w", in.pt, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if strings.TrimSpace(systemText) == "" && strings.TrimSpace(userText) == "" {
		return a.Snapshot(), &shared.ValidationError{Field: "promptText", Message: "Please enter a system or user prompt to analyze."}
	}
	return a.Snapshot(), errors.Join(errs[0], errs[1])
}
