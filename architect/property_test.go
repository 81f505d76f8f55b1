package architect

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"promptsmith/engine"
	"promptsmith/shared"
)

// checkingGen fails randomly and verifies that a step never starts before
// the previous step's artifact exists.
type checkingGen struct {
	t    *rapid.T
	a    *Architect
	base *fakeGen
	fail func() bool
}

func (g *checkingGen) Generate(ctx context.Context, request, model string) (string, error) {
	step := stepOf(request)
	snap := g.a.Snapshot()
	if step > 1 && !snap.IsCompleted(step-1) {
		g.t.Fatalf("step %d invoked while step %d is incomplete (%v)", step, step-1, snap.Completed)
	}
	if g.fail() {
		return "", &shared.TransportError{StatusCode: 500, Message: "boom"}
	}
	return g.base.answer[step], nil
}

func TestProperty_CompletedIsAlwaysAPrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := &checkingGen{t: t, base: newFakeGen()}
		g.fail = func() bool { return rapid.Bool().Draw(t, "fail") }
		a := New(engine.New(g, staticRules("RULES")), req, WithAutoAdvance(rapid.Bool().Draw(t, "auto")))
		g.a = a
		ctx := context.Background()

		actions := rapid.SliceOfN(rapid.IntRange(0, 6), 1, 20).Draw(t, "actions")
		for _, act := range actions {
			var err error
			switch act {
			case 0:
				_, err = a.GetDirectives(ctx)
			case 1:
				_, err = a.GeneratePrompt(ctx)
			case 2:
				_, err = a.AnalyzeDraft(ctx)
			case 3:
				_, err = a.ApplyAdvice(ctx)
			case 4:
				_, err = a.Automate(ctx)
			case 5:
				_, err = a.RemoveDirective(0)
			case 6:
				_, err = a.EditDirective(0, "edited")
			}
			var valErr *shared.ValidationError
			if err != nil && !errors.Is(err, ErrOutOfOrder) && !errors.Is(err, ErrNotEditable) && !errors.As(err, &valErr) {
				t.Fatalf("unexpected error %v", err)
			}

			snap := a.Snapshot()
			for i, s := range snap.Completed {
				if s != i+1 {
					t.Fatalf("completed %v is not a prefix", snap.Completed)
				}
			}
			if snap.Running != 0 {
				t.Fatalf("running flag left set: %d", snap.Running)
			}
			art := snap.Artifacts
			k := len(snap.Completed)
			if (k >= 2) != (art.InitialPrompt != "") {
				t.Fatalf("initial prompt presence does not match completed %v", snap.Completed)
			}
			if (k >= 4) != (art.FinalPrompt != "") {
				t.Fatalf("final prompt presence does not match completed %v", snap.Completed)
			}
			if k < 3 && len(art.Advice) != 0 {
				t.Fatalf("advice present with completed %v", snap.Completed)
			}
			if k < 1 && len(art.Directives) != 0 {
				t.Fatalf("directives present with completed %v", snap.Completed)
			}
		}
	})
}
