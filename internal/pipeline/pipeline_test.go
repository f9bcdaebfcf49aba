package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func passStep(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) {
		return "ok", nil
	}}
}

func failStep(name string) Step {
	return Step{Name: name, Run: func(ctx context.Context) (string, error) {
		return "", fmt.Errorf("%s exploded", name)
	}}
}

func TestRunFailFast(t *testing.T) {
	runner := NewRunner(Options{})
	report, err := runner.Run(context.Background(), "release", []Step{
		passStep("validate"),
		failStep("tag"),
		passStep("publish"),
	})
	if err == nil {
		t.Fatal("Run() succeeded, want failure")
	}

	if len(report.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(report.Results))
	}
	if report.Results[0].Status != StatusPass {
		t.Errorf("validate status = %s", report.Results[0].Status)
	}
	if report.Results[1].Status != StatusFail {
		t.Errorf("tag status = %s", report.Results[1].Status)
	}
	if report.Results[2].Status != StatusSkipped {
		t.Errorf("publish status = %s, want skipped after failure", report.Results[2].Status)
	}
}

func TestRunContinueOnError(t *testing.T) {
	runner := NewRunner(Options{ContinueOnError: true})
	report, err := runner.Run(context.Background(), "rollback", []Step{
		failStep("npm"),
		passStep("git"),
		failStep("github"),
		passStep("docs"),
	})
	if err == nil {
		t.Fatal("Run() succeeded, want aggregate failure")
	}

	passed, failed, _, skipped := report.Counts()
	if passed != 2 || failed != 2 || skipped != 0 {
		t.Errorf("Counts() = %d pass, %d fail, %d skip", passed, failed, skipped)
	}
}

func TestDryRunSkipsMutatingSteps(t *testing.T) {
	var executed []string
	observe := func(name string, mutates bool) Step {
		return Step{Name: name, Mutates: mutates, Run: func(ctx context.Context) (string, error) {
			executed = append(executed, name)
			return "", nil
		}}
	}

	runner := NewRunner(Options{DryRun: true})
	report, err := runner.Run(context.Background(), "release", []Step{
		observe("validate", false),
		observe("tag", true),
		observe("publish", true),
		observe("verify", false),
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if len(executed) != 2 || executed[0] != "validate" || executed[1] != "verify" {
		t.Errorf("executed = %v, want only non-mutating steps", executed)
	}
	if report.Results[1].Status != StatusSkipped || report.Results[1].Message != "dry-run" {
		t.Errorf("tag result = %+v", report.Results[1])
	}
	if !report.DryRun {
		t.Error("report.DryRun = false")
	}
}

func TestWarningDowngradesFailure(t *testing.T) {
	warnStep := Step{Name: "audit", Run: func(ctx context.Context) (string, error) {
		return "3 moderate advisories", Warning(errors.New("audit found issues"))
	}}

	runner := NewRunner(Options{})
	report, err := runner.Run(context.Background(), "validate", []Step{warnStep, passStep("next")})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if report.Results[0].Status != StatusWarn {
		t.Errorf("audit status = %s, want warn", report.Results[0].Status)
	}
	// Warnings must not stop the pipeline.
	if report.Results[1].Status != StatusPass {
		t.Errorf("next status = %s", report.Results[1].Status)
	}
	_, _, warned, _ := report.Counts()
	if warned != 1 {
		t.Errorf("warned = %d, want 1", warned)
	}
}

func TestWarnWrapper(t *testing.T) {
	step := Warn(failStep("optional"))
	runner := NewRunner(Options{})
	report, err := runner.Run(context.Background(), "w", []Step{step})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Results[0].Status != StatusWarn {
		t.Errorf("status = %s, want warn", report.Results[0].Status)
	}
}

func TestObserver(t *testing.T) {
	var seen []string
	runner := NewRunner(Options{Observer: func(res Result) {
		seen = append(seen, res.Step+":"+string(res.Status))
	}})

	if _, err := runner.Run(context.Background(), "obs", []Step{passStep("a"), passStep("b")}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a:pass" {
		t.Errorf("observer saw %v", seen)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(Options{})
	report, err := runner.Run(ctx, "cancelled", []Step{passStep("a")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if report.Results[0].Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", report.Results[0].Status)
	}
}
