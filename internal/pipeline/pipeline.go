// Package pipeline provides the step engine that sequences release and
// rollback workflows.
//
// A workflow is a list of Steps run in order. The runner supports two
// failure modes: fail-fast for release pipelines, where a failed gate
// stops everything, and continue-on-error for rollback, where each
// scope is independent and a failure is recorded but does not prevent
// the remaining scopes from running.
//
// Dry-run is enforced structurally: steps that mutate state declare
// Mutates, and the runner skips them entirely when dry-run is active,
// so no step body needs its own dry-run branching.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the outcome of one step.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarn    Status = "warn"
	StatusSkipped Status = "skipped"
)

// Step is a unit of work in a workflow.
type Step struct {
	// Name identifies the step in reports and logs.
	Name string

	// Mutates marks steps that change files, git refs, or remote
	// state. Mutating steps are skipped under dry-run.
	Mutates bool

	// Run executes the step. A non-nil error marks the step failed;
	// the returned message is recorded either way.
	Run func(ctx context.Context) (string, error)
}

// Result records one step execution.
type Result struct {
	Step      string        `json:"step"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunReport accumulates step results for a workflow run.
type RunReport struct {
	Name     string    `json:"name"`
	DryRun   bool      `json:"dry_run"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Counts returns the number of passed, failed, warned, and skipped steps.
func (r *RunReport) Counts() (passed, failed, warned, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warned++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Failed reports whether any step failed.
func (r *RunReport) Failed() bool {
	_, failed, _, _ := r.Counts()
	return failed > 0
}

// Options configures a Runner.
type Options struct {
	// DryRun skips all mutating steps.
	DryRun bool

	// ContinueOnError keeps running after a failed step. Used by
	// rollback, where scopes are independent.
	ContinueOnError bool

	// Observer, when set, is called after every step with its result.
	Observer func(Result)
}

// Runner executes workflows.
type Runner struct {
	opts Options
}

// NewRunner creates a runner with the given options.
func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

// Run executes the steps in order and returns the accumulated report.
// In fail-fast mode the first failure stops the run and the remaining
// steps are recorded as skipped. A context cancellation also stops the
// run.
func (r *Runner) Run(ctx context.Context, name string, steps []Step) (*RunReport, error) {
	report := &RunReport{
		Name:    name,
		DryRun:  r.opts.DryRun,
		Started: time.Now(),
	}

	stopped := false
	for _, step := range steps {
		if stopped || ctx.Err() != nil {
			r.record(report, Result{
				Step:      step.Name,
				Status:    StatusSkipped,
				Message:   "not run",
				Timestamp: time.Now(),
			})
			continue
		}

		if r.opts.DryRun && step.Mutates {
			r.record(report, Result{
				Step:      step.Name,
				Status:    StatusSkipped,
				Message:   "dry-run",
				Timestamp: time.Now(),
			})
			continue
		}

		start := time.Now()
		message, err := step.Run(ctx)
		res := Result{
			Step:      step.Name,
			Message:   message,
			Duration:  time.Since(start),
			Timestamp: start,
		}
		switch {
		case err != nil && errors.As(err, new(*warnError)):
			res.Status = StatusWarn
			res.Message = combineMessage(message, err)
		case err != nil:
			res.Status = StatusFail
			res.Message = combineMessage(message, err)
			if !r.opts.ContinueOnError {
				stopped = true
			}
		default:
			res.Status = StatusPass
		}
		r.record(report, res)
	}

	report.Finished = time.Now()
	if report.Failed() {
		return report, fmt.Errorf("workflow %s: %d step(s) failed", name, countFailed(report))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) record(report *RunReport, res Result) {
	report.Results = append(report.Results, res)
	if r.opts.Observer != nil {
		r.opts.Observer(res)
	}
}

func countFailed(report *RunReport) int {
	_, failed, _, _ := report.Counts()
	return failed
}

func combineMessage(message string, err error) string {
	if message == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %v", message, err)
}

// warnError marks a step failure as advisory.
type warnError struct {
	err error
}

func (w *warnError) Error() string { return w.err.Error() }
func (w *warnError) Unwrap() error { return w.err }

// Warning wraps an error so the runner records the step as a warning
// instead of a failure. Used for advisory gates such as audit findings.
func Warning(err error) error {
	if err == nil {
		return nil
	}
	return &warnError{err: err}
}

// Warn wraps a step so any failure is downgraded to a warning.
func Warn(step Step) Step {
	inner := step.Run
	step.Run = func(ctx context.Context) (string, error) {
		message, err := inner(ctx)
		return message, Warning(err)
	}
	return step
}
