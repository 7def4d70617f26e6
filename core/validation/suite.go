// Package validation runs environment checks with colored progress output.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Warning marks a check result that is worth reporting but does not fail the suite.
type Warning struct {
	Message string
}

func (w *Warning) Error() string { return w.Message }

// Warn returns a Warning error.
func Warn(format string, args ...interface{}) error {
	return &Warning{Message: fmt.Sprintf(format, args...)}
}

// CheckFunc performs one check and returns a short success message.
type CheckFunc func(ctx context.Context) (string, error)

type check struct {
	name      string
	fn        CheckFunc
	dependent bool
}

// ValidationStep is the outcome of one check.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult represents the complete result of a suite run.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// GetErrors returns the errors of failed steps.
func (r SuiteResult) GetErrors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// ValidationSuite runs checks in order.
type ValidationSuite struct {
	output       io.Writer
	checks       []check
	showProgress bool
	failFast     bool
}

// NewValidationSuite creates a suite writing progress to stdout.
func NewValidationSuite() *ValidationSuite {
	return &ValidationSuite{
		output:       os.Stdout,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops the run at the first failure.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

// Add appends a check.
func (s *ValidationSuite) Add(name string, fn CheckFunc) *ValidationSuite {
	s.checks = append(s.checks, check{name: name, fn: fn})
	return s
}

// AddDependent appends a check that is skipped when an earlier one failed.
func (s *ValidationSuite) AddDependent(name string, fn CheckFunc) *ValidationSuite {
	s.checks = append(s.checks, check{name: name, fn: fn, dependent: true})
	return s
}

// Validate runs every check and prints progress under title.
func (s *ValidationSuite) Validate(ctx context.Context, title string) SuiteResult {
	startTime := time.Now()
	steps := make([]ValidationStep, 0, len(s.checks))

	if s.showProgress {
		s.printHeader(title)
	}

	for _, c := range s.checks {
		var step ValidationStep
		switch {
		case ctx.Err() != nil:
			step = ValidationStep{Name: c.name, Status: StepSkipped, Message: "Cancelled"}
			s.printSkipped(step)
		case c.dependent && !hasAllPassed(steps):
			step = ValidationStep{Name: c.name, Status: StepSkipped, Message: "Skipped due to earlier failures"}
			s.printSkipped(step)
		default:
			step = s.runStep(ctx, c)
		}
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

// runStep executes a check with timing and progress output.
func (s *ValidationSuite) runStep(ctx context.Context, c check) ValidationStep {
	step := ValidationStep{Name: c.name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(c.name)
	}

	startTime := time.Now()
	message, err := c.fn(ctx)
	step.Latency = time.Since(startTime)
	step.Message = message

	var warning *Warning
	switch {
	case err == nil:
		step.Status = StepPassed
	case errors.As(err, &warning):
		step.Status = StepWarning
		step.Message = warning.Message
	default:
		step.Status = StepFailed
		step.Error = err
	}

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

func hasAllPassed(steps []ValidationStep) bool {
	for _, step := range steps {
		if step.Status == StepFailed {
			return false
		}
	}
	return true
}

func buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

func (s *ValidationSuite) printSkipped(step ValidationStep) {
	if s.showProgress {
		s.printStep(step)
	}
}

// printStep prints a completed step with its status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// overwrite the "running" line
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Status == StepFailed && step.Error != nil {
		color.New(color.FgRed).Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	dim := color.New(color.FgHiBlack)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprintf(s.output, "━━━ Checks Passed ")
		dim.Fprintf(s.output, "(%d/%d passed, %d warnings, %v)",
			result.PassedSteps, result.TotalSteps, result.Warnings, result.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		fail := color.New(color.FgRed, color.Bold)
		fail.Fprintf(s.output, "━━━ Checks Failed ")
		dim.Fprintf(s.output, "(%d passed, %d failed)", result.PassedSteps, result.FailedSteps)
		fail.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}
