package runner

import (
	"context"
	"strings"
	"time"

	"github.com/proctorly/exam-engine/internal/models"
)

// Runner executes one candidate-submitted program against a list of test
// cases. Implementations must contain every per-case fault (timeout, runtime
// error, bad output) as data in the result; the only error an implementation
// may return is failure to provision an execution environment at all.
type Runner interface {
	Run(ctx context.Context, source string, testCases []models.TestCase, timeout time.Duration) (*RunResult, error)
}

// CaseResult is the outcome of one test case execution.
type CaseResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output"`
	Passed         bool   `json:"passed"`
	Error          string `json:"error,omitempty"`
}

// RunResult aggregates all case results for one submission run.
type RunResult struct {
	AllPassed bool         `json:"all_passed"`
	Cases     []CaseResult `json:"cases"`
}

// NormalizeOutput prepares program output for comparison: line endings are
// unified and surrounding whitespace dropped, so a trailing newline never
// fails a case.
func NormalizeOutput(output string) string {
	return strings.TrimSpace(strings.ReplaceAll(output, "\r\n", "\n"))
}
