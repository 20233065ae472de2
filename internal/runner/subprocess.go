package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proctorly/exam-engine/internal/models"
)

const timeoutAnnotation = "Execution failed / timeout"

// SubprocessRunner executes candidate programs as one process per test case.
// The candidate source is written to a uuid-named file under the runner's
// temp directory and removed when the run finishes, on every exit path.
type SubprocessRunner struct {
	command []string
	tempDir string
	logger  *slog.Logger
}

// NewSubprocessRunner provisions the execution environment: the interpreter
// must resolve on PATH and the temp directory must be writable. Failure here
// is the runner's only fatal error.
func NewSubprocessRunner(command string, tempDir string, logger *slog.Logger) (*SubprocessRunner, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, errors.New("runner: empty execution command")
	}
	if _, err := exec.LookPath(parts[0]); err != nil {
		return nil, fmt.Errorf("runner: execution environment unavailable: %w", err)
	}

	if tempDir == "" {
		dir, err := os.MkdirTemp("", "exam-runner-")
		if err != nil {
			return nil, fmt.Errorf("runner: failed to create temp directory: %w", err)
		}
		tempDir = dir
	} else if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("runner: failed to create temp directory: %w", err)
	}

	return &SubprocessRunner{
		command: parts,
		tempDir: tempDir,
		logger:  logger,
	}, nil
}

// Run executes the source against every test case sequentially. Each case is
// an independent process invocation bounded by the wall-clock timeout; case
// faults never fail the run.
func (r *SubprocessRunner) Run(ctx context.Context, source string, testCases []models.TestCase, timeout time.Duration) (*RunResult, error) {
	sourcePath := filepath.Join(r.tempDir, uuid.NewString()+".src")
	if err := os.WriteFile(sourcePath, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("runner: failed to write source file: %w", err)
	}
	defer os.Remove(sourcePath)

	result := &RunResult{AllPassed: true, Cases: make([]CaseResult, 0, len(testCases))}

	for _, tc := range testCases {
		caseResult := r.runCase(ctx, sourcePath, tc, timeout)
		if !caseResult.Passed {
			result.AllPassed = false
		}
		result.Cases = append(result.Cases, caseResult)
	}

	return result, nil
}

func (r *SubprocessRunner) runCase(ctx context.Context, sourcePath string, tc models.TestCase, timeout time.Duration) CaseResult {
	caseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.command[1:]...), sourcePath)
	cmd := exec.CommandContext(caseCtx, r.command[0], args...)
	cmd.Stdin = strings.NewReader(tc.Input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := CaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		ActualOutput:   stdout.String(),
	}

	switch {
	case caseCtx.Err() == context.DeadlineExceeded:
		res.Error = timeoutAnnotation
	case err != nil:
		res.Error = faultText(err, stderr.String())
	case stderr.Len() > 0:
		res.Error = strings.TrimSpace(stderr.String())
	default:
		res.Passed = NormalizeOutput(res.ActualOutput) == NormalizeOutput(tc.ExpectedOutput)
	}

	if res.Error != "" {
		r.logger.Debug("test case execution fault",
			"source", filepath.Base(sourcePath),
			"fault", res.Error)
	}

	return res
}

// faultText preserves whatever the failing process said for candidate
// feedback, preferring stderr over the raw exec error.
func faultText(err error, stderr string) string {
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		return trimmed
	}
	return err.Error()
}

// Close removes the runner's temp directory.
func (r *SubprocessRunner) Close() error {
	return os.RemoveAll(r.tempDir)
}
