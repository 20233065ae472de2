package runner

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-engine/internal/models"
)

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
	}{
		{"trailing newline", "42\n", "42"},
		{"windows line endings", "1\r\n2\r\n", "1\n2"},
		{"surrounding whitespace", "  hello  \n", "hello"},
		{"interior whitespace preserved", "a b\nc d", "a b\nc d"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.output, NormalizeOutput(tt.input))
		})
	}
}

func TestNewSubprocessRunner(t *testing.T) {
	t.Run("rejects empty command", func(t *testing.T) {
		_, err := NewSubprocessRunner("", "", slog.Default())
		assert.Error(t, err)
	})

	t.Run("rejects missing interpreter", func(t *testing.T) {
		_, err := NewSubprocessRunner("definitely-not-an-interpreter", "", slog.Default())
		assert.Error(t, err)
	})
}

func newPythonRunner(t *testing.T) *SubprocessRunner {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	r, err := NewSubprocessRunner("python3", t.TempDir(), slog.Default())
	require.NoError(t, err)
	return r
}

func TestSubprocessRunnerPassingProgram(t *testing.T) {
	r := newPythonRunner(t)

	result, err := r.Run(context.Background(),
		"print(sum(map(int, input().split())))",
		[]models.TestCase{
			{Input: "2 3", ExpectedOutput: "5"},
			{Input: "10 -4", ExpectedOutput: "6"},
		}, 2*time.Second)

	require.NoError(t, err)
	assert.True(t, result.AllPassed)
	require.Len(t, result.Cases, 2)
	for _, c := range result.Cases {
		assert.True(t, c.Passed)
		assert.Empty(t, c.Error)
	}
}

func TestSubprocessRunnerTrailingNewlineTolerated(t *testing.T) {
	r := newPythonRunner(t)

	result, err := r.Run(context.Background(),
		"print('ok')",
		[]models.TestCase{{Input: "", ExpectedOutput: "ok\n"}},
		2*time.Second)

	require.NoError(t, err)
	assert.True(t, result.AllPassed)
}

func TestSubprocessRunnerWrongOutput(t *testing.T) {
	r := newPythonRunner(t)

	result, err := r.Run(context.Background(),
		"print(1)",
		[]models.TestCase{{Input: "", ExpectedOutput: "2"}},
		2*time.Second)

	require.NoError(t, err)
	assert.False(t, result.AllPassed)
	require.Len(t, result.Cases, 1)
	assert.False(t, result.Cases[0].Passed)
	assert.Equal(t, "1\n", result.Cases[0].ActualOutput)
	assert.Empty(t, result.Cases[0].Error)
}

func TestSubprocessRunnerRuntimeError(t *testing.T) {
	r := newPythonRunner(t)

	result, err := r.Run(context.Background(),
		"raise ValueError('boom')",
		[]models.TestCase{{Input: "", ExpectedOutput: ""}},
		2*time.Second)

	require.NoError(t, err, "a case fault must stay contained in the result")
	assert.False(t, result.AllPassed)
	require.Len(t, result.Cases, 1)
	assert.False(t, result.Cases[0].Passed)
	assert.Contains(t, result.Cases[0].Error, "ValueError")
}

func TestSubprocessRunnerTimeout(t *testing.T) {
	r := newPythonRunner(t)

	start := time.Now()
	result, err := r.Run(context.Background(),
		"while True:\n    pass",
		[]models.TestCase{{Input: "", ExpectedOutput: ""}},
		500*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, result.AllPassed)
	require.Len(t, result.Cases, 1)
	assert.Equal(t, timeoutAnnotation, result.Cases[0].Error)
	assert.Less(t, elapsed, 5*time.Second, "the runaway process must be killed")
}

func TestSubprocessRunnerFaultDoesNotAbortRemainingCases(t *testing.T) {
	r := newPythonRunner(t)

	result, err := r.Run(context.Background(),
		"n = int(input())\nif n == 0:\n    raise RuntimeError('bad case')\nprint(n * 2)",
		[]models.TestCase{
			{Input: "0", ExpectedOutput: "0"},
			{Input: "21", ExpectedOutput: "42"},
		}, 2*time.Second)

	require.NoError(t, err)
	assert.False(t, result.AllPassed)
	require.Len(t, result.Cases, 2)
	assert.False(t, result.Cases[0].Passed)
	assert.True(t, result.Cases[1].Passed)
}

func TestSubprocessRunnerCleansUpSourceFiles(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	r, err := NewSubprocessRunner("python3", dir, slog.Default())
	require.NoError(t, err)

	_, err = r.Run(context.Background(),
		"print('x')",
		[]models.TestCase{{Input: "", ExpectedOutput: "x"}},
		2*time.Second)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "source files must be removed after the run")
}
