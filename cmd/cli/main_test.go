package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// An HCL definition with a syntax error is guaranteed to panic during
	// the loading phase inside app.NewApp().
	invalidHCL := `
		pipeline "broken" {
			stage "a" {
		// Missing closing brace here
	`
	filePath := writePipeline(t, invalidHCL)

	args := []string{filePath}
	out := &bytes.Buffer{}
	logOut := &bytes.Buffer{}

	// --- Act ---
	// Call the run function, which should recover the panic and return it as an error.
	runErr := run(out, logOut, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")

	errStr := runErr.Error()
	require.True(t, strings.Contains(errStr, "application startup panicked"), "The error message should indicate that a panic was recovered.")
	require.True(t, strings.Contains(errStr, "failed to load pipeline definition"), "The error message should contain the underlying reason for the panic.")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}
	logOut := &bytes.Buffer{}

	// --- Act ---
	// The run function should see `shouldExit=true` and return a nil error.
	err := run(out, logOut, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}
	logOut := &bytes.Buffer{}

	// --- Act ---
	// The run function should propagate the error from cli.Parse.
	err := run(out, logOut, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_ExecuteEndToEnd(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	filePath := writePipeline(t, `
pipeline "smoke" {
  type = "data_processing"
  mode = "sequential"

  stage "clean" {
    type = "data_preprocessing"
    config = {
      rows = 100
    }
  }

  stage "validate" {
    type       = "data_validation"
    depends_on = ["clean"]
  }
}
`)
	args := []string{"-log-level", "error", filePath}
	out := &bytes.Buffer{}
	logOut := &bytes.Buffer{}

	// --- Act ---
	err := run(out, logOut, args)

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), `"success": true`)
	require.Contains(t, out.String(), `"completedStages": 2`)
}

func TestRun_TestMode(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A pipeline with a missing type fails validation. Test mode must report
	// the violation in the JSON output and return a non-nil error.
	filePath := writePipeline(t, `
pipeline "smoke" {
  mode = "sequential"

  stage "clean" {
    type = "data_preprocessing"
  }
}
`)
	args := []string{"-mode", "test", "-log-level", "error", filePath}
	out := &bytes.Buffer{}
	logOut := &bytes.Buffer{}

	// --- Act ---
	err := run(out, logOut, args)

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipeline validation failed")
	require.Contains(t, out.String(), "Pipeline type is required")
}
