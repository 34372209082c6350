// Package testutil provides shared helpers for system-level tests: a
// thread-safe log buffer and a harness that runs a pipeline definition
// through the full application wiring.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klikkflow/pipeline-engine/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a full application run.
type HarnessResult struct {
	Output    string
	LogOutput string
	Err       error
	App       *app.App
}

// RunPipelineTest writes the definition to a temporary file named filename,
// wires up the full application around it, and runs it. Startup panics are
// recovered into HarnessResult.Err so tests can assert on them.
func RunPipelineTest(t *testing.T, filename, definition string, cfg app.Config) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithContext(context.Background(), t, filename, definition, cfg)
}

// RunPipelineTestWithContext is RunPipelineTest with a caller-provided context.
func RunPipelineTestWithContext(ctx context.Context, t *testing.T, filename, definition string, cfg app.Config) *HarnessResult {
	t.Helper()

	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(definition), 0644))

	cfg.PipelinePath = path
	if cfg.Mode == "" {
		cfg.Mode = "execute"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}

	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	outBuf := &SafeBuffer{}
	logBuf := &SafeBuffer{}

	result := &HarnessResult{}
	result.Err = func() (runErr error) {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("application startup panicked: %v", r)
			}
		}()
		result.App = app.NewApp(outBuf, logBuf, appConfig)
		return result.App.Run(ctx, appConfig)
	}()

	result.Output = outBuf.String()
	result.LogOutput = logBuf.String()

	if os.Getenv("PIPELINE_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.LogOutput)
	}

	return result
}
