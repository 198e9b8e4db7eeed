package execution

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestDirectExecutor_AppendsToLog(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "stage.out")
	require.NoError(t, os.WriteFile(logPath, []byte("previous run\n"), 0644))

	executor := NewDirectExecutor()
	result, err := executor.Execute(context.Background(), Command{
		Binary:           "sh",
		Arguments:        []string{"-c", "echo to-stdout; echo to-stderr 1>&2"},
		WorkingDirectory: dir,
		LogPath:          logPath,
		Stage:            "norm",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "to-stdout")
	assert.Contains(t, result.Output, "to-stderr")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	log := string(data)
	assert.True(t, strings.HasPrefix(log, "previous run\n"), "log was truncated: %q", log)
	assert.Contains(t, log, "to-stdout")
	assert.Contains(t, log, "to-stderr")
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()
	result, err := executor.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo boom; exit 3"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.IsNonZeroExit())
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "boom")
}

func TestDirectExecutor_ArgumentsAreLiteral(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	executor := NewDirectExecutor()
	hostile := "$(touch pwned); `touch pwned2` && touch pwned3"
	result, err := executor.Execute(context.Background(), Command{
		Binary:           "echo",
		Arguments:        []string{hostile},
		WorkingDirectory: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, hostile+"\n", result.Output)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDirectExecutor_MissingBinary(t *testing.T) {
	executor := NewDirectExecutor()
	var events []AuditEventType
	executor.SetAuditCallback(func(e AuditEvent) { events = append(events, e.Type) })

	result, err := executor.Execute(context.Background(), Command{Binary: "/nonexistent/pepsirf"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, []AuditEventType{AuditEventStart, AuditEventError}, events)
}

func TestDirectExecutor_CanceledBeforeSpawn(t *testing.T) {
	executor := NewDirectExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := executor.Execute(ctx, Command{Binary: "echo", Arguments: []string{"never"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestDirectExecutor_Validate(t *testing.T) {
	executor := NewDirectExecutor()
	assert.Error(t, executor.Validate(Command{}))
	assert.Error(t, executor.Validate(Command{Binary: "echo", WorkingDirectory: filepath.Join(t.TempDir(), "missing")}))
	assert.NoError(t, executor.Validate(Command{Binary: "echo", WorkingDirectory: t.TempDir()}))
}

func TestDirectExecutor_EnvironmentAllowList(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("PEPKIT_SECRET", "hidden")

	executor := NewDirectExecutorWithConfig(ExecutorConfig{AllowedEnvironment: []string{"PATH"}})
	result, err := executor.Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", "echo secret=$PEPKIT_SECRET extra=$EXTRA"},
		Environment: []string{"EXTRA=yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "secret= extra=yes\n", result.Output)
}

func TestDirectExecutor_ConcurrentInvocations(t *testing.T) {
	skipOnWindows(t)
	executor := NewDirectExecutor()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := executor.Execute(context.Background(), Command{
				Binary:           "sh",
				Arguments:        []string{"-c", "pwd"},
				WorkingDirectory: t.TempDir(),
			})
			assert.NoError(t, err)
			assert.Equal(t, 0, result.ExitCode)
		}()
	}
	wg.Wait()
}

func TestTailWriter(t *testing.T) {
	tw := &tailWriter{max: 5}
	n, err := tw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, tw.truncated)

	_, _ = tw.Write([]byte("defgh"))
	assert.Equal(t, "defgh", tw.String())
	assert.True(t, tw.truncated)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "pepsirf", Command{Binary: "pepsirf"}.CommandString())
	assert.Equal(t, "pepsirf bin -b 300", Command{Binary: "pepsirf", Arguments: []string{"bin", "-b", "300"}}.CommandString())
}
