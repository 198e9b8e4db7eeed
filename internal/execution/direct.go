package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"pepkit/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	if config.MaxCapturedOutput <= 0 {
		config.MaxCapturedOutput = DefaultExecutorConfig().MaxCapturedOutput
	}
	logging.EngineDebug("Creating DirectExecutor: maxOutput=%d bytes, env=%v",
		config.MaxCapturedOutput, config.AllowedEnvironment)
	return &DirectExecutor{config: config}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.WorkingDirectory != "" {
		info, err := os.Stat(cmd.WorkingDirectory)
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory %s is not a directory", cmd.WorkingDirectory)
		}
	}
	return nil
}

// Execute runs a command directly on the host and waits for it to exit.
// A non-zero exit is not an error: it is reported through the result.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryEngine, "engine execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		logging.EngineWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logging.Engine("[%s] %s", cmd.Stage, cmd.CommandString())

	result := &ExecutionResult{ExitCode: -1}

	tail := &tailWriter{max: int(e.config.MaxCapturedOutput)}
	var out io.Writer = tail
	if cmd.LogPath != "" {
		logFile, err := os.OpenFile(cmd.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			result.Error = fmt.Sprintf("open log %s: %v", cmd.LogPath, err)
			e.emitAudit(AuditEvent{Type: AuditEventError, Timestamp: time.Now(), Command: cmd, Result: result})
			return result, nil
		}
		defer logFile.Close()
		out = io.MultiWriter(logFile, tail)
	}

	e.emitAudit(AuditEvent{Type: AuditEventStart, Timestamp: time.Now(), Command: cmd})

	execCmd := exec.Command(cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	execCmd.Stdout = out
	execCmd.Stderr = out

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Output = tail.String()
	result.Truncated = tail.truncated

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Success = true // process ran, just returned non-zero
			result.ExitCode = exitErr.ExitCode()
			logging.EngineDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		} else {
			result.Error = err.Error()
			logging.EngineError("Command failed to start: %s - %v", cmd.Binary, err)
			e.emitAudit(AuditEvent{Type: AuditEventError, Timestamp: time.Now(), Command: cmd, Result: result})
			return result, nil
		}
	} else {
		result.Success = true
		result.ExitCode = 0
	}

	e.emitAudit(AuditEvent{Type: AuditEventComplete, Timestamp: time.Now(), Command: cmd, Result: result})
	logging.Engine("[%s] exit=%d duration=%s", cmd.Stage, result.ExitCode, result.Duration)
	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func (tw *tailWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.buf = append(tw.buf, p...)
	if over := len(tw.buf) - tw.max; over > 0 {
		tw.truncated = true
		tw.buf = append(tw.buf[:0], tw.buf[over:]...)
	}
	return len(p), nil
}

func (tw *tailWriter) String() string {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return string(tw.buf)
}
