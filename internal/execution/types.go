// Package execution spawns the external scoring engine.
//
// Processes are started from a literal argument vector, never through a shell.
// Combined stdout/stderr is appended to the caller's log file and the last
// bytes are kept in memory for error messages. Once a process has been
// spawned it always runs to completion: there is no timeout and no kill.
package execution

import (
	"strings"
	"time"
)

// Command represents one engine invocation.
type Command struct {
	// Binary is the executable to run, already resolved by the composer.
	Binary string `json:"binary"`

	// Arguments are passed verbatim as the process argv (after Binary).
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the scratch directory owned by this invocation.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to add (KEY=VALUE), merged with the allow-list.
	Environment []string `json:"environment,omitempty"`

	// LogPath receives combined stdout/stderr in append mode.
	// Empty means output is only captured in memory.
	LogPath string `json:"log_path,omitempty"`

	// RequestID uniquely identifies this execution request.
	RequestID string `json:"request_id,omitempty"`

	// Stage names the pipeline stage for logging and audit.
	Stage string `json:"stage,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult is the outcome of running a Command.
type ExecutionResult struct {
	// Success is true when the process was spawned and waited for,
	// regardless of its exit code.
	Success bool `json:"success"`

	// ExitCode is the process exit code, -1 if it never ran.
	ExitCode int `json:"exit_code"`

	// Output holds the tail of combined stdout/stderr.
	Output string `json:"output"`

	// Truncated is set when Output lost leading bytes.
	Truncated bool `json:"truncated,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// Error describes an infrastructure failure (binary missing, log file
	// not writable). Empty when the process ran.
	Error string `json:"error,omitempty"`
}

// IsNonZeroExit reports whether the process ran and exited non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// AuditEventType categorizes executor audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is delivered to the executor's audit callback.
type AuditEvent struct {
	Type      AuditEventType   `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Command   Command          `json:"command"`
	Result    *ExecutionResult `json:"result,omitempty"`
}

// ExecutorConfig configures a DirectExecutor.
type ExecutorConfig struct {
	// AllowedEnvironment lists variables copied from the parent environment.
	AllowedEnvironment []string `json:"allowed_environment"`

	// MaxCapturedOutput bounds the in-memory output tail.
	MaxCapturedOutput int64 `json:"max_captured_output"`
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		AllowedEnvironment: []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR"},
		MaxCapturedOutput:  64 * 1024,
	}
}
