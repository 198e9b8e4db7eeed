package execution

import "context"

// Executor runs engine commands.
type Executor interface {
	// Execute runs cmd to completion. The context is only consulted before
	// the process is spawned.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Validate checks if a command can be executed by this executor.
	Validate(cmd Command) error
}

// AuditedExecutor is an executor that reports audit events.
type AuditedExecutor interface {
	Executor
	SetAuditCallback(callback func(AuditEvent))
}
