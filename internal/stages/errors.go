package stages

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies stage failures.
type Kind int

const (
	// InputValidation: malformed or missing parameter or input artifact,
	// detected before the engine is spawned.
	InputValidation Kind = iota + 1
	// EngineExecution: the engine could not be run or exited non-zero.
	EngineExecution
	// OutputValidation: a produced file or directory does not satisfy its format.
	OutputValidation
	// SemanticFailure: a stage rule was violated despite a clean exit.
	SemanticFailure
)

func (k Kind) String() string {
	switch k {
	case InputValidation:
		return "input validation error"
	case EngineExecution:
		return "engine execution error"
	case OutputValidation:
		return "output validation error"
	case SemanticFailure:
		return "semantic failure"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is matching against *Error.
var (
	ErrInputValidation  = errors.New("input validation error")
	ErrEngineExecution  = errors.New("engine execution error")
	ErrOutputValidation = errors.New("output validation error")
	ErrSemanticFailure  = errors.New("semantic failure")
)

// Error is returned by every stage executor.
type Error struct {
	Stage       string
	Kind        Kind
	ExitCode    int    // EngineExecution only; -1 when the process never ran
	Path        string // OutputValidation: offending file
	Expectation string // OutputValidation: what the file should satisfy
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s: %s", e.Stage, e.Kind)
	switch e.Kind {
	case EngineExecution:
		if e.ExitCode >= 0 {
			fmt.Fprintf(&b, ": exit code %d", e.ExitCode)
		}
	case OutputValidation:
		if e.Path != "" {
			fmt.Fprintf(&b, ": %s", e.Path)
		}
		if e.Expectation != "" {
			fmt.Fprintf(&b, ": expected %s", e.Expectation)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInputValidation:
		return e.Kind == InputValidation
	case ErrEngineExecution:
		return e.Kind == EngineExecution
	case ErrOutputValidation:
		return e.Kind == OutputValidation
	case ErrSemanticFailure:
		return e.Kind == SemanticFailure
	}
	return false
}

func inputError(stage string, format string, args ...interface{}) *Error {
	return &Error{Stage: stage, Kind: InputValidation, Err: fmt.Errorf(format, args...)}
}

func semanticError(stage string, msg string) *Error {
	return &Error{Stage: stage, Kind: SemanticFailure, Err: errors.New(msg)}
}

// asStageError keeps *Error values and wraps anything else with kind.
func asStageError(stage string, kind Kind, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Stage: stage, Kind: kind, Err: err}
}
