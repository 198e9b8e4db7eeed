// Package stages runs the pepsirf engine for each pipeline step.
//
// Every stage follows the same contract: validate parameters, create a
// private scratch directory, stage auxiliary files, run the engine with a
// literal argv and the scratch directory as working directory, validate what
// it produced and finally move the outputs into the caller's destination.
// A non-zero exit never harvests anything, and the scratch directory is
// removed on every path.
package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pepkit/internal/collection"
	"pepkit/internal/command"
	"pepkit/internal/config"
	"pepkit/internal/execution"
	"pepkit/internal/formats"
	"pepkit/internal/logging"
)

// Target says where a stage puts its results.
type Target struct {
	// Dest is the directory receiving harvested outputs. Required.
	Dest string
	// Outfile receives the engine's combined output in append mode.
	// Empty means <OutfileDir>/<stage>.out.
	Outfile string
}

// Runner executes stages against one engine binary.
type Runner struct {
	// Binary is the engine executable token, resolved per call.
	Binary string
	// ScratchRoot is the parent of scratch directories; empty means os.TempDir.
	ScratchRoot string
	// OutfileDir holds default log files.
	OutfileDir string
	// Executor spawns the engine.
	Executor execution.Executor
}

// NewRunner builds a runner from configuration, wiring executor audit
// events into the audit log.
func NewRunner(cfg *config.Config) *Runner {
	executor := execution.NewDirectExecutorWithConfig(cfg.ExecutorConfig())
	executor.SetAuditCallback(auditExecution)
	return &Runner{
		Binary:      cfg.Engine.Binary,
		ScratchRoot: cfg.Engine.ScratchDir,
		OutfileDir:  cfg.Pipeline.OutfileDir,
		Executor:    executor,
	}
}

func auditExecution(e execution.AuditEvent) {
	event := logging.AuditEvent{
		Stage:     e.Command.Stage,
		RequestID: e.Command.RequestID,
		Target:    e.Command.Binary,
	}
	switch e.Type {
	case execution.AuditEventStart:
		event.EventType = logging.AuditEngineStart
		event.Success = true
	case execution.AuditEventComplete:
		event.EventType = logging.AuditEngineExit
		event.ExitCode = e.Result.ExitCode
		event.Duration = e.Result.Duration
		event.Success = e.Result.ExitCode == 0
	case execution.AuditEventError:
		event.EventType = logging.AuditEngineError
		if e.Result != nil {
			event.Error = e.Result.Error
		}
	}
	logging.Audit(event)
}

// Params is implemented by every stage's parameter set.
type Params interface {
	// StageName is the engine subcommand family, e.g. "norm".
	StageName() string
	plan() (*job, error)
}

// job is the stage-specific part of an invocation.
type job struct {
	stage   string
	variant string
	// prepare stages auxiliary files into scratch.
	prepare func(scratch string) error
	// args composes the argv after the binary.
	args    func(scratch string) []string
	outputs []output
	// post applies stage rules to validated outputs before harvest.
	post     func(scratch string, produced map[string]*Artifact) error
	warnings []string
}

// output is a declared engine output.
type output struct {
	key     string
	format  *formats.Format
	pattern *collection.Pattern // collections; nil means the format default
	scratch string              // name inside the scratch directory
	dest    string              // name inside Target.Dest
	mkdir   bool                // create the directory before spawning
}

// Artifact is a validated stage output.
type Artifact struct {
	Format     *formats.Format
	Path       string
	Collection *formats.Collection // nil for single files
}

// Result is what every stage returns on success.
type Result struct {
	Stage     string
	RequestID string
	// Variant is the semantic type of the main output where it varies.
	Variant  string
	Outputs  map[string]*Artifact
	Warnings []string
}

// Path returns the harvested path of output key, or "".
func (r *Result) Path(key string) string {
	if a, ok := r.Outputs[key]; ok {
		return a.Path
	}
	return ""
}

// Paths returns every output path keyed by output name.
func (r *Result) Paths() map[string]string {
	paths := make(map[string]string, len(r.Outputs))
	for k, a := range r.Outputs {
		paths[k] = a.Path
	}
	return paths
}

// OutputKeys lists the outputs a stage declares, without running it.
func OutputKeys(p Params) ([]string, error) {
	j, err := p.plan()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(j.outputs))
	for i, o := range j.outputs {
		keys[i] = o.key
	}
	return keys, nil
}

// Preview composes the argv a stage would run, with scratch standing in
// for the scratch directory. Nothing is staged or executed.
func (r *Runner) Preview(p Params, scratch string) ([]string, error) {
	j, err := p.plan()
	if err != nil {
		return nil, err
	}
	return append([]string{command.ResolveBinary(r.Binary)}, j.args(scratch)...), nil
}

// Run executes any stage and returns its generic result.
func (r *Runner) Run(ctx context.Context, p Params, t Target) (*Result, error) {
	stage := p.StageName()
	inv := &Invocation{Stage: stage, RequestID: uuid.NewString(), State: StateIdle, StartedAt: time.Now()}
	logging.Audit(logging.AuditEvent{EventType: logging.AuditStageStart, Stage: stage, RequestID: inv.RequestID, Target: t.Dest, Success: true})

	res, err := r.run(ctx, inv, p, t)
	if err != nil {
		_ = inv.advance(StateFailed)
		logging.StageError("%s failed: %v", stage, err)
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditStageFailed, Stage: stage, RequestID: inv.RequestID,
			Duration: time.Since(inv.StartedAt), Error: err.Error(),
		})
		return nil, err
	}
	if err := inv.advance(StateSucceeded); err != nil {
		return nil, asStageError(stage, EngineExecution, err)
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditStageSucceeded, Stage: stage, RequestID: inv.RequestID,
		Target: t.Dest, Duration: time.Since(inv.StartedAt), Success: true,
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context, inv *Invocation, p Params, t Target) (*Result, error) {
	stage := inv.Stage
	j, err := p.plan()
	if err != nil {
		return nil, asStageError(stage, InputValidation, err)
	}
	for _, w := range j.warnings {
		logging.StageWarn("%s: %s", stage, w)
	}

	if t.Dest == "" {
		return nil, inputError(stage, "destination directory is required")
	}
	dest := command.ResolvePath(t.Dest)
	for _, o := range j.outputs {
		if _, err := os.Lstat(filepath.Join(dest, o.dest)); err == nil {
			return nil, inputError(stage, "destination %s already exists", filepath.Join(dest, o.dest))
		}
	}
	outfile := t.Outfile
	if outfile == "" {
		dir := r.OutfileDir
		if dir == "" {
			dir = "."
		}
		outfile = filepath.Join(dir, stage+".out")
	}
	outfile = command.ResolvePath(outfile)
	if err := logging.EnsureDir(outfile); err != nil {
		return nil, inputError(stage, "outfile directory: %v", err)
	}

	if err := inv.advance(StateStaging); err != nil {
		return nil, asStageError(stage, InputValidation, err)
	}
	scratch, err := os.MkdirTemp(r.ScratchRoot, "pepkit-"+stage+"-")
	if err != nil {
		return nil, inputError(stage, "create scratch directory: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logging.StagingWarn("failed to remove scratch %s: %v", scratch, err)
		}
	}()
	inv.ScratchDir = scratch
	logging.StagingDebug("%s: scratch %s", stage, scratch)

	for _, o := range j.outputs {
		inv.Outputs = append(inv.Outputs, filepath.Join(scratch, o.scratch))
		if o.mkdir {
			if err := os.MkdirAll(filepath.Join(scratch, o.scratch), 0755); err != nil {
				return nil, inputError(stage, "prepare output directory: %v", err)
			}
		}
	}
	if j.prepare != nil {
		if err := j.prepare(scratch); err != nil {
			return nil, asStageError(stage, InputValidation, err)
		}
	}
	logging.Audit(logging.AuditEvent{EventType: logging.AuditStageStaged, Stage: stage, RequestID: inv.RequestID, Target: scratch, Success: true})

	inv.Binary = command.ResolveBinary(r.Binary)
	inv.Args = j.args(scratch)
	if err := inv.advance(StateInvoked); err != nil {
		return nil, asStageError(stage, EngineExecution, err)
	}

	result, err := r.executor().Execute(ctx, execution.Command{
		Binary:           inv.Binary,
		Arguments:        inv.Args,
		WorkingDirectory: scratch,
		LogPath:          outfile,
		RequestID:        inv.RequestID,
		Stage:            stage,
	})
	if err != nil {
		// includes a context canceled before spawning
		return nil, &Error{Stage: stage, Kind: EngineExecution, ExitCode: -1, Err: err}
	}
	if !result.Success {
		return nil, &Error{Stage: stage, Kind: EngineExecution, ExitCode: -1, Err: errors.New(result.Error)}
	}
	if result.ExitCode != 0 {
		return nil, &Error{Stage: stage, Kind: EngineExecution, ExitCode: result.ExitCode, Err: engineOutputError(result.Output, outfile)}
	}

	produced := make(map[string]*Artifact, len(j.outputs))
	for _, o := range j.outputs {
		a, err := validateOutput(o, filepath.Join(scratch, o.scratch))
		if err != nil {
			return nil, outputError(stage, err)
		}
		produced[o.key] = a
	}
	if j.post != nil {
		if err := j.post(scratch, produced); err != nil {
			return nil, asStageError(stage, SemanticFailure, err)
		}
	}

	harvested, err := harvest(j.outputs, produced, dest)
	if err != nil {
		return nil, outputError(stage, err)
	}
	logging.Stage("%s succeeded: %d outputs in %s", stage, len(harvested), dest)
	return &Result{
		Stage:     stage,
		RequestID: inv.RequestID,
		Variant:   j.variant,
		Outputs:   harvested,
		Warnings:  j.warnings,
	}, nil
}

func (r *Runner) executor() execution.Executor {
	if r.Executor != nil {
		return r.Executor
	}
	return execution.NewDirectExecutor()
}

func validateOutput(o output, path string) (*Artifact, error) {
	if o.format.Kind == formats.KindCollection {
		c, err := o.format.OpenCollection(path, o.pattern)
		if err != nil {
			return nil, err
		}
		return &Artifact{Format: o.format, Path: path, Collection: c}, nil
	}
	if err := o.format.ValidateFile(path); err != nil {
		return nil, err
	}
	return &Artifact{Format: o.format, Path: path}, nil
}

// harvest moves validated outputs into dest and reopens collections there.
// On failure the outputs already moved are removed again.
func harvest(outputs []output, produced map[string]*Artifact, dest string) (map[string]*Artifact, error) {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	out := make(map[string]*Artifact, len(outputs))
	var moved []string
	rollback := func() {
		for _, path := range moved {
			if err := os.RemoveAll(path); err != nil {
				logging.StagingWarn("failed to remove partial harvest %s: %v", path, err)
			}
		}
	}
	for _, o := range outputs {
		src := produced[o.key]
		dst := filepath.Join(dest, o.dest)
		if err := movePath(src.Path, dst); err != nil {
			rollback()
			return nil, fmt.Errorf("harvest %s: %w", o.key, err)
		}
		moved = append(moved, dst)
		a := &Artifact{Format: o.format, Path: dst}
		if o.format.Kind == formats.KindCollection {
			c, err := o.format.OpenCollection(dst, o.pattern)
			if err != nil {
				rollback()
				return nil, err
			}
			a.Collection = c
		}
		out[o.key] = a
		logging.StagingDebug("harvested %s -> %s", src.Path, dst)
	}
	return out, nil
}

func outputError(stage string, err error) *Error {
	var verr *formats.ValidationError
	if errors.As(err, &verr) {
		return &Error{Stage: stage, Kind: OutputValidation, Path: verr.Path, Expectation: verr.Expectation, Err: err}
	}
	return &Error{Stage: stage, Kind: OutputValidation, Err: err}
}

// engineOutputError summarizes the captured output tail for a failed run.
func engineOutputError(tail, outfile string) error {
	const keep = 512
	if len(tail) > keep {
		tail = "..." + tail[len(tail)-keep:]
	}
	if tail == "" {
		return fmt.Errorf("no output (log: %s)", outfile)
	}
	return fmt.Errorf("engine output (log: %s): %s", outfile, tail)
}

// checkInput validates an input artifact before spawning.
func checkInput(stage, param string, f *formats.Format, path string, required bool) error {
	if path == "" {
		if required {
			return inputError(stage, "%s is required", param)
		}
		return nil
	}
	if err := formats.Validate(f, path); err != nil {
		return inputError(stage, "%s: %v", param, err)
	}
	return nil
}
