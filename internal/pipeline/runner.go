package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"golang.org/x/sync/errgroup"

	"pepkit/internal/logging"
	"pepkit/internal/stages"
)

// Status is the outcome of one stage in a pipeline run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusSkipped marks stages never started because an earlier stage failed.
	StatusSkipped Status = "skipped"
)

// Outcome reports one stage.
type Outcome struct {
	Name     string
	Type     string
	Status   Status
	Result   *stages.Result
	Err      error
	Duration time.Duration
}

// Report lists outcomes in declaration order.
type Report struct {
	Outcomes []Outcome
}

// Outcome returns the outcome of the named stage.
func (r *Report) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// StageRunner runs a single stage. *stages.Runner implements it.
type StageRunner interface {
	Run(ctx context.Context, p stages.Params, t stages.Target) (*stages.Result, error)
}

// Runner executes pipelines.
type Runner struct {
	Stages StageRunner
	// Parallelism bounds concurrently running stages; values below 1 mean 1.
	Parallelism int
	// Environ is exposed as env.<NAME>; nil means the process environment.
	Environ []string
}

type completion struct {
	name    string
	res     *stages.Result
	err     error
	took    time.Duration
	skipped bool
}

// Run executes every stage once its dependencies have succeeded. The first
// failure stops scheduling; stages already running are allowed to finish.
// The returned error is the first stage failure.
func (r *Runner) Run(ctx context.Context, p *Pipeline) (*Report, error) {
	limit := r.Parallelism
	if limit < 1 {
		limit = 1
	}
	env := r.Environ
	if env == nil {
		env = environ()
	}
	timer := logging.StartTimer(logging.CategoryPipeline, "pipeline "+p.Path)
	defer timer.StopWithInfo()

	remaining := make(map[string]int, len(p.Stages))
	for _, s := range p.Stages {
		remaining[s.Name] = len(s.DependsOn)
	}
	dependents := p.dependents()

	done := make(outputs, len(p.Stages))
	finished := make(map[string]completion, len(p.Stages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	// Buffered so workers never block while the scheduler waits in g.Go.
	completions := make(chan completion, len(p.Stages))

	var ready []string
	for _, name := range p.order {
		if remaining[name] == 0 {
			ready = append(ready, name)
		}
	}

	running := 0
	for {
		for len(ready) > 0 && gctx.Err() == nil {
			name := ready[0]
			ready = ready[1:]
			stage := p.byName[name]

			evalCtx := evalContext(done, env)

			running++
			g.Go(func() error {
				// g.Go may have waited for a slot while another stage failed.
				if gctx.Err() != nil {
					completions <- completion{name: name, skipped: true}
					return nil
				}
				logging.Pipeline("starting stage %s (%s)", name, stage.Type)
				start := time.Now()
				res, err := r.runStage(gctx, stage, evalCtx)
				completions <- completion{name: name, res: res, err: err, took: time.Since(start)}
				return err
			})
		}
		if running == 0 {
			break
		}

		c := <-completions
		running--
		if c.skipped {
			continue
		}
		finished[c.name] = c
		if c.err != nil {
			logging.PipelineWarn("stage %s failed: %v", c.name, c.err)
			continue
		}
		done[c.name] = c.res.Paths()
		for _, next := range dependents[c.name] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	err := g.Wait()

	report := &Report{Outcomes: make([]Outcome, 0, len(p.Stages))}
	for _, s := range p.Stages {
		o := Outcome{Name: s.Name, Type: s.Type, Status: StatusSkipped}
		if c, ok := finished[s.Name]; ok {
			o.Result, o.Err, o.Duration = c.res, c.err, c.took
			o.Status = StatusSucceeded
			if c.err != nil {
				o.Status = StatusFailed
			}
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return report, err
}

func (r *Runner) runStage(ctx context.Context, s *Stage, evalCtx *hcl.EvalContext) (*stages.Result, error) {
	rs, err := s.resolve(evalCtx)
	if err != nil {
		return nil, err
	}
	res, err := r.Stages.Run(ctx, rs.params, rs.target)
	if err != nil {
		return nil, fmt.Errorf("stage %q: %w", s.Name, err)
	}
	return res, nil
}
