package stages

import (
	"context"
	"path/filepath"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// ZscoreParams configures the zscore stage. A non-zero HDI takes
// precedence over Trim inside the engine.
type ZscoreParams struct {
	Scores     string  `hcl:"scores"`
	Bins       string  `hcl:"bins"`
	Trim       float64 `hcl:"trim,optional"`
	HDI        float64 `hcl:"hdi,optional"`
	NumThreads int     `hcl:"num_threads,optional"`
}

// DefaultZscoreParams returns the documented defaults.
func DefaultZscoreParams() ZscoreParams {
	return ZscoreParams{Trim: 2.5, HDI: 0.0, NumThreads: 2}
}

func (p *ZscoreParams) StageName() string { return "zscore" }

func (p *ZscoreParams) plan() (*job, error) {
	const stage = "zscore"
	if p.NumThreads < 1 {
		return nil, inputError(stage, "num_threads must be positive, got %d", p.NumThreads)
	}
	if p.Trim < 0 || p.HDI < 0 {
		return nil, inputError(stage, "trim and hdi must not be negative")
	}
	if err := checkInput(stage, "scores", formats.ContingencyMatrix, p.Scores, true); err != nil {
		return nil, err
	}
	if err := checkInput(stage, "bins", formats.PeptideBins, p.Bins, true); err != nil {
		return nil, err
	}

	table := formats.ContingencyMatrix.Canonical
	nan := formats.NaNReport.Canonical
	return &job{
		stage: stage,
		outputs: []output{
			{key: "zscores", format: formats.ContingencyMatrix, scratch: table, dest: table},
			{key: "nan_report", format: formats.NaNReport, scratch: nan, dest: nan},
		},
		args: func(scratch string) []string {
			return command.New("zscore").
				Required("-s", command.ResolvePath(p.Scores)).
				Required("-b", command.ResolvePath(p.Bins)).
				RequiredFloat("-t", p.Trim).
				RequiredFloat("-d", p.HDI).
				Required("-o", filepath.Join(scratch, table)).
				Required("-n", filepath.Join(scratch, nan)).
				RequiredInt("--num_threads", p.NumThreads).
				Args()
		},
	}, nil
}

// ZscoreResult is the output of Zscore.
type ZscoreResult struct {
	*Result
	Zscores   *Artifact
	NaNReport *Artifact
}

// Zscore computes per-bin z scores.
func (r *Runner) Zscore(ctx context.Context, p ZscoreParams, t Target) (*ZscoreResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &ZscoreResult{Result: res, Zscores: res.Outputs["zscores"], NaNReport: res.Outputs["nan_report"]}, nil
}
