package stages

import (
	"context"
	"path/filepath"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// BinParams configures the bin stage.
type BinParams struct {
	Scores  string `hcl:"scores"`
	BinSize int    `hcl:"bin_size,optional"`
	RoundTo int    `hcl:"round_to,optional"`
}

// DefaultBinParams returns the documented defaults.
func DefaultBinParams() BinParams {
	return BinParams{BinSize: 300, RoundTo: 0}
}

func (p *BinParams) StageName() string { return "bin" }

func (p *BinParams) plan() (*job, error) {
	const stage = "bin"
	if p.BinSize < 1 {
		return nil, inputError(stage, "bin_size must be positive, got %d", p.BinSize)
	}
	if p.RoundTo < 0 {
		return nil, inputError(stage, "round_to must not be negative, got %d", p.RoundTo)
	}
	if err := checkInput(stage, "scores", formats.ContingencyMatrix, p.Scores, true); err != nil {
		return nil, err
	}

	out := formats.PeptideBins.Canonical
	return &job{
		stage:   stage,
		outputs: []output{{key: "bins", format: formats.PeptideBins, scratch: out, dest: out}},
		args: func(scratch string) []string {
			return command.New("bin").
				Required("-s", command.ResolvePath(p.Scores)).
				RequiredInt("-b", p.BinSize).
				RequiredInt("-r", p.RoundTo).
				Required("-o", filepath.Join(scratch, out)).
				Args()
		},
	}, nil
}

// BinResult is the output of Bin.
type BinResult struct {
	*Result
	Bins *Artifact
}

// Bin groups peptides into bins of similar baseline score.
func (r *Runner) Bin(ctx context.Context, p BinParams, t Target) (*BinResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &BinResult{Result: res, Bins: res.Outputs["bins"]}, nil
}
