package stages

import (
	"context"
	"path/filepath"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// Info reports.
const (
	InfoSamples = "samples"
	InfoProbes  = "probes"
	InfoSums    = "sums"
)

// InfoParams configures the read-only info stage.
type InfoParams struct {
	Input  string `hcl:"input"`
	Report string `hcl:"report"`
}

func (p *InfoParams) StageName() string { return "info" }

func (p *InfoParams) plan() (*job, error) {
	const stage = "info"
	var flag string
	format := formats.NameList
	switch p.Report {
	case InfoSamples:
		flag = "-s"
	case InfoProbes:
		flag = "-p"
	case InfoSums:
		flag = "-c"
		format = formats.SumOfProbes
	default:
		return nil, inputError(stage, "report must be one of %s, %s, %s; got %q", InfoSamples, InfoProbes, InfoSums, p.Report)
	}
	if err := checkInput(stage, "input", formats.ContingencyMatrix, p.Input, true); err != nil {
		return nil, err
	}

	out := format.Canonical
	return &job{
		stage:   stage,
		variant: format.Name,
		outputs: []output{{key: "report", format: format, scratch: out, dest: out}},
		args: func(scratch string) []string {
			return command.New("info").
				Required("-i", command.ResolvePath(p.Input)).
				Required(flag, filepath.Join(scratch, out)).
				Args()
		},
	}, nil
}

// InfoResult is the output of Info.
type InfoResult struct {
	*Result
	Report *Artifact
}

// Info lists sample or probe names, or sums probe scores per sample.
func (r *Runner) Info(ctx context.Context, p InfoParams, t Target) (*InfoResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &InfoResult{Result: res, Report: res.Outputs["report"]}, nil
}
