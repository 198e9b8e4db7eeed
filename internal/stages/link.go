package stages

import (
	"context"
	"path/filepath"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// LinkParams configures the link stage. Meta is forwarded as given, with
// file components made absolute.
type LinkParams struct {
	ProteinFile           string `hcl:"protein_file"`
	PeptideFile           string `hcl:"peptide_file"`
	Meta                  string `hcl:"meta"`
	KmerSize              int    `hcl:"kmer_size"`
	KmerRedundancyControl bool   `hcl:"kmer_redundancy_control,optional"`
}

func (p *LinkParams) StageName() string { return "link" }

func (p *LinkParams) plan() (*job, error) {
	const stage = "link"
	if p.KmerSize < 1 {
		return nil, inputError(stage, "kmer_size must be positive, got %d", p.KmerSize)
	}
	if p.Meta == "" {
		return nil, inputError(stage, "meta is required")
	}
	if err := checkInput(stage, "protein_file", formats.ProteinFasta, p.ProteinFile, true); err != nil {
		return nil, err
	}
	if err := checkInput(stage, "peptide_file", formats.PeptideFasta, p.PeptideFile, true); err != nil {
		return nil, err
	}

	out := formats.LinkMap.Canonical
	return &job{
		stage:   stage,
		outputs: []output{{key: "link_map", format: formats.LinkMap, scratch: out, dest: out}},
		args: func(scratch string) []string {
			return command.New("link").
				Required("--protein_file", command.ResolvePath(p.ProteinFile)).
				Required("--peptide_file", command.ResolvePath(p.PeptideFile)).
				Required("--meta", command.ResolveComponents(p.Meta)).
				RequiredInt("-k", p.KmerSize).
				Required("-o", filepath.Join(scratch, out)).
				Flag("-r", p.KmerRedundancyControl).
				Args()
		},
	}, nil
}

// LinkResult is the output of Link.
type LinkResult struct {
	*Result
	LinkMap *Artifact
}

// Link builds the peptide to taxon linkage map.
func (r *Runner) Link(ctx context.Context, p LinkParams, t Target) (*LinkResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Result: res, LinkMap: res.Outputs["link_map"]}, nil
}
