package stages

import (
	"context"
	"path/filepath"
	"regexp"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// tagLocation is start,length,mismatches.
var tagLocation = regexp.MustCompile(`^\d+,\d+,\d+$`)

// DemuxParams configures the demux stage. A flexible index file (FIF)
// replaces Index1 and Index2 entirely. Omitting Library runs the engine in
// reference-independent mode.
type DemuxParams struct {
	InputR1             string `hcl:"input_r1"`
	InputR2             string `hcl:"input_r2,optional"`
	Index               string `hcl:"index"`
	SampleList          string `hcl:"samplelist"`
	Seq                 string `hcl:"seq"`
	FIF                 string `hcl:"fif,optional"`
	Library             string `hcl:"library,optional"`
	ReadPerLoop         int    `hcl:"read_per_loop,optional"`
	NumThreads          int    `hcl:"num_threads,optional"`
	PhredBase           int    `hcl:"phred_base,optional"`
	PhredMinScore       int    `hcl:"phred_min_score,optional"`
	SIndex              string `hcl:"sindex,optional"`
	TranslateAggregates bool   `hcl:"translate_aggregates,optional"`
	Concatemer          bool   `hcl:"concatemer,optional"`
	SName               string `hcl:"sname,optional"`
	Index1              string `hcl:"index1,optional"`
	Index2              string `hcl:"index2,optional"`
}

// DefaultDemuxParams returns the documented defaults.
func DefaultDemuxParams() DemuxParams {
	return DemuxParams{
		ReadPerLoop: 100000,
		NumThreads:  2,
		PhredBase:   33,
		SName:       "SampleName",
		Index2:      "0,0,0",
	}
}

func (p *DemuxParams) StageName() string { return "demux" }

func (p *DemuxParams) plan() (*job, error) {
	const stage = "demux"
	if p.Seq == "" {
		return nil, inputError(stage, "seq is required")
	}
	if !tagLocation.MatchString(p.Seq) {
		return nil, inputError(stage, "seq %q must be start,length,mismatches", p.Seq)
	}
	if p.PhredBase != 33 && p.PhredBase != 64 {
		return nil, inputError(stage, "phred_base must be 33 or 64, got %d", p.PhredBase)
	}
	if p.ReadPerLoop < 1 || p.NumThreads < 1 {
		return nil, inputError(stage, "read_per_loop and num_threads must be positive")
	}
	if p.PhredMinScore < 0 {
		return nil, inputError(stage, "phred_min_score must not be negative, got %d", p.PhredMinScore)
	}

	j := &job{stage: stage}
	index1, index2 := p.Index1, p.Index2
	if p.FIF != "" {
		if index1 != "" {
			j.warnings = append(j.warnings, "fif given; index1 and index2 are ignored")
		}
		index1, index2 = "", ""
	} else {
		if index1 == "" {
			return nil, inputError(stage, "index1 is required without a flexible index file")
		}
		for name, v := range map[string]string{"index1": index1, "index2": index2} {
			if v != "" && !tagLocation.MatchString(v) {
				return nil, inputError(stage, "%s %q must be start,length,mismatches", name, v)
			}
		}
	}

	for _, in := range []struct {
		name     string
		format   *formats.Format
		path     string
		required bool
	}{
		{"input_r1", formats.Fastq, p.InputR1, true},
		{"input_r2", formats.Fastq, p.InputR2, false},
		{"index", formats.DemuxIndex, p.Index, true},
		{"samplelist", formats.DemuxSampleList, p.SampleList, true},
		{"fif", formats.DemuxFIF, p.FIF, false},
		{"library", formats.DemuxLibrary, p.Library, false},
	} {
		if err := checkInput(stage, in.name, in.format, in.path, in.required); err != nil {
			return nil, err
		}
	}

	raw := formats.ContingencyMatrix.Canonical
	diag := formats.DemuxDiagnostic.Canonical
	j.outputs = []output{
		{key: "raw", format: formats.ContingencyMatrix, scratch: raw, dest: raw},
		{key: "diagnostic", format: formats.DemuxDiagnostic, scratch: diag, dest: diag},
	}
	j.args = func(scratch string) []string {
		return command.New("demux").
			Required("--input_r1", command.ResolvePath(p.InputR1)).
			Optional("--input_r2", command.ResolvePath(p.InputR2)).
			Required("--seq", p.Seq).
			RequiredInt("-r", p.ReadPerLoop).
			RequiredInt("-t", p.NumThreads).
			RequiredInt("--phred_base", p.PhredBase).
			Required("-i", command.ResolvePath(p.Index)).
			Required("-s", command.ResolvePath(p.SampleList)).
			RequiredInt("--phred_min_score", p.PhredMinScore).
			Required("--sname", p.SName).
			Required("-d", filepath.Join(scratch, diag)).
			Required("-o", filepath.Join(scratch, raw)).
			Optional("-f", command.ResolvePath(p.FIF)).
			Optional("-l", command.ResolvePath(p.Library)).
			Flag("--translate_aggregates", p.TranslateAggregates).
			Flag("--concatemer", p.Concatemer).
			Optional("--index1", index1).
			Optional("--index2", index2).
			Optional("--sindex", p.SIndex).
			Args()
	}
	return j, nil
}

// DemuxResult is the output of Demux.
type DemuxResult struct {
	*Result
	Raw        *Artifact
	Diagnostic *Artifact
}

// Demux demultiplexes sequencing reads into a raw count matrix.
func (r *Runner) Demux(ctx context.Context, p DemuxParams, t Target) (*DemuxResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &DemuxResult{Result: res, Raw: res.Outputs["raw"], Diagnostic: res.Outputs["diagnostic"]}, nil
}
