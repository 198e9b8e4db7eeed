package stages

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// DuplicateEvaluations lists the accepted duplicate_evaluation modes.
var DuplicateEvaluations = []string{"combine", "include", "ignore"}

const subjoinManifest = "multi-file.tsv"

// SubjoinParams configures the subjoin stage. Exactly one of MultiFile,
// SubjoinInput and MultiFileInput must be set; the latter two take
// "matrix,namelist" strings.
type SubjoinParams struct {
	MultiFile           string   `hcl:"multi_file,optional"`
	SubjoinInput        string   `hcl:"subjoin_input,optional"`
	MultiFileInput      []string `hcl:"multi_file_input,optional"`
	FilterPeptideNames  bool     `hcl:"filter_peptide_names,optional"`
	DuplicateEvaluation string   `hcl:"duplicate_evaluation,optional"`
}

// DefaultSubjoinParams returns the documented defaults.
func DefaultSubjoinParams() SubjoinParams {
	return SubjoinParams{DuplicateEvaluation: "include"}
}

func (p *SubjoinParams) StageName() string { return "subjoin" }

func (p *SubjoinParams) plan() (*job, error) {
	const stage = "subjoin"
	modes := 0
	for _, set := range []bool{p.MultiFile != "", p.SubjoinInput != "", len(p.MultiFileInput) > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		return nil, inputError(stage, "exactly one of multi_file, subjoin_input or multi_file_input is required, got %d", modes)
	}
	valid := false
	for _, d := range DuplicateEvaluations {
		if d == p.DuplicateEvaluation {
			valid = true
		}
	}
	if !valid {
		return nil, inputError(stage, "duplicate_evaluation %q not one of %v", p.DuplicateEvaluation, DuplicateEvaluations)
	}

	j := &job{stage: stage}
	var manifest []byte
	if p.MultiFile != "" {
		if err := checkInput(stage, "multi_file", formats.SubjoinMultiFile, p.MultiFile, true); err != nil {
			return nil, err
		}
		data, err := resolveMultiFile(p.MultiFile)
		if err != nil {
			return nil, inputError(stage, "multi_file: %v", err)
		}
		manifest = data
		j.prepare = func(scratch string) error {
			return os.WriteFile(filepath.Join(scratch, subjoinManifest), manifest, 0644)
		}
	}
	for _, in := range append([]string{p.SubjoinInput}, p.MultiFileInput...) {
		if in != "" && !strings.Contains(in, ",") {
			return nil, inputError(stage, "input %q must be matrix,namelist", in)
		}
	}

	out := formats.ContingencyMatrix.Canonical
	j.outputs = []output{{key: "table", format: formats.ContingencyMatrix, scratch: out, dest: out}}
	j.args = func(scratch string) []string {
		b := command.New("subjoin")
		switch {
		case p.MultiFile != "":
			b.Required("-m", filepath.Join(scratch, subjoinManifest))
		case p.SubjoinInput != "":
			b.Required("-i", command.ResolveComponents(p.SubjoinInput))
		default:
			resolved := make([]string, len(p.MultiFileInput))
			for i, in := range p.MultiFileInput {
				resolved[i] = command.ResolveComponents(in)
			}
			b.Repeated("-i", resolved)
		}
		return b.Required("-d", p.DuplicateEvaluation).
			Required("-o", filepath.Join(scratch, out)).
			Flag("--filter_peptide_names", p.FilterPeptideNames).
			Args()
	}
	return j, nil
}

// resolveMultiFile rewrites a multi-file manifest so that components naming
// existing files, relative to the manifest's directory, become absolute.
func resolveMultiFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		for i, field := range fields {
			parts := strings.Split(field, ",")
			for k, part := range parts {
				if part == "" || filepath.IsAbs(part) {
					continue
				}
				candidate := filepath.Join(base, part)
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
					parts[k] = command.ResolvePath(candidate)
				}
			}
			fields[i] = strings.Join(parts, ",")
		}
		fmt.Fprintln(&out, strings.Join(fields, "\t"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SubjoinResult is the output of Subjoin.
type SubjoinResult struct {
	*Result
	Table *Artifact
}

// Subjoin extracts and merges sub-matrices.
func (r *Runner) Subjoin(ctx context.Context, p SubjoinParams, t Target) (*SubjoinResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &SubjoinResult{Result: res, Table: res.Outputs["table"]}, nil
}
