package stages

import (
	"context"
	"path/filepath"
	"sort"

	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// normVariants maps each normalization approach to the semantic type of
// the matrix it produces.
var normVariants = map[string]string{
	"col_sum":      "Normed",
	"diff":         "NormedDifference",
	"diff_ratio":   "NormedDiffRatio",
	"ratio":        "NormedRatio",
	"size_factors": "NormedSized",
}

// NormApproaches lists the accepted normalization approaches.
func NormApproaches() []string {
	out := make([]string, 0, len(normVariants))
	for k := range normVariants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormParams configures the norm stage.
type NormParams struct {
	PeptideScores     string   `hcl:"peptide_scores"`
	NormalizeApproach string   `hcl:"normalize_approach,optional"`
	NegativeControl   string   `hcl:"negative_control,optional"`
	NegativeID        string   `hcl:"negative_id,optional"`
	NegativeNames     []string `hcl:"negative_names,optional"`
	Precision         int      `hcl:"precision,optional"`
}

// DefaultNormParams returns the documented defaults.
func DefaultNormParams() NormParams {
	return NormParams{NormalizeApproach: "col_sum", Precision: 2}
}

func (p *NormParams) StageName() string { return "norm" }

func (p *NormParams) plan() (*job, error) {
	const stage = "norm"
	variant, ok := normVariants[p.NormalizeApproach]
	if !ok {
		return nil, inputError(stage, "normalize_approach %q not one of %v", p.NormalizeApproach, NormApproaches())
	}
	if p.Precision < 0 {
		return nil, inputError(stage, "precision must not be negative, got %d", p.Precision)
	}
	if err := checkInput(stage, "peptide_scores", formats.ContingencyMatrix, p.PeptideScores, true); err != nil {
		return nil, err
	}
	if err := checkInput(stage, "negative_control", formats.ContingencyMatrix, p.NegativeControl, false); err != nil {
		return nil, err
	}

	j := &job{stage: stage, variant: variant}
	if p.NegativeControl != "" && p.NegativeID == "" && len(p.NegativeNames) == 0 {
		j.warnings = append(j.warnings, "negative_control given without negative_id or negative_names; the engine decides which samples are controls")
	}

	out := formats.ContingencyMatrix.Canonical
	j.outputs = []output{{key: "table", format: formats.ContingencyMatrix, scratch: out, dest: out}}
	j.args = func(scratch string) []string {
		return command.New("norm").
			Required("-a", p.NormalizeApproach).
			RequiredInt("--precision", p.Precision).
			Required("-o", filepath.Join(scratch, out)).
			Required("-p", command.ResolvePath(p.PeptideScores)).
			Optional("--negative_control", command.ResolvePath(p.NegativeControl)).
			Optional("-s", p.NegativeID).
			Joined("-n", p.NegativeNames).
			Args()
	}
	return j, nil
}

// NormResult is the output of Norm. Variant is one of Normed,
// NormedDifference, NormedDiffRatio, NormedRatio or NormedSized.
type NormResult struct {
	*Result
	Table *Artifact
}

// Norm normalizes a contingency matrix.
func (r *Runner) Norm(ctx context.Context, p NormParams, t Target) (*NormResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &NormResult{Result: res, Table: res.Outputs["table"]}, nil
}
