package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pepkit/internal/collection"
	"pepkit/internal/command"
	"pepkit/internal/formats"
	"pepkit/internal/grouping"
	"pepkit/internal/threshold"
)

// Replicate manifest modes.
const (
	ReplicatesPairs = "pairs" // every 2-combination within a group
	ReplicatesAll   = "all"   // one line per group with all replicates
)

const (
	enrichManifest  = "pairs.tsv"
	enrichThreshold = "thresh.tsv"
	enrichOutDir    = "enriched"
	enrichSuffixArg = "_" + formats.EnrichedSuffix + formats.EnrichedExt
)

// EnrichParams configures the enrich stage. Replicate groups come from
// Source, or from the Metadata file's MetadataColumn when Source is empty.
type EnrichParams struct {
	Source         grouping.LabelMapping
	Metadata       string `hcl:"metadata,optional"`
	MetadataColumn string `hcl:"metadata_column,optional"`
	Replicates     string `hcl:"replicates,optional"`

	ThreshFile    string `hcl:"thresh_file,optional"`
	Zscores       string `hcl:"zscores,optional"`
	ColSum        string `hcl:"col_sum,optional"`
	ExactZThresh  string `hcl:"exact_z_thresh,optional"`
	ExactCSThresh string `hcl:"exact_cs_thresh,optional"`

	RawScores         string `hcl:"raw_scores,optional"`
	RawConstraint     *int   `hcl:"raw_constraint,optional"`
	EnrichmentFailure bool   `hcl:"enrichment_failure,optional"`
	Truncate          bool   `hcl:"truncate,optional"`
	JoinOn            string `hcl:"join_on,optional"`
}

// DefaultEnrichParams returns the documented defaults.
func DefaultEnrichParams() EnrichParams {
	return EnrichParams{Replicates: ReplicatesPairs}
}

func (p *EnrichParams) StageName() string { return "enrich" }

func (p *EnrichParams) plan() (*job, error) {
	const stage = "enrich"

	mapping := p.Source
	if len(mapping) == 0 && p.Metadata != "" {
		if p.MetadataColumn == "" {
			return nil, inputError(stage, "metadata_column is required with metadata")
		}
		m, err := grouping.ReadMetadataColumn(p.Metadata, p.MetadataColumn)
		if err != nil {
			return nil, inputError(stage, "metadata: %v", err)
		}
		mapping = m
	}
	groups, err := grouping.GroupByLabel(mapping)
	if err != nil {
		return nil, inputError(stage, "source: %v", err)
	}
	var tuples [][]string
	switch p.Replicates {
	case "", ReplicatesPairs:
		tuples = grouping.Pairs(groups)
	case ReplicatesAll:
		tuples = grouping.FullTuples(groups)
	default:
		return nil, inputError(stage, "replicates must be %q or %q, got %q", ReplicatesPairs, ReplicatesAll, p.Replicates)
	}

	if p.RawConstraint != nil && p.RawScores == "" {
		return nil, inputError(stage, "raw_constraint requires raw_scores")
	}
	// a zero constraint is the engine default and is not passed
	rawConstraint := p.RawConstraint
	if rawConstraint != nil && *rawConstraint == 0 {
		rawConstraint = nil
	}
	if strings.ContainsAny(p.JoinOn, "/_") {
		return nil, inputError(stage, "join_on %q must not contain '/' or '_'", p.JoinOn)
	}
	pattern := collection.JoinedComparison(p.JoinOn, formats.EnrichedSuffix, formats.EnrichedExt)
	for _, tuple := range tuples {
		for _, id := range tuple {
			if strings.Contains(id, pattern.Separator()) {
				return nil, inputError(stage, "sample id %q contains the join separator %q", id, pattern.Separator())
			}
		}
	}
	if err := checkInput(stage, "raw_scores", formats.ContingencyMatrix, p.RawScores, false); err != nil {
		return nil, err
	}

	j := &job{stage: stage}
	var spec *threshold.Spec
	if p.ThreshFile != "" {
		if err := checkInput(stage, "thresh_file", formats.EnrichThreshFile, p.ThreshFile, true); err != nil {
			return nil, err
		}
		if p.Zscores != "" || p.ColSum != "" || p.ExactZThresh != "" || p.ExactCSThresh != "" {
			j.warnings = append(j.warnings, "thresh_file given; zscores, col_sum and exact thresholds are ignored")
		}
	} else {
		if err := checkInput(stage, "zscores", formats.ContingencyMatrix, p.Zscores, false); err != nil {
			return nil, err
		}
		if err := checkInput(stage, "col_sum", formats.ContingencyMatrix, p.ColSum, false); err != nil {
			return nil, err
		}
		spec, err = threshold.Synthesize([]threshold.Source{
			{Name: "zscores", Matrix: command.ResolvePath(p.Zscores), Threshold: p.ExactZThresh},
			{Name: "col_sum", Matrix: command.ResolvePath(p.ColSum), Threshold: p.ExactCSThresh},
		})
		if err != nil {
			return nil, inputError(stage, "threshold: %v", err)
		}
	}

	if len(tuples) == 0 {
		return nil, semanticError(stage, "no enriched peptides: the replicate manifest is empty")
	}

	threshPath := func(scratch string) string {
		if spec == nil {
			return command.ResolvePath(p.ThreshFile)
		}
		return filepath.Join(scratch, enrichThreshold)
	}

	j.outputs = []output{{
		key:     "enriched_dir",
		format:  formats.EnrichedPeptideDir,
		pattern: pattern,
		scratch: enrichOutDir,
		dest:    enrichOutDir,
		mkdir:   true,
	}}
	j.prepare = func(scratch string) error {
		if err := grouping.WriteManifestFile(filepath.Join(scratch, enrichManifest), tuples); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		if spec != nil {
			if err := spec.WriteFile(filepath.Join(scratch, enrichThreshold)); err != nil {
				return fmt.Errorf("write threshold file: %w", err)
			}
		}
		return nil
	}
	j.args = func(scratch string) []string {
		failure := ""
		if p.EnrichmentFailure {
			failure = formats.FailedEnrichmentFile
		}
		return command.New("enrich").
			Required("-t", threshPath(scratch)).
			Required("-s", filepath.Join(scratch, enrichManifest)).
			Required("-x", enrichSuffixArg).
			Required("-o", filepath.Join(scratch, enrichOutDir)).
			Optional("-r", command.ResolvePath(p.RawScores)).
			OptionalInt("--raw_score_constraint", rawConstraint).
			Optional("-f", failure).
			Flag("--output_filename_truncate", p.Truncate).
			Optional("-j", p.JoinOn).
			Args()
	}
	j.post = func(scratch string, produced map[string]*Artifact) error {
		dir := produced["enriched_dir"]
		failed := filepath.Join(dir.Path, formats.FailedEnrichmentFile)
		if _, err := os.Stat(failed); os.IsNotExist(err) {
			if err := os.WriteFile(failed, nil, 0644); err != nil {
				return &Error{Stage: stage, Kind: OutputValidation, Path: failed, Err: err}
			}
		}
		if len(dir.Collection.Members) == 0 {
			return semanticError(stage, "no enriched peptides")
		}
		return nil
	}
	return j, nil
}

// EnrichResult is the output of Enrich.
type EnrichResult struct {
	*Result
	Enriched *Artifact
}

// Enrich finds peptides enriched across replicate groups.
func (r *Runner) Enrich(ctx context.Context, p EnrichParams, t Target) (*EnrichResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &EnrichResult{Result: res, Enriched: res.Outputs["enriched_dir"]}, nil
}
