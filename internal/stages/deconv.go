package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"pepkit/internal/collection"
	"pepkit/internal/command"
	"pepkit/internal/formats"
)

// ScoringStrategies lists the accepted deconv scoring strategies.
var ScoringStrategies = []string{"summation", "integer", "fractional"}

const (
	deconvScoreDir    = "out_score"
	deconvEnrichedDir = "enriched"
	deconvBatchOut    = "deconv"
	deconvMapDir      = "peptide-assignment-maps"
	scorePerRoundDest = "score-per-round"
)

// deconvShared holds the arguments common to singular and batch mode.
type deconvShared struct {
	threshold             int
	linked                string
	scoringStrategy       string
	scoreFiltering        bool
	scoreTieThreshold     string
	scoreOverlapThreshold string
	idNameMap             string
	singleThreaded        bool
}

func (d deconvShared) validate(stage string) error {
	if d.threshold < 0 {
		return inputError(stage, "threshold must not be negative, got %d", d.threshold)
	}
	valid := false
	for _, s := range ScoringStrategies {
		if s == d.scoringStrategy {
			valid = true
		}
	}
	if !valid {
		return inputError(stage, "scoring_strategy %q not one of %v", d.scoringStrategy, ScoringStrategies)
	}
	// Tie and overlap thresholds are either integer differences or
	// proportions; the engine interprets them. Only the type is checked.
	for name, v := range map[string]string{
		"score_tie_threshold":     d.scoreTieThreshold,
		"score_overlap_threshold": d.scoreOverlapThreshold,
	} {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return inputError(stage, "%s %q is not a number", name, v)
		}
	}
	if err := checkInput(stage, "linked", formats.LinkMap, d.linked, true); err != nil {
		return err
	}
	return checkInput(stage, "id_name_map", formats.IDNameMap, d.idNameMap, false)
}

func (d deconvShared) builder(enriched, out, scratch string) *command.Builder {
	return command.New("deconv").
		Required("-e", enriched).
		Required("--enriched_file_ending", "paired.txt").
		RequiredInt("-t", d.threshold).
		Required("-l", command.ResolvePath(d.linked)).
		Required("--scoring_strategy", d.scoringStrategy).
		Required("--score_tie_threshold", d.scoreTieThreshold).
		Required("--score_overlap_threshold", d.scoreOverlapThreshold).
		Required("-o", out).
		Required("-s", filepath.Join(scratch, deconvScoreDir)).
		Flag("--score_filtering", d.scoreFiltering).
		Optional("--id_name_map", command.ResolvePath(d.idNameMap)).
		Flag("--single_threaded", d.singleThreaded)
}

var scorePerRoundOutput = output{
	key:     "score_per_round",
	format:  formats.ScorePerRoundDir,
	scratch: deconvScoreDir,
	dest:    scorePerRoundDest,
}

// DeconvParams configures deconv in singular mode.
type DeconvParams struct {
	Enriched              string `hcl:"enriched"`
	Threshold             int    `hcl:"threshold"`
	Linked                string `hcl:"linked"`
	ScoringStrategy       string `hcl:"scoring_strategy,optional"`
	ScoreFiltering        bool   `hcl:"score_filtering,optional"`
	ScoreTieThreshold     string `hcl:"score_tie_threshold,optional"`
	ScoreOverlapThreshold string `hcl:"score_overlap_threshold,optional"`
	IDNameMap             string `hcl:"id_name_map,optional"`
	SingleThreaded        bool   `hcl:"single_threaded,optional"`
}

// DefaultDeconvParams returns the documented defaults.
func DefaultDeconvParams() DeconvParams {
	return DeconvParams{ScoringStrategy: "summation", ScoreTieThreshold: "0.0", ScoreOverlapThreshold: "0.0"}
}

func (p *DeconvParams) StageName() string { return "deconv" }

func (p *DeconvParams) shared() deconvShared {
	return deconvShared{
		threshold: p.Threshold, linked: p.Linked, scoringStrategy: p.ScoringStrategy,
		scoreFiltering: p.ScoreFiltering, scoreTieThreshold: p.ScoreTieThreshold,
		scoreOverlapThreshold: p.ScoreOverlapThreshold, idNameMap: p.IDNameMap,
		singleThreaded: p.SingleThreaded,
	}
}

func (p *DeconvParams) plan() (*job, error) {
	const stage = "deconv"
	shared := p.shared()
	if err := shared.validate(stage); err != nil {
		return nil, err
	}
	if err := checkInput(stage, "enriched", formats.PeptideIDList, p.Enriched, true); err != nil {
		return nil, err
	}

	out := formats.DeconvSingular.Canonical
	return &job{
		stage: stage,
		outputs: []output{
			{key: "table", format: formats.DeconvSingular, scratch: out, dest: out},
			scorePerRoundOutput,
		},
		args: func(scratch string) []string {
			return shared.builder(command.ResolvePath(p.Enriched), filepath.Join(scratch, out), scratch).Args()
		},
	}, nil
}

// DeconvResult is the output of Deconv.
type DeconvResult struct {
	*Result
	Table         *Artifact
	ScorePerRound *Artifact
}

// Deconv assigns one enriched peptide list to species.
func (r *Runner) Deconv(ctx context.Context, p DeconvParams, t Target) (*DeconvResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &DeconvResult{Result: res, Table: res.Outputs["table"], ScorePerRound: res.Outputs["score_per_round"]}, nil
}

// DeconvBatchParams configures deconv in batch mode. Members of every
// enriched collection are staged flat into one directory first.
type DeconvBatchParams struct {
	EnrichedDirs          []string `hcl:"enriched_dirs"`
	Threshold             int      `hcl:"threshold"`
	Linked                string   `hcl:"linked"`
	OutfileSuffix         string   `hcl:"outfile_suffix"`
	MapfileSuffix         string   `hcl:"mapfile_suffix"`
	RemoveFileTypes       bool     `hcl:"remove_file_types,optional"`
	ScoringStrategy       string   `hcl:"scoring_strategy,optional"`
	ScoreFiltering        bool     `hcl:"score_filtering,optional"`
	ScoreTieThreshold     string   `hcl:"score_tie_threshold,optional"`
	ScoreOverlapThreshold string   `hcl:"score_overlap_threshold,optional"`
	IDNameMap             string   `hcl:"id_name_map,optional"`
	SingleThreaded        bool     `hcl:"single_threaded,optional"`
	// JoinOn is the separator the upstream enrich stage joined replicate
	// names with. Empty means "~".
	JoinOn string `hcl:"join_on,optional"`
}

// DefaultDeconvBatchParams returns the documented defaults.
func DefaultDeconvBatchParams() DeconvBatchParams {
	return DeconvBatchParams{ScoringStrategy: "summation", ScoreTieThreshold: "0.0", ScoreOverlapThreshold: "0.0"}
}

func (p *DeconvBatchParams) StageName() string { return "deconv_batch" }

func (p *DeconvBatchParams) shared() deconvShared {
	return deconvShared{
		threshold: p.Threshold, linked: p.Linked, scoringStrategy: p.ScoringStrategy,
		scoreFiltering: p.ScoreFiltering, scoreTieThreshold: p.ScoreTieThreshold,
		scoreOverlapThreshold: p.ScoreOverlapThreshold, idNameMap: p.IDNameMap,
		singleThreaded: p.SingleThreaded,
	}
}

func (p *DeconvBatchParams) plan() (*job, error) {
	const stage = "deconv_batch"
	shared := p.shared()
	if err := shared.validate(stage); err != nil {
		return nil, err
	}
	if p.OutfileSuffix == "" || p.MapfileSuffix == "" {
		return nil, inputError(stage, "outfile_suffix and mapfile_suffix are required")
	}
	if len(p.EnrichedDirs) == 0 {
		return nil, inputError(stage, "enriched_dirs is required")
	}

	if strings.ContainsAny(p.JoinOn, "/_") {
		return nil, inputError(stage, "join_on %q must not contain '/' or '_'", p.JoinOn)
	}
	enriched := collection.JoinedComparison(p.JoinOn, formats.EnrichedSuffix, formats.EnrichedExt)
	var members []collection.Member
	for _, dir := range p.EnrichedDirs {
		c, err := formats.EnrichedPeptideDir.OpenCollection(dir, enriched)
		if err != nil {
			return nil, inputError(stage, "enriched_dirs: %v", err)
		}
		for _, m := range c.Members {
			m.Path = command.ResolvePath(m.Path)
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return nil, inputError(stage, "enriched_dirs contain no enriched peptide lists")
	}

	return &job{
		stage: stage,
		outputs: []output{
			{
				key:     "dir",
				format:  formats.DeconvBatchDir,
				pattern: collection.JoinedComparison(p.JoinOn, "", p.OutfileSuffix),
				scratch: deconvBatchOut,
				dest:    deconvBatchOut,
				mkdir:   true,
			},
			scorePerRoundOutput,
			{
				key:     "map_dir",
				format:  formats.PeptideAssignMapDir,
				pattern: collection.JoinedComparison(p.JoinOn, "", p.MapfileSuffix),
				scratch: deconvMapDir,
				dest:    deconvMapDir,
				mkdir:   true,
			},
		},
		prepare: func(scratch string) error {
			if err := collection.Stage(members, filepath.Join(scratch, deconvEnrichedDir)); err != nil {
				return inputError(stage, "stage enriched collections: %w", err)
			}
			return nil
		},
		args: func(scratch string) []string {
			return shared.builder(filepath.Join(scratch, deconvEnrichedDir), filepath.Join(scratch, deconvBatchOut), scratch).
				Required("--outfile_suffix", p.OutfileSuffix).
				Required("--mapfile_suffix", p.MapfileSuffix).
				Required("-p", filepath.Join(scratch, deconvMapDir)).
				Flag("-r", p.RemoveFileTypes).
				Args()
		},
		post: func(scratch string, produced map[string]*Artifact) error {
			if len(produced["dir"].Collection.Members) == 0 {
				return semanticError(stage, fmt.Sprintf("no deconvolution outputs ending in %q", p.OutfileSuffix))
			}
			return nil
		},
	}, nil
}

// DeconvBatchResult is the output of DeconvBatch.
type DeconvBatchResult struct {
	*Result
	Dir           *Artifact
	ScorePerRound *Artifact
	MapDir        *Artifact
}

// DeconvBatch deconvolves every member of one or more enriched collections.
func (r *Runner) DeconvBatch(ctx context.Context, p DeconvBatchParams, t Target) (*DeconvBatchResult, error) {
	res, err := r.Run(ctx, &p, t)
	if err != nil {
		return nil, err
	}
	return &DeconvBatchResult{
		Result:        res,
		Dir:           res.Outputs["dir"],
		ScorePerRound: res.Outputs["score_per_round"],
		MapDir:        res.Outputs["map_dir"],
	}, nil
}
