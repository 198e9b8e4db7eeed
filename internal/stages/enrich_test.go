package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pepkit/internal/formats"
	"pepkit/internal/grouping"
)

func replicateSource() grouping.LabelMapping {
	return grouping.LabelMapping{
		{Sample: "s1", Label: "A"},
		{Sample: "s3", Label: "B"},
		{Sample: "s2", Label: "A"},
		{Sample: "s4", Label: "B"},
	}
}

func TestEnrich_SentinelSynthesized(t *testing.T) {
	engine := newFakeEngine(t)
	inputs := t.TempDir()
	dest := filepath.Join(t.TempDir(), "enrich")

	p := DefaultEnrichParams()
	p.Source = replicateSource()
	p.Zscores = matrixFile(t, inputs, "z.tsv")
	p.ExactZThresh = "6,10"
	p.ColSum = matrixFile(t, inputs, "cs.tsv")
	p.ExactCSThresh = "20"

	res, err := engine.runner().Enrich(context.Background(), p, Target{Dest: dest})
	require.NoError(t, err)

	assert.Equal(t, "s1\ts2\ns3\ts4\n", engine.read(t, "pairs.copy"))
	assert.Equal(t, p.Zscores+"\t6,10\n"+p.ColSum+"\t20\n", engine.read(t, "thresh.copy"))

	argv := engine.argv(t)
	assert.Equal(t, []string{
		"enrich", "-t", "SCRATCH/thresh.tsv", "-s", "SCRATCH/pairs.tsv",
		"-x", "_enriched.txt", "-o", "SCRATCH/enriched",
	}, argv)

	dir := res.Enriched
	require.NotNil(t, dir.Collection)
	assert.Equal(t, filepath.Join(dest, "enriched"), dir.Path)
	assert.Equal(t, []string{"s1~s2_enriched.txt"}, dir.Collection.Names())
	assert.Equal(t, []string{formats.FailedEnrichmentFile}, dir.Collection.Present)
	assert.FileExists(t, filepath.Join(dir.Path, formats.FailedEnrichmentFile))

	sets, err := dir.Collection.PeptideSets()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"s1~s2": {"pep1", "pep2"}}, sets)
	engine.assertScratchClean(t)
}

func TestEnrich_NothingEnriched(t *testing.T) {
	engine := newFakeEngine(t)
	engine.setMode(t, "nothing")
	dest := filepath.Join(t.TempDir(), "enrich")

	p := DefaultEnrichParams()
	p.Source = replicateSource()
	p.ThreshFile = writeFile(t, t.TempDir(), "thresh.tsv", "/data/z.tsv\t6\n")
	p.EnrichmentFailure = true

	_, err := engine.runner().Enrich(context.Background(), p, Target{Dest: dest})
	require.ErrorIs(t, err, ErrSemanticFailure)
	assert.Contains(t, err.Error(), "no enriched peptides")
	assert.Contains(t, engine.argv(t), "failedEnrichment.txt")
	assert.Equal(t, "/data/z.tsv\t6\n", engine.read(t, "thresh.copy"))
	assert.NoDirExists(t, dest)
	engine.assertScratchClean(t)
}

func TestEnrich_EmptyManifest(t *testing.T) {
	engine := newFakeEngine(t)
	p := DefaultEnrichParams()
	p.Source = grouping.LabelMapping{{Sample: "s1", Label: "A"}, {Sample: "s2", Label: "B"}}
	p.Zscores = matrixFile(t, t.TempDir(), "z.tsv")
	p.ExactZThresh = "6"

	_, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
	require.ErrorIs(t, err, ErrSemanticFailure)
	assert.False(t, engine.spawned())
}

func TestEnrich_ReplicatesAllAndMetadata(t *testing.T) {
	engine := newFakeEngine(t)
	inputs := t.TempDir()
	meta := writeFile(t, inputs, "meta.tsv",
		"sample-id\tsource\n#q2:types\tcategorical\nsA\tX\nsB\tX\nsC\tX\nsD\tY\n")

	p := DefaultEnrichParams()
	p.Metadata = meta
	p.MetadataColumn = "source"
	p.Replicates = ReplicatesAll
	p.ThreshFile = writeFile(t, inputs, "thresh.tsv", "/data/z.tsv\t6\n")
	p.Zscores = matrixFile(t, inputs, "z.tsv")
	raw := matrixFile(t, inputs, "raw.tsv")
	p.RawScores = raw
	constraint := 300
	p.RawConstraint = &constraint
	p.JoinOn = "~"
	p.Truncate = true

	res, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "thresh_file")

	assert.Equal(t, "sA\tsB\tsC\nsD\n", engine.read(t, "pairs.copy"))
	assert.Equal(t, []string{
		"enrich", "-t", p.ThreshFile, "-s", "SCRATCH/pairs.tsv",
		"-x", "_enriched.txt", "-o", "SCRATCH/enriched",
		"-r", raw, "--raw_score_constraint", "300",
		"--output_filename_truncate", "-j", "~",
	}, engine.argv(t))
}

func TestEnrich_InputErrors(t *testing.T) {
	inputs := t.TempDir()
	z := matrixFile(t, inputs, "z.tsv")
	constraint := 5

	tests := []struct {
		name   string
		mutate func(p *EnrichParams)
	}{
		{"raw constraint without raw scores", func(p *EnrichParams) { p.RawConstraint = &constraint }},
		{"threshold without matrix", func(p *EnrichParams) { p.Zscores = ""; p.ExactCSThresh = "20" }},
		{"matrix without threshold", func(p *EnrichParams) { p.ExactZThresh = "" }},
		{"bad threshold", func(p *EnrichParams) { p.ExactZThresh = "high" }},
		{"unknown replicates", func(p *EnrichParams) { p.Replicates = "triples" }},
		{"duplicate sample", func(p *EnrichParams) {
			p.Source = append(p.Source, grouping.Entry{Sample: "s1", Label: "C"})
		}},
		{"metadata without column", func(p *EnrichParams) { p.Source = nil; p.Metadata = z }},
		{"join_on with underscore", func(p *EnrichParams) { p.JoinOn = "_" }},
		{"sample id contains separator", func(p *EnrichParams) {
			p.Source = append(p.Source, grouping.Entry{Sample: "s5~x", Label: "A"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(t)
			p := DefaultEnrichParams()
			p.Source = replicateSource()
			p.Zscores = z
			p.ExactZThresh = "6"
			tt.mutate(&p)

			_, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
			assert.ErrorIs(t, err, ErrInputValidation)
			assert.False(t, engine.spawned())
		})
	}
}

func TestEnrich_EngineFailureKeepsDestination(t *testing.T) {
	engine := newFakeEngine(t)
	engine.setMode(t, "fail")
	dest := t.TempDir()

	p := DefaultEnrichParams()
	p.Source = replicateSource()
	p.Zscores = matrixFile(t, t.TempDir(), "z.tsv")
	p.ExactZThresh = "6"

	_, err := engine.runner().Enrich(context.Background(), p, Target{Dest: dest})
	require.ErrorIs(t, err, ErrEngineExecution)
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnrich_JoinOnNamesMembers(t *testing.T) {
	engine := newFakeEngine(t)
	p := DefaultEnrichParams()
	p.Source = replicateSource()
	p.Zscores = matrixFile(t, t.TempDir(), "z.tsv")
	p.ExactZThresh = "6"
	p.JoinOn = "-"

	res, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
	require.NoError(t, err)

	argv := engine.argv(t)
	assert.Equal(t, []string{"-j", "-"}, argv[len(argv)-2:])
	c := res.Enriched.Collection
	assert.Equal(t, []string{"s1-s2_enriched.txt"}, c.Names())
	assert.Equal(t, []string{"s1", "s2"}, c.Members[0].Key.Comparison)

	sets, err := c.PeptideSets()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"s1-s2": {"pep1", "pep2"}}, sets)
}

func TestEnrich_SingletonGroupNotAMember(t *testing.T) {
	engine := newFakeEngine(t)
	engine.setMode(t, "tuples")
	p := DefaultEnrichParams()
	p.Source = grouping.LabelMapping{
		{Sample: "sA", Label: "X"},
		{Sample: "sB", Label: "X"},
		{Sample: "sC", Label: "X"},
		{Sample: "sD", Label: "Y"},
	}
	p.Replicates = ReplicatesAll
	p.Zscores = matrixFile(t, t.TempDir(), "z.tsv")
	p.ExactZThresh = "6"
	p.JoinOn = "+"

	res, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
	require.NoError(t, err)

	c := res.Enriched.Collection
	assert.Equal(t, []string{"sA+sB+sC_enriched.txt"}, c.Names())
	assert.Equal(t, []string{"sD_enriched.txt"}, c.Excluded)
	assert.FileExists(t, filepath.Join(res.Enriched.Path, "sD_enriched.txt"))
}

func TestEnrich_ZeroRawConstraintOmitted(t *testing.T) {
	engine := newFakeEngine(t)
	inputs := t.TempDir()
	p := DefaultEnrichParams()
	p.Source = replicateSource()
	p.Zscores = matrixFile(t, inputs, "z.tsv")
	p.ExactZThresh = "6"
	p.RawScores = matrixFile(t, inputs, "raw.tsv")
	zero := 0
	p.RawConstraint = &zero

	_, err := engine.runner().Enrich(context.Background(), p, Target{Dest: t.TempDir()})
	require.NoError(t, err)
	argv := engine.argv(t)
	assert.Contains(t, argv, "-r")
	assert.NotContains(t, argv, "--raw_score_constraint")
}
