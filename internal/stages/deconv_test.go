package stages

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pepkit/internal/collection"
	"pepkit/internal/formats"
)

func enrichedDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		writeFile(t, dir, n, "pep1\npep2\n")
	}
	writeFile(t, dir, formats.FailedEnrichmentFile, "")
	return dir
}

func TestDeconv_Singular(t *testing.T) {
	engine := newFakeEngine(t)
	inputs := t.TempDir()
	dest := filepath.Join(t.TempDir(), "deconv")

	p := DefaultDeconvParams()
	p.Enriched = writeFile(t, inputs, "s1~s2_enriched.txt", "pep1\n")
	p.Linked = writeFile(t, inputs, "link.tsv", "Peptide Name\tLinked Species IDs with counts\n")
	p.Threshold = 4
	p.ScoreFiltering = true

	res, err := engine.runner().Deconv(context.Background(), p, Target{Dest: dest})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"deconv", "-e", p.Enriched, "--enriched_file_ending", "paired.txt",
		"-t", "4", "-l", p.Linked, "--scoring_strategy", "summation",
		"--score_tie_threshold", "0.0", "--score_overlap_threshold", "0.0",
		"-o", "SCRATCH/deconv.tsv", "-s", "SCRATCH/out_score", "--score_filtering",
	}, engine.argv(t))

	assert.Equal(t, filepath.Join(dest, "deconv.tsv"), res.Table.Path)
	assert.Equal(t, filepath.Join(dest, "score-per-round"), res.ScorePerRound.Path)
	require.Len(t, res.ScorePerRound.Collection.Members, 1)
	assert.Equal(t, 1, res.ScorePerRound.Collection.Members[0].Key.Round)
	engine.assertScratchClean(t)
}

func TestDeconv_InvalidShared(t *testing.T) {
	inputs := t.TempDir()
	enriched := writeFile(t, inputs, "e.txt", "pep1\n")
	linked := writeFile(t, inputs, "link.tsv", "Peptide Name\tx\n")

	tests := []struct {
		name   string
		mutate func(p *DeconvParams)
	}{
		{"non-numeric tie threshold", func(p *DeconvParams) { p.ScoreTieThreshold = "loose" }},
		{"unknown strategy", func(p *DeconvParams) { p.ScoringStrategy = "weighted" }},
		{"negative threshold", func(p *DeconvParams) { p.Threshold = -1 }},
		{"linked not a link map", func(p *DeconvParams) { p.Linked = enriched }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(t)
			p := DefaultDeconvParams()
			p.Enriched, p.Linked, p.Threshold = enriched, linked, 1
			tt.mutate(&p)
			_, err := engine.runner().Deconv(context.Background(), p, Target{Dest: t.TempDir()})
			assert.ErrorIs(t, err, ErrInputValidation)
			assert.False(t, engine.spawned())
		})
	}
}

func TestDeconvBatch_StagesAllCollections(t *testing.T) {
	engine := newFakeEngine(t)
	first := enrichedDir(t, "s1~s2_enriched.txt")
	second := enrichedDir(t, "s3~s4_enriched.txt", "s5~s6~s7_enriched.txt")
	writeFile(t, second, "notes.md", "ignored")
	dest := filepath.Join(t.TempDir(), "batch")

	p := DefaultDeconvBatchParams()
	p.EnrichedDirs = []string{first, second}
	p.Linked = writeFile(t, t.TempDir(), "link.tsv", "Peptide Name\tx\n")
	p.Threshold = 2
	p.OutfileSuffix = ".tsv"
	p.MapfileSuffix = ".map"

	res, err := engine.runner().DeconvBatch(context.Background(), p, Target{Dest: dest})
	require.NoError(t, err)

	assert.Equal(t, "s1~s2_enriched.txt\ns3~s4_enriched.txt\ns5~s6~s7_enriched.txt\n", engine.read(t, "staged.list"))
	argv := engine.argv(t)
	assert.Equal(t, []string{"-e", "SCRATCH/enriched"}, argv[1:3])
	assert.Equal(t, []string{
		"--outfile_suffix", ".tsv", "--mapfile_suffix", ".map", "-p", "SCRATCH/peptide-assignment-maps",
	}, argv[len(argv)-6:])

	assert.Equal(t, filepath.Join(dest, "deconv"), res.Dir.Path)
	assert.Equal(t, []string{
		"s1~s2_enriched.txt.tsv", "s3~s4_enriched.txt.tsv", "s5~s6~s7_enriched.txt.tsv",
	}, res.Dir.Collection.Names())
	assert.Equal(t, []string{"s5", "s6", "s7"}, res.Dir.Collection.Members[2].Key.Comparison)
	assert.Len(t, res.MapDir.Collection.Members, 3)
	assert.Equal(t, filepath.Join(dest, "peptide-assignment-maps"), res.MapDir.Path)
	assert.DirExists(t, res.ScorePerRound.Path)
	engine.assertScratchClean(t)
}

func TestDeconvBatch_Collision(t *testing.T) {
	engine := newFakeEngine(t)
	p := DefaultDeconvBatchParams()
	p.EnrichedDirs = []string{enrichedDir(t, "s1~s2_enriched.txt"), enrichedDir(t, "s1~s2_enriched.txt")}
	p.Linked = writeFile(t, t.TempDir(), "link.tsv", "Peptide Name\tx\n")
	p.OutfileSuffix = ".tsv"
	p.MapfileSuffix = ".map"

	_, err := engine.runner().DeconvBatch(context.Background(), p, Target{Dest: t.TempDir()})
	require.ErrorIs(t, err, ErrInputValidation)
	var collision *collection.CollisionError
	assert.ErrorAs(t, err, &collision)
	assert.False(t, engine.spawned())
	engine.assertScratchClean(t)
}

func TestDeconvBatch_EmptyInputs(t *testing.T) {
	engine := newFakeEngine(t)
	p := DefaultDeconvBatchParams()
	p.EnrichedDirs = []string{enrichedDir(t)}
	p.Linked = writeFile(t, t.TempDir(), "link.tsv", "Peptide Name\tx\n")
	p.OutfileSuffix = ".tsv"
	p.MapfileSuffix = ".map"

	_, err := engine.runner().DeconvBatch(context.Background(), p, Target{Dest: t.TempDir()})
	require.ErrorIs(t, err, ErrInputValidation)
	assert.Contains(t, err.Error(), "no enriched peptide lists")
}

func TestDeconvBatch_JoinOn(t *testing.T) {
	engine := newFakeEngine(t)
	dirs := []string{enrichedDir(t, "s1-s2_enriched.txt", "s3-s4-s5_enriched.txt")}
	linked := writeFile(t, t.TempDir(), "link.tsv", "Peptide Name\tx\n")

	p := DefaultDeconvBatchParams()
	p.EnrichedDirs = dirs
	p.Linked = linked
	p.OutfileSuffix = ".tsv"
	p.MapfileSuffix = ".map"

	// the default separator sees no members in these directories
	_, err := engine.runner().DeconvBatch(context.Background(), p, Target{Dest: t.TempDir()})
	require.ErrorIs(t, err, ErrInputValidation)
	assert.False(t, engine.spawned())

	p.JoinOn = "-"
	res, err := engine.runner().DeconvBatch(context.Background(), p, Target{Dest: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "s1-s2_enriched.txt\ns3-s4-s5_enriched.txt\n", engine.read(t, "staged.list"))
	assert.Equal(t, []string{"s1-s2_enriched.txt.tsv", "s3-s4-s5_enriched.txt.tsv"}, res.Dir.Collection.Names())
	assert.Equal(t, []string{"s3", "s4", "s5"}, res.Dir.Collection.Members[1].Key.Comparison)
	assert.Len(t, res.MapDir.Collection.Members, 2)
}
