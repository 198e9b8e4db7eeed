package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pepkit/internal/config"
)

// binEngine writes a bins file wherever -o points.
const binEngine = `#!/bin/sh
out=
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out=$2; fi
  shift
done
printf 'pep1\tpep2\n' > "$out"
`

func testCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cfg = config.DefaultConfig()
	cfg.Pipeline.OutfileDir = t.TempDir()
	cfg.Engine.ScratchDir = t.TempDir()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0755))
	return path
}

func TestGroups(t *testing.T) {
	cmd, buf := testCommand(t)
	meta := writeFile(t, t.TempDir(), "meta.tsv",
		"#SampleID\tsource\ns1\tA\ns2\tB\ns3\tA\ns4\tB\ns5\tA\n")
	groupsMetadata, groupsColumn, groupsReplicates = meta, "source", "pairs"

	require.NoError(t, runGroups(cmd, nil))
	assert.Equal(t, "s1\ts3\ns1\ts5\ns3\ts5\ns2\ts4\n", buf.String())

	buf.Reset()
	groupsReplicates = "all"
	require.NoError(t, runGroups(cmd, nil))
	assert.Equal(t, "s1\ts3\ts5\ns2\ts4\n", buf.String())

	groupsReplicates = "triples"
	assert.Error(t, runGroups(cmd, nil))

	groupsReplicates, groupsColumn = "pairs", "missing"
	assert.Error(t, runGroups(cmd, nil))
}

func TestValidate(t *testing.T) {
	cmd, buf := testCommand(t)
	dir := t.TempDir()
	matrix := writeFile(t, dir, "m.tsv", "Sequence name\tS1\npep1\t1\n")

	require.NoError(t, runValidate(cmd, []string{"ContingencyMatrix", matrix}))
	assert.Contains(t, buf.String(), "valid ContingencyMatrix")

	enriched := filepath.Join(dir, "enriched")
	require.NoError(t, os.Mkdir(enriched, 0755))
	writeFile(t, enriched, "s1~s2_enriched.txt", "pep1\n")
	writeFile(t, enriched, "failedEnrichment.txt", "")
	buf.Reset()
	require.NoError(t, runValidate(cmd, []string{"EnrichedPeptideDir", enriched}))
	assert.Contains(t, buf.String(), "with 1 members")
	assert.Contains(t, buf.String(), "sentinels: failedEnrichment.txt")

	assert.Error(t, runValidate(cmd, []string{"LinkMap", matrix}))
	assert.Error(t, runValidate(cmd, []string{"NoSuchFormat", matrix}))
}

func TestListings(t *testing.T) {
	cmd, buf := testCommand(t)
	require.NoError(t, listFormats(cmd, nil))
	assert.Contains(t, buf.String(), "ContingencyMatrix")
	assert.Contains(t, buf.String(), "collection")

	buf.Reset()
	require.NoError(t, listStages(cmd, nil))
	assert.Contains(t, buf.String(), "deconv_batch")
	assert.Contains(t, buf.String(), "dir, score_per_round, map_dir")
}

func TestRunAndPlan(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires /bin/sh")
	}
	cmd, buf := testCommand(t)
	dir := t.TempDir()
	cfg.Engine.Binary = writeFile(t, dir, "pepsirf", binEngine)
	raw := writeFile(t, dir, "raw.tsv", "Sequence name\tS1\npep1\t1\n")
	dest := filepath.Join(dir, "out")
	pipe := writeFile(t, dir, "pipeline.hcl", `
stage "bin" "binned" {
  dest = "`+dest+`"
  arguments {
    scores = "`+raw+`"
  }
}
`)

	require.NoError(t, planPipeline(cmd, []string{pipe}))
	assert.Contains(t, buf.String(), "1. binned (bin)")
	assert.Contains(t, buf.String(), "-o <scratch>/bins.tsv")

	buf.Reset()
	require.NoError(t, runPipeline(cmd, []string{pipe}))
	assert.Contains(t, buf.String(), "succeeded")
	assert.Contains(t, buf.String(), "bins: "+filepath.Join(dest, "bins.tsv"))
	assert.FileExists(t, filepath.Join(dest, "bins.tsv"))
	assert.FileExists(t, filepath.Join(cfg.Pipeline.OutfileDir, "bin.out"))

	// The destination now exists, so a second run is refused before spawning.
	buf.Reset()
	err := runPipeline(cmd, []string{pipe})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Contains(t, buf.String(), "failed")
}
