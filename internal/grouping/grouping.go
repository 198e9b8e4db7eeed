// Package grouping turns a categorical label-per-sample mapping into replicate
// groups and expands them into the manifests the enrich stage consumes.
//
// Groups are ordered by label; members keep their order in the source
// mapping. Manifest line order, and with it the engine's output file names,
// is therefore reproducible across runs.
package grouping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Entry assigns one sample to a label.
type Entry struct {
	Sample string
	Label  string
}

// LabelMapping is an ordered sample → label mapping.
type LabelMapping []Entry

// Group is the set of samples sharing a label.
type Group struct {
	Label   string
	Members []string
}

// GroupByLabel partitions the mapping. Every sample lands in exactly one
// group. Duplicate or empty sample ids are rejected.
func GroupByLabel(mapping LabelMapping) ([]Group, error) {
	seen := make(map[string]bool, len(mapping))
	index := make(map[string]int)
	var groups []Group
	for _, e := range mapping {
		if e.Sample == "" {
			return nil, fmt.Errorf("empty sample id")
		}
		if seen[e.Sample] {
			return nil, fmt.Errorf("duplicate sample id %q", e.Sample)
		}
		seen[e.Sample] = true

		i, ok := index[e.Label]
		if !ok {
			i = len(groups)
			index[e.Label] = i
			groups = append(groups, Group{Label: e.Label})
		}
		groups[i].Members = append(groups[i].Members, e.Sample)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Label < groups[j].Label })
	return groups, nil
}

// Pairs returns every 2-combination within each group, in combination order
// over the group's member order. Singleton groups contribute nothing.
func Pairs(groups []Group) [][]string {
	var out [][]string
	for _, g := range groups {
		for i := 0; i < len(g.Members); i++ {
			for j := i + 1; j < len(g.Members); j++ {
				out = append(out, []string{g.Members[i], g.Members[j]})
			}
		}
	}
	return out
}

// FullTuples returns one tuple per group holding all of its members.
func FullTuples(groups []Group) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		if len(g.Members) == 0 {
			continue
		}
		out = append(out, append([]string(nil), g.Members...))
	}
	return out
}

// WriteManifest writes tuples tab-separated, one per line, with a trailing
// newline and no header.
func WriteManifest(w io.Writer, tuples [][]string) error {
	bw := bufio.NewWriter(w)
	for _, t := range tuples {
		for _, id := range t {
			if strings.ContainsAny(id, "\t\n") {
				return fmt.Errorf("sample id %q contains a tab or newline", id)
			}
		}
		if _, err := bw.WriteString(strings.Join(t, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteManifestFile writes the manifest to path.
func WriteManifestFile(path string, tuples [][]string) error {
	var buf bytes.Buffer
	if err := WriteManifest(&buf, tuples); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
