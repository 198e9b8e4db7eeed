package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pepkit/internal/formats"
	"pepkit/internal/grouping"
	"pepkit/internal/stages"
)

var (
	groupsMetadata   string
	groupsColumn     string
	groupsReplicates string
)

// runGroups prints the replicate manifest for a metadata column
func runGroups(cmd *cobra.Command, args []string) error {
	mapping, err := grouping.ReadMetadataColumn(groupsMetadata, groupsColumn)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	groups, err := grouping.GroupByLabel(mapping)
	if err != nil {
		return err
	}

	var tuples [][]string
	switch groupsReplicates {
	case stages.ReplicatesPairs:
		tuples = grouping.Pairs(groups)
	case stages.ReplicatesAll:
		tuples = grouping.FullTuples(groups)
	default:
		return fmt.Errorf("--replicates must be %q or %q, got %q", stages.ReplicatesPairs, stages.ReplicatesAll, groupsReplicates)
	}
	if len(tuples) == 0 {
		return fmt.Errorf("no replicate groups with more than one sample in column %q", groupsColumn)
	}
	return grouping.WriteManifest(cmd.OutOrStdout(), tuples)
}

// runValidate checks one artifact
func runValidate(cmd *cobra.Command, args []string) error {
	f, ok := formats.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown format %q (see 'pepkit formats')", args[0])
	}
	path := args[1]
	if f.Kind == formats.KindCollection {
		c, err := f.OpenCollection(path, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s with %d members\n", path, f.Name, len(c.Members))
		if len(c.Present) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  sentinels: %s\n", strings.Join(c.Present, ", "))
		}
		if len(c.Excluded) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  ignored: %s\n", strings.Join(c.Excluded, ", "))
		}
		return nil
	}
	if err := f.ValidateFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s\n", path, f.Name)
	return nil
}

// listFormats prints every registered format
func listFormats(cmd *cobra.Command, args []string) error {
	for _, name := range formats.Names() {
		f, _ := formats.Lookup(name)
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s %s\n", f.Name, f.Kind, f.Expectation())
	}
	return nil
}

// listStages prints stage types with their outputs
func listStages(cmd *cobra.Command, args []string) error {
	for _, t := range stages.Types() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-13s %s\n", t, strings.Join(stages.Outputs(t), ", "))
	}
	return nil
}
