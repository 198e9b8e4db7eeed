package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pepkit/internal/logging"
	"pepkit/internal/pipeline"
	"pepkit/internal/stages"
)

var parallelism int

// runPipeline loads and executes a pipeline file
func runPipeline(cmd *cobra.Command, args []string) error {
	p, err := pipeline.LoadFile(args[0])
	if err != nil {
		return err
	}

	// Interrupts stop scheduling; running engine processes are not killed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limit := parallelism
	if limit < 1 {
		limit = cfg.Pipeline.Parallelism
	}
	runner := &pipeline.Runner{Stages: stages.NewRunner(cfg), Parallelism: limit}
	logging.Pipeline("running %s: %d stages, parallelism %d", args[0], len(p.Stages), limit)

	report, runErr := runner.Run(ctx, p)
	printReport(cmd, report)
	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *pipeline.Report) {
	out := cmd.OutOrStdout()
	for _, o := range report.Outcomes {
		fmt.Fprintf(out, "%-10s %s (%s)", o.Status, o.Name, o.Type)
		if o.Duration > 0 {
			fmt.Fprintf(out, " in %s", o.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(out)
		if o.Result == nil {
			continue
		}
		paths := o.Result.Paths()
		keys := make([]string, 0, len(paths))
		for k := range paths {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "           %s: %s\n", k, paths[k])
		}
		for _, w := range o.Result.Warnings {
			fmt.Fprintf(out, "           warning: %s\n", w)
		}
	}
}

// planPipeline prints the dry-run view of a pipeline file
func planPipeline(cmd *cobra.Command, args []string) error {
	p, err := pipeline.LoadFile(args[0])
	if err != nil {
		return err
	}
	return pipeline.WritePlan(cmd.OutOrStdout(), pipeline.Plan(p, stages.NewRunner(cfg), nil))
}
