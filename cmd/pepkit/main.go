package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pepkit/internal/config"
	"pepkit/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pepkit",
	Short: "pepkit - PepSIRF pipeline orchestration",
	Long: `pepkit drives the pepsirf engine through the peptide-microarray analysis
stages: norm, bin, zscore, enrich, link, deconv, demux, subjoin and info.

Each stage runs the engine with a literal argument vector inside a private
scratch directory, validates what it produced and only then moves the
outputs into the requested destination.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(loaded.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.BootDebug("config loaded: binary=%s parallelism=%d", cfg.Engine.Binary, cfg.Pipeline.Parallelism)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// runCmd executes a pipeline file
var runCmd = &cobra.Command{
	Use:   "run [pipeline.hcl]",
	Short: "Run every stage of a pipeline file",
	Long: `Loads a pipeline file, orders its stages by dependency and runs them.
Independent stages run concurrently up to --parallelism. The first failure
stops scheduling; stages already running finish.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

// planCmd previews a pipeline file
var planCmd = &cobra.Command{
	Use:   "plan [pipeline.hcl]",
	Short: "Show stage order and argv previews without running anything",
	Args:  cobra.ExactArgs(1),
	RunE:  planPipeline,
}

// groupsCmd prints a replicate manifest
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Print the replicate manifest built from a metadata column",
	Long: `Reads a tab-separated sample metadata file, groups samples by the given
column and prints the manifest enrich would stage.

Example:
  pepkit groups --metadata samples.tsv --column source --replicates pairs`,
	RunE: runGroups,
}

// validateCmd checks an artifact against a format
var validateCmd = &cobra.Command{
	Use:   "validate [format] [path]",
	Short: "Validate a file or directory against an artifact format",
	Args:  cobra.ExactArgs(2),
	RunE:  runValidate,
}

// formatsCmd lists artifact formats
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List artifact formats and what they check",
	RunE:  listFormats,
}

// stagesCmd lists stage types
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List stage types and their outputs",
	RunE:  listStages,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pepkit.yaml", "Config file (defaults apply when missing)")

	runCmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Concurrent stages (default: pipeline.parallelism from config)")

	groupsCmd.Flags().StringVar(&groupsMetadata, "metadata", "", "Sample metadata TSV (required)")
	groupsCmd.Flags().StringVar(&groupsColumn, "column", "", "Metadata column holding the replicate label (required)")
	groupsCmd.Flags().StringVar(&groupsReplicates, "replicates", "pairs", "Manifest mode: pairs or all")
	groupsCmd.MarkFlagRequired("metadata")
	groupsCmd.MarkFlagRequired("column")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(stagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
