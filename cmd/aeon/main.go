// aeon is the command-line entry point for the AEON constellation: a
// self-healing multi-agent orchestration core that turns one natural-language
// build request into a validated web deliverable.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	apiKey    string
	timeout   time.Duration

	// Console logger, separate from the categorized file logs
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "aeon",
	Short: "AEON - self-healing multi-agent orchestration core",
	Long: `AEON accepts one natural-language build request and drives a fixed
ten-agent constellation through decomposition, tiered failover, synthesis,
validation, and outcome scoring. Every lifecycle event lands in a
hash-chained ledger; every outcome feeds the evolution and learning loops.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug console logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory holding .aeon/")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "generation API key (overrides config and env)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall request deadline")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(postmortemsCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
