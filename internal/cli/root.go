// Package cli implements the leadctl operator commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	envFile    string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "leadctl",
	Short: "leadctl - operate the lead and conversation store",
	Long: `leadctl inspects and maintains the MongoDB lead store.

Commands:
  setup      - Create indexes and list them
  stats      - Pipeline counts, or conversation stats for one lead
  history    - Print a lead's conversation
  leads      - List leads by stage, staleness, intent or due follow-up
  stage      - Move a lead to another sales stage
  followup   - Schedule or clear a lead follow-up
  reconcile  - Recompute a lead's message count and working memory
  erase      - Delete a lead's conversation

Example:
  leadctl setup
  leadctl history "+52 1 55 1234 5678" --limit 20
  leadctl erase +525512345678 --enqueue --archive --yes`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (ignored if missing)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(followupCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(eraseCmd)
}

// Execute runs the CLI
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadEnv(_ *cobra.Command, _ []string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}
