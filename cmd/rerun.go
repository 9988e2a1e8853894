package cmd

import (
	"fmt"

	"github.com/cwbudde/dosetrace/internal/store"
	"github.com/spf13/cobra"
)

var rerunDataDir string

var rerunCmd = &cobra.Command{
	Use:   "rerun [run-id]",
	Short: "Repeat a stored run",
	Long: `Loads the configuration saved with a finished run and executes it again.
The stored configuration carries the resolved seed, so the rerun transports
the same particle histories as the original.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	rerunCmd.Flags().StringVar(&rerunDataDir, "data-dir", "./data", "Run store directory")
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := store.NewFSStore(rerunDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	saved, err := st.LoadReport(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	fmt.Printf("Rerunning %s (%d particles, seed %d)\n", runID, saved.Config.Particles, saved.Config.Seed)

	return executeRun(saved.Config, rerunDataDir)
}
