package cmd

import (
	"fmt"
	"os"

	"github.com/cwbudde/dosetrace/internal/compute"
	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/spf13/cobra"
)

var infoBackend string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show contexts, memory budgets and command queues",
	Long:  `Initializes the compute backend and prints the context, memory budget and command queue tables.`,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoBackend, "backend", sim.BackendAuto, "Compute backend: auto, opencl, mock")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := sim.DefaultConfig()
	cfg.Backend = infoBackend

	bk, err := sim.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to build backend: %w", err)
	}

	m := compute.New(bk)
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	defer m.Close()

	m.PrintContextInfo(os.Stdout)
	fmt.Println()
	m.PrintRAMStatus(os.Stdout)
	fmt.Println()
	m.PrintCommandQueueInfo(os.Stdout)
	return nil
}
