package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/cwbudde/dosetrace/internal/compute"
	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/spf13/cobra"
)

var devicesBackend string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available compute devices",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", sim.BackendAuto, "Compute backend: auto, opencl, mock")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg := sim.DefaultConfig()
	cfg.Backend = devicesBackend

	bk, err := sim.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to build backend: %w", err)
	}

	m := compute.New(bk)
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	defer m.Close()

	total, free := sim.HostMemory()
	features := strings.Join(compute.HostCPUFeatures(), " ")
	if features == "" {
		features = "none"
	}

	fmt.Printf("Backend: %s\n", m.BackendName())
	fmt.Printf("Host: RAM %s total / %s free, SIMD %s\n\n", formatBytes(int64(total)), formatBytes(int64(free)), features)

	m.PrintDeviceInfo(os.Stdout)
	return nil
}
