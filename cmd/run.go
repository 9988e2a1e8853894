package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/dosetrace/internal/compute"
	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/cwbudde/dosetrace/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	backend     string
	deviceKind  string
	deviceIndex int
	kernelDir   string
	particles   uint64
	batchSize   uint64
	seed        uint64
	gridX       uint32
	gridY       uint32
	gridZ       uint32
	voxelSize   float32
	energy      float32
	mu          float32
	dataDir     string

	printDevices  bool
	printContexts bool
	printRAM      bool
	printQueues   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single simulation",
	Long:  `Runs one Monte Carlo transport simulation and writes its report to the run store.`,
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().StringVar(&backend, "backend", sim.BackendAuto, "Compute backend: auto, opencl, mock")
	runCmd.Flags().StringVar(&deviceKind, "device", sim.KindAny, "Device kind: any, cpu, gpu")
	runCmd.Flags().IntVar(&deviceIndex, "device-index", 0, "Device index within the selected kind")
	runCmd.Flags().StringVar(&kernelDir, "kernels", "kernels", "Directory holding OpenCL kernel sources")
	runCmd.Flags().Uint64Var(&particles, "particles", 1<<20, "Number of primary particles")
	runCmd.Flags().Uint64Var(&batchSize, "batch", 1<<18, "Particles per transport batch")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "RNG seed (0 = random)")
	runCmd.Flags().Uint32Var(&gridX, "grid-x", 64, "Dose grid voxels along X")
	runCmd.Flags().Uint32Var(&gridY, "grid-y", 64, "Dose grid voxels along Y")
	runCmd.Flags().Uint32Var(&gridZ, "grid-z", 64, "Dose grid voxels along Z")
	runCmd.Flags().Float32Var(&voxelSize, "voxel-size", 2.0, "Voxel edge length in mm")
	runCmd.Flags().Float32Var(&energy, "energy", 6.0, "Beam energy in MeV")
	runCmd.Flags().Float32Var(&mu, "mu", 0.05, "Attenuation coefficient per mm")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Run store directory (empty = do not persist)")

	runCmd.Flags().BoolVar(&printDevices, "print-devices", false, "Print the device table before the run")
	runCmd.Flags().BoolVar(&printContexts, "print-contexts", false, "Print the context table before the run")
	runCmd.Flags().BoolVar(&printRAM, "print-ram", false, "Print the memory budget table after the run")
	runCmd.Flags().BoolVar(&printQueues, "print-queues", false, "Print the command queue table before the run")

	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := sim.Config{
		Backend:       backend,
		DeviceKind:    deviceKind,
		DeviceIndex:   deviceIndex,
		KernelDir:     kernelDir,
		Particles:     particles,
		BatchSize:     batchSize,
		Seed:          seed,
		GridX:         gridX,
		GridY:         gridY,
		GridZ:         gridZ,
		VoxelSize:     voxelSize,
		Energy:        energy,
		Mu:            mu,
		PrintDevices:  printDevices,
		PrintContexts: printContexts,
		PrintRAM:      printRAM,
		PrintQueues:   printQueues,
	}

	return executeRun(cfg, dataDir)
}

// executeRun drives one simulation to completion, persisting the report
// when a data directory is set. Shared by run and rerun.
func executeRun(cfg sim.Config, dataDir string) error {
	bk, err := sim.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to build backend: %w", err)
	}

	runner := sim.NewRunner(cfg, compute.New(bk))
	runner.SetDiagnostics(os.Stdout)

	// Ctrl-C aborts between batches; submitted work drains first
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	if dataDir != "" {
		if err := persistRun(dataDir, runID, cfg, report); err != nil {
			return err
		}
	}

	fmt.Printf("Run %s: %d particles in %d batches on %s (kernel %s, wall %s, %.0f particles/sec)\n",
		runID,
		report.Particles,
		report.Batches,
		report.Device,
		report.KernelTime.Round(time.Microsecond),
		report.WallTime.Round(time.Millisecond),
		report.Throughput,
	)

	return nil
}

// persistRun saves the report and its batch trace, echoing the resolved
// seed into the stored configuration so a rerun reproduces the run.
func persistRun(dataDir, runID string, cfg sim.Config, report *sim.Report) error {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	cfg.Seed = report.Seed
	if err := st.SaveReport(runID, store.NewRunReport(runID, cfg, *report)); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	trace, err := store.NewTraceWriter(dataDir, runID, false)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer trace.Close()

	for _, bt := range report.BatchTimes {
		entry := store.TraceEntry{
			Batch:     bt.Batch,
			Particles: bt.Particles,
			Kernel:    bt.Kernel,
			Timestamp: report.FinishedAt,
		}
		if err := trace.Write(entry); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
	}

	return nil
}
