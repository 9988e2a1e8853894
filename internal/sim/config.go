package sim

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/dosetrace/internal/compute"
)

// Backend names accepted by Config.Backend.
const (
	BackendAuto   = "auto"
	BackendOpenCL = "opencl"
	BackendMock   = "mock"
)

// Device kind selectors accepted by Config.DeviceKind.
const (
	KindAny = "any"
	KindCPU = "cpu"
	KindGPU = "gpu"
)

// Config describes one simulation run.
type Config struct {
	Backend     string `json:"backend"`
	DeviceKind  string `json:"deviceKind"`
	DeviceIndex int    `json:"deviceIndex"`
	KernelDir   string `json:"kernelDir"`

	Particles uint64 `json:"particles"`
	BatchSize uint64 `json:"batchSize"`
	// Seed 0 asks for a cryptographically random seed at run time.
	Seed uint64 `json:"seed"`

	// Dose grid geometry and beam parameters.
	GridX     uint32  `json:"gridX"`
	GridY     uint32  `json:"gridY"`
	GridZ     uint32  `json:"gridZ"`
	VoxelSize float32 `json:"voxelSizeMM"`
	Energy    float32 `json:"energyMeV"`
	Mu        float32 `json:"muPerMM"`

	// Diagnostic table toggles.
	PrintDevices  bool `json:"-"`
	PrintContexts bool `json:"-"`
	PrintRAM      bool `json:"-"`
	PrintQueues   bool `json:"-"`
}

// DefaultConfig returns the run configuration used when no flags are set.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		DeviceKind:  KindAny,
		DeviceIndex: 0,
		KernelDir:   "kernels",
		Particles:   1 << 20,
		BatchSize:   1 << 18,
		GridX:       64,
		GridY:       64,
		GridZ:       64,
		VoxelSize:   2.0,
		Energy:      6.0,
		Mu:          0.05,
	}
}

// Validate rejects configurations the runner cannot execute.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendOpenCL, BackendMock:
	default:
		return fmt.Errorf("sim: unknown backend %q: %w", c.Backend, compute.ErrInvalidUsage)
	}
	switch c.DeviceKind {
	case KindAny, KindCPU, KindGPU:
	default:
		return fmt.Errorf("sim: unknown device kind %q: %w", c.DeviceKind, compute.ErrInvalidUsage)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("sim: negative device index %d: %w", c.DeviceIndex, compute.ErrInvalidUsage)
	}
	if c.Particles == 0 {
		return fmt.Errorf("sim: zero particles: %w", compute.ErrInvalidUsage)
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("sim: zero batch size: %w", compute.ErrInvalidUsage)
	}
	if c.KernelDir == "" {
		return fmt.Errorf("sim: empty kernel directory: %w", compute.ErrInvalidUsage)
	}
	if c.GridX == 0 || c.GridY == 0 || c.GridZ == 0 {
		return fmt.Errorf("sim: empty dose grid %dx%dx%d: %w", c.GridX, c.GridY, c.GridZ, compute.ErrInvalidUsage)
	}
	if c.VoxelSize <= 0 {
		return fmt.Errorf("sim: voxel size %g: %w", c.VoxelSize, compute.ErrInvalidUsage)
	}
	if c.Energy <= 0 {
		return fmt.Errorf("sim: beam energy %g: %w", c.Energy, compute.ErrInvalidUsage)
	}
	if c.Mu <= 0 {
		return fmt.Errorf("sim: attenuation coefficient %g: %w", c.Mu, compute.ErrInvalidUsage)
	}
	return nil
}

// ResolveSeed returns the configured seed, or a fresh one from the OS
// entropy pool when the configuration asks for a random seed.
func (c Config) ResolveSeed() (uint64, error) {
	if c.Seed != 0 {
		return c.Seed, nil
	}
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("sim: reading random seed: %w", err)
	}
	seed := binary.LittleEndian.Uint64(buf[:])
	if seed == 0 {
		seed = 1
	}
	return seed, nil
}

// NewBackend builds the compute backend the configuration names. With
// "auto", OpenCL is preferred and the mock backend is the fallback when
// the binary was built without OpenCL support.
func NewBackend(cfg Config) (compute.Backend, error) {
	switch cfg.Backend {
	case BackendMock:
		return compute.NewMockBackend(), nil
	case BackendOpenCL:
		return compute.NewOpenCLBackend()
	case BackendAuto:
		backend, err := compute.NewOpenCLBackend()
		if errors.Is(err, compute.ErrNotBuilt) {
			slog.Warn("opencl backend unavailable, falling back to mock", "reason", err)
			return compute.NewMockBackend(), nil
		}
		return backend, err
	default:
		return nil, fmt.Errorf("sim: unknown backend %q: %w", cfg.Backend, compute.ErrInvalidUsage)
	}
}
