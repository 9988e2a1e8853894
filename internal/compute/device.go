package compute

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// DeviceKind describes the class of a compute device.
type DeviceKind string

const (
	DeviceCPU         DeviceKind = "CPU"
	DeviceGPU         DeviceKind = "GPU"
	DeviceAccelerator DeviceKind = "Accelerator"
	DeviceUnknown     DeviceKind = "Unknown"
)

// Device captures the immutable capability metadata of one discovered
// compute device. ID is the device's position in the discovery order and
// doubles as the registry lookup key.
type Device struct {
	ID               int        `json:"id"`
	Kind             DeviceKind `json:"kind"`
	Name             string     `json:"name"`
	Vendor           string     `json:"vendor"`
	Platform         string     `json:"platform"`
	DriverVersion    string     `json:"driverVersion,omitempty"`
	RuntimeVersion   string     `json:"runtimeVersion,omitempty"`
	GlobalMemory     uint64     `json:"globalMemory"`
	LocalMemory      uint64     `json:"localMemory"`
	MaxAllocation    uint64     `json:"maxAllocation"`
	ComputeUnits     uint32     `json:"computeUnits"`
	MaxWorkGroupSize uint64     `json:"maxWorkGroupSize"`
	Available        bool       `json:"available"`
	Profiling        bool       `json:"profiling"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s %q (%s)", d.Kind, d.Name, d.Vendor)
}

// HostCPUFeatures lists the SIMD extensions the host CPU reports. Used
// for startup diagnostics alongside device discovery.
func HostCPUFeatures() []string {
	var features []string
	if cpu.X86.HasSSE42 {
		features = append(features, "sse4.2")
	}
	if cpu.X86.HasAVX {
		features = append(features, "avx")
	}
	if cpu.X86.HasAVX2 {
		features = append(features, "avx2")
	}
	if cpu.X86.HasAVX512F {
		features = append(features, "avx512f")
	}
	if cpu.ARM64.HasASIMD {
		features = append(features, "neon")
	}
	return features
}
