package sim

import "time"

// BatchTiming records the device-side duration of one transport batch.
type BatchTiming struct {
	Batch     int           `json:"batch"`
	Particles uint64        `json:"particles"`
	Kernel    time.Duration `json:"kernelNs"`
}

// Report summarizes one finished simulation run.
type Report struct {
	Backend    string `json:"backend"`
	Device     string `json:"device"`
	DeviceKind string `json:"deviceKind"`

	Particles uint64 `json:"particles"`
	BatchSize uint64 `json:"batchSize"`
	Batches   int    `json:"batches"`
	Seed      uint64 `json:"seed"`

	BatchTimes []BatchTiming `json:"batchTimes"`
	KernelTime time.Duration `json:"kernelTimeNs"`
	WallTime   time.Duration `json:"wallTimeNs"`
	// Throughput is particles per second of wall time.
	Throughput float64 `json:"particlesPerSecond"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
