//go:build !linux

package sim

// HostMemory reports zeros on platforms without a sysinfo call.
func HostMemory() (total, free uint64) {
	return 0, 0
}
