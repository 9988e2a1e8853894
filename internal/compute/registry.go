package compute

import (
	"fmt"
	"log/slog"
)

// Registry discovers compute devices through a backend and holds their
// immutable metadata for the manager's lifetime.
type Registry struct {
	backend Backend
	devices []Device
}

// NewRegistry creates a registry on the given backend. Nothing is
// enumerated until Discover runs.
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// Discover enumerates every platform and every device through the
// backend into one flat list, assigning each device its position as ID.
// The first successful call fixes the list and its order for the
// registry's lifetime; devices the backend reports unavailable are kept
// with Available=false. Discover fails only when no devices exist at all.
func (r *Registry) Discover() error {
	if r.devices != nil {
		return nil
	}

	devices, err := r.backend.Devices()
	if err != nil {
		return &Error{Component: "registry", Op: "discover", Err: err}
	}
	if len(devices) == 0 {
		return &Error{Component: "registry", Op: "discover", Detail: "backend " + r.backend.Name(), Err: ErrNoDevices}
	}

	for i := range devices {
		devices[i].ID = i
		slog.Debug("discovered device",
			"id", i,
			"kind", devices[i].Kind,
			"name", devices[i].Name,
			"vendor", devices[i].Vendor,
			"available", devices[i].Available,
		)
	}

	r.devices = devices
	slog.Info("device discovery complete", "backend", r.backend.Name(), "devices", len(devices))
	return nil
}

// Devices returns the discovered devices in discovery order.
func (r *Registry) Devices() []Device {
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Device returns the device with the given ID.
func (r *Registry) Device(id int) (Device, error) {
	if id < 0 || id >= len(r.devices) {
		return Device{}, &Error{Component: "registry", Op: "lookup", Detail: fmt.Sprintf("device id %d of %d", id, len(r.devices)), Err: ErrInvalidUsage}
	}
	return r.devices[id], nil
}

// clear drops the device metadata. Called last during manager teardown.
func (r *Registry) clear() {
	r.devices = nil
}
