package compute

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// newTable returns the rendition shared by the diagnostic printers.
func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
		Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
	})))
}

// humanSize formats a byte count for table output.
func humanSize(n uint64) string {
	val := float64(n)
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	for val >= 1024 && i < len(units)-1 {
		val /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", val, units[i])
}

// PrintDeviceInfo writes the discovered-device table to w. Unavailable
// devices stay listed so the operator sees everything physically present.
func (m *Manager) PrintDeviceInfo(w io.Writer) {
	table := newTable(w)
	table.Header([]string{"ID", "KIND", "NAME", "VENDOR", "AVAILABLE", "UNITS", "GLOBAL MEM", "LOCAL MEM", "MAX ALLOC", "MAX WG"})
	for _, dev := range m.registry.Devices() {
		table.Append([]string{
			strconv.Itoa(dev.ID),
			string(dev.Kind),
			dev.Name,
			dev.Vendor,
			strconv.FormatBool(dev.Available),
			strconv.FormatUint(uint64(dev.ComputeUnits), 10),
			humanSize(dev.GlobalMemory),
			humanSize(dev.LocalMemory),
			humanSize(dev.MaxAllocation),
			strconv.FormatUint(dev.MaxWorkGroupSize, 10),
		})
	}
	table.Render()
}

// PrintContextInfo writes the context table to w, marking the active one.
func (m *Manager) PrintContextInfo(w io.Writer) {
	active := m.contexts.Active()
	table := newTable(w)
	table.Header([]string{"CONTEXT", "DEVICE", "KIND", "STATE"})
	for _, ctx := range m.contexts.Contexts() {
		state := "inactive"
		if ctx == active {
			state = "active"
		}
		table.Append([]string{
			strconv.Itoa(ctx.id),
			ctx.device.Name,
			string(ctx.device.Kind),
			state,
		})
	}
	table.Render()
}

// PrintRAMStatus writes the per-context memory budget table to w.
func (m *Manager) PrintRAMStatus(w io.Writer) {
	table := newTable(w)
	table.Header([]string{"CONTEXT", "DEVICE", "USED", "CAPACITY", "USAGE"})
	for _, row := range m.budget.Status(m.contexts.Contexts()) {
		table.Append([]string{
			strconv.Itoa(row.ContextID),
			row.Device,
			humanSize(row.Used),
			humanSize(row.Capacity),
			fmt.Sprintf("%.1f%%", row.Percent),
		})
	}
	table.Render()
}

// PrintCommandQueueInfo writes the per-context queue and event table to w.
func (m *Manager) PrintCommandQueueInfo(w io.Writer) {
	table := newTable(w)
	table.Header([]string{"CONTEXT", "DEVICE", "PROFILING", "COMPLETED OP"})
	for _, ctx := range m.contexts.Contexts() {
		table.Append([]string{
			strconv.Itoa(ctx.id),
			ctx.device.Name,
			strconv.FormatBool(ctx.queue != nil),
			strconv.FormatBool(ctx.timed),
		})
	}
	table.Render()
}
