package compute

import (
	"strings"
	"testing"
)

func TestDeviceString(t *testing.T) {
	d := testGPU("sim-gpu", 4<<30)
	s := d.String()
	for _, want := range []string{"GPU", "sim-gpu", "test"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestHostCPUFeatures(t *testing.T) {
	for _, f := range HostCPUFeatures() {
		if f == "" {
			t.Error("empty feature name")
		}
	}
}
