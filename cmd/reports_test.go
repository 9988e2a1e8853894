package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/cwbudde/dosetrace/internal/store"
)

func makeTestReport(runID string, savedAt time.Time) *store.RunReport {
	cfg := sim.DefaultConfig()
	cfg.Backend = sim.BackendMock
	cfg.Particles = 1000
	cfg.BatchSize = 256
	cfg.Seed = 42

	report := sim.Report{
		Backend:    "mock",
		Device:     "Mock CPU",
		DeviceKind: "cpu",
		Particles:  1000,
		BatchSize:  256,
		Batches:    1,
		Seed:       42,
		BatchTimes: []sim.BatchTiming{
			{Batch: 0, Particles: 1000, Kernel: time.Microsecond},
		},
		KernelTime: time.Microsecond,
		WallTime:   time.Millisecond,
		Throughput: 1e6,
		StartedAt:  savedAt,
		FinishedAt: savedAt,
	}

	rr := store.NewRunReport(runID, cfg, report)
	rr.SavedAt = savedAt
	return rr
}

func TestSelectReportsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.ReportInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)}, // 10 days old
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},  // 5 days old
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},  // 1 day old
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)}, // 30 days old
	}

	// Delete runs older than 7 days
	toDelete := selectReportsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 runs to delete, got %d", len(toDelete))
	}

	found10 := false
	found30 := false
	for _, info := range toDelete {
		if info.RunID == "run1" {
			found10 = true
		}
		if info.RunID == "run4" {
			found30 = true
		}
	}

	if !found10 || !found30 {
		t.Error("Expected run1 and run4 to be selected for deletion")
	}
}

func TestSelectReportsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.ReportInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)},
	}

	// Keep only last 2 runs
	toDelete := selectReportsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 runs to delete, got %d", len(toDelete))
	}

	// Should delete oldest two (run4 and run1)
	found30 := false
	found10 := false
	for _, info := range toDelete {
		if info.RunID == "run4" {
			found30 = true
		}
		if info.RunID == "run1" {
			found10 = true
		}
	}

	if !found30 || !found10 {
		t.Error("Expected run4 and run1 to be selected for deletion (oldest)")
	}
}

func TestSelectReportsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.ReportInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)},
		{RunID: "run5", SavedAt: now.AddDate(0, 0, -2)},
	}

	// Age selects run4 and run1; keeping 3 of 5 selects the same two,
	// so the union stays at two entries
	toDelete := selectReportsForDeletion(infos, 3, 7)

	if len(toDelete) != 2 {
		t.Errorf("Expected 2 runs to delete, got %d", len(toDelete))
	}

	for _, info := range toDelete {
		if info.RunID != "run1" && info.RunID != "run4" {
			t.Errorf("Unexpected run selected for deletion: %s", info.RunID)
		}
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.txt")
	content := []byte("Hello, World!")
	if err := os.WriteFile(testFile, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}

	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestReportsListCommand_NoReports(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := reportsDataDir
	reportsDataDir = tmpDir
	defer func() { reportsDataDir = originalDataDir }()

	err := runListReports(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestReportsListCommand_WithReports(t *testing.T) {
	tmpDir := t.TempDir()

	runStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	report := makeTestReport("test-run-id", time.Now())
	if err := runStore.SaveReport("test-run-id", report); err != nil {
		t.Fatalf("Failed to save report: %v", err)
	}

	originalDataDir := reportsDataDir
	reportsDataDir = tmpDir
	defer func() { reportsDataDir = originalDataDir }()

	err = runListReports(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestReportsCleanCommand_NoFlags(t *testing.T) {
	tmpDir := t.TempDir()

	originalDataDir := reportsDataDir
	reportsDataDir = tmpDir
	defer func() { reportsDataDir = originalDataDir }()

	// Reset flags
	keepLast = 0
	olderThanDays = 0

	// Should return error when no flags specified
	err := runCleanReports(nil, nil)
	if err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestReportsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()

	runStore, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	// An old run subject to the age policy
	report := makeTestReport("old-run", time.Now().AddDate(0, 0, -30))
	if err := runStore.SaveReport("old-run", report); err != nil {
		t.Fatalf("Failed to save report: %v", err)
	}

	originalDataDir := reportsDataDir
	reportsDataDir = tmpDir
	defer func() { reportsDataDir = originalDataDir }()

	keepLast = 0
	olderThanDays = 7
	forceClean = true

	err = runCleanReports(nil, nil)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Verify run was deleted
	_, err = runStore.LoadReport("old-run")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected run to be deleted, got %v", err)
	}
}
