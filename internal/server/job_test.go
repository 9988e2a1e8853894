package server

import (
	"testing"
	"time"

	"github.com/cwbudde/dosetrace/internal/sim"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	config := sim.DefaultConfig()
	config.Backend = sim.BackendMock
	config.Particles = 1000

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.Particles != 1000 {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(sim.DefaultConfig())

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(sim.DefaultConfig())
	time.Sleep(time.Millisecond)
	second := jm.CreateJob(sim.DefaultConfig())

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}

	// Oldest first
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(sim.DefaultConfig())

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.BatchesDone = 2
		j.ParticlesDone = 512
	})

	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.BatchesDone != 2 {
		t.Error("BatchesDone should be updated")
	}
	if updated.ParticlesDone != 512 {
		t.Error("ParticlesDone should be updated")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(sim.DefaultConfig())

	if err := jm.CancelJob(job.ID); err != nil {
		t.Fatalf("Cancel of pending job should succeed: %v", err)
	}

	cancelled, _ := jm.GetJob(job.ID)
	if cancelled.State != StateCancelled {
		t.Errorf("State should be cancelled, got %s", cancelled.State)
	}
	if cancelled.EndTime == nil {
		t.Error("EndTime should be set on cancellation")
	}

	// A cancelled job is terminal
	if err := jm.CancelJob(job.ID); err == nil {
		t.Error("Cancel of cancelled job should fail")
	}
}

func TestJobManager_CancelJob_RunningRejected(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(sim.DefaultConfig())
	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateRunning })

	if err := jm.CancelJob(job.ID); err == nil {
		t.Error("Cancel of running job should fail")
	}

	current, _ := jm.GetJob(job.ID)
	if current.State != StateRunning {
		t.Errorf("State should remain running, got %s", current.State)
	}
}

func TestJobManager_CancelJob_NotFound(t *testing.T) {
	jm := NewJobManager()

	if err := jm.CancelJob("nonexistent"); err == nil {
		t.Error("Cancel of nonexistent job should fail")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(sim.DefaultConfig())

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(batch int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.BatchesDone = batch
				time.Sleep(1 * time.Millisecond)
			})
			done <- true
		}(i)
	}

	// Wait for all updates
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should not crash - actual value depends on scheduling
	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}
