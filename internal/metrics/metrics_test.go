package metrics

import (
	"strings"
	"testing"
)

func TestSnapshotCounters(t *testing.T) {
	m := New()

	m.RecordRequest(true)
	m.RecordRequest(false)
	m.RecordReconcile(3)
	m.RecordToggle(true)
	m.RecordToggle(false)
	m.RecordReminderScheduled()
	m.RecordReminderDelivery(true)
	m.RecordStorageError()

	s := m.Snapshot()
	if s.RequestsTotal != 2 || s.RequestsSuccess != 1 || s.RequestsFailed != 1 {
		t.Errorf("unexpected request counts: %+v", s)
	}
	if s.ReconcilesTotal != 1 || s.MedicinesReset != 3 {
		t.Errorf("unexpected reconcile counts: %+v", s)
	}
	if s.TogglesTotal != 2 || s.DosesTaken != 1 || s.DosesUntaken != 1 {
		t.Errorf("unexpected toggle counts: %+v", s)
	}
	if s.RemindersScheduled != 1 || s.RemindersDelivered != 1 {
		t.Errorf("unexpected reminder counts: %+v", s)
	}
	if s.StorageErrors != 1 {
		t.Errorf("unexpected storage errors: %d", s.StorageErrors)
	}
	if s.SuccessRate != 50 {
		t.Errorf("unexpected success rate: %f", s.SuccessRate)
	}
}

func TestPrometheusOutput(t *testing.T) {
	m := New()
	m.RecordToggle(true)

	out := m.Prometheus()
	for _, want := range []string{
		"medikeep_uptime_seconds",
		"medikeep_toggles_total 1",
		"medikeep_doses_taken_total 1",
		"# TYPE medikeep_requests_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Prometheus output missing %q", want)
		}
	}
}
