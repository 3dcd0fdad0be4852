package metrics

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	startTime time.Time

	requestsTotal   atomic.Int64
	requestsSuccess atomic.Int64
	requestsFailed  atomic.Int64

	reconcilesTotal atomic.Int64
	medicinesReset  atomic.Int64

	togglesTotal   atomic.Int64
	dosesTaken     atomic.Int64
	dosesUntaken   atomic.Int64

	remindersScheduled atomic.Int64
	remindersDelivered atomic.Int64
	remindersFailed    atomic.Int64

	storageErrors atomic.Int64

	activeConnections atomic.Int64
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

func New() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

func (m *Metrics) RecordRequest(success bool) {
	m.requestsTotal.Add(1)
	if success {
		m.requestsSuccess.Add(1)
	} else {
		m.requestsFailed.Add(1)
	}
}

func (m *Metrics) RecordReconcile(medicinesReset int) {
	m.reconcilesTotal.Add(1)
	m.medicinesReset.Add(int64(medicinesReset))
}

func (m *Metrics) RecordToggle(taken bool) {
	m.togglesTotal.Add(1)
	if taken {
		m.dosesTaken.Add(1)
	} else {
		m.dosesUntaken.Add(1)
	}
}

func (m *Metrics) RecordReminderScheduled() {
	m.remindersScheduled.Add(1)
}

func (m *Metrics) RecordReminderDelivery(success bool) {
	if success {
		m.remindersDelivered.Add(1)
	} else {
		m.remindersFailed.Add(1)
	}
}

func (m *Metrics) RecordStorageError() {
	m.storageErrors.Add(1)
}

func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Add(1)
}

func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Add(-1)
}

type Snapshot struct {
	Uptime             time.Duration `json:"uptime"`
	RequestsTotal      int64         `json:"requests_total"`
	RequestsSuccess    int64         `json:"requests_success"`
	RequestsFailed     int64         `json:"requests_failed"`
	ReconcilesTotal    int64         `json:"reconciles_total"`
	MedicinesReset     int64         `json:"medicines_reset"`
	TogglesTotal       int64         `json:"toggles_total"`
	DosesTaken         int64         `json:"doses_taken"`
	DosesUntaken       int64         `json:"doses_untaken"`
	RemindersScheduled int64         `json:"reminders_scheduled"`
	RemindersDelivered int64         `json:"reminders_delivered"`
	RemindersFailed    int64         `json:"reminders_failed"`
	StorageErrors      int64         `json:"storage_errors"`
	ActiveConnections  int64         `json:"active_connections"`
	SuccessRate        float64       `json:"success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:             time.Since(m.startTime),
		RequestsTotal:      m.requestsTotal.Load(),
		RequestsSuccess:    m.requestsSuccess.Load(),
		RequestsFailed:     m.requestsFailed.Load(),
		ReconcilesTotal:    m.reconcilesTotal.Load(),
		MedicinesReset:     m.medicinesReset.Load(),
		TogglesTotal:       m.togglesTotal.Load(),
		DosesTaken:         m.dosesTaken.Load(),
		DosesUntaken:       m.dosesUntaken.Load(),
		RemindersScheduled: m.remindersScheduled.Load(),
		RemindersDelivered: m.remindersDelivered.Load(),
		RemindersFailed:    m.remindersFailed.Load(),
		StorageErrors:      m.storageErrors.Load(),
		ActiveConnections:  m.activeConnections.Load(),
	}

	if s.RequestsTotal > 0 {
		s.SuccessRate = float64(s.RequestsSuccess) / float64(s.RequestsTotal) * 100
	}

	return s
}

func (m *Metrics) Prometheus() string {
	var sb strings.Builder

	counter := func(name, help string, v int64) {
		sb.WriteString("# HELP " + name + " " + help + "\n")
		sb.WriteString("# TYPE " + name + " counter\n")
		sb.WriteString(name + " " + strconv.FormatInt(v, 10) + "\n\n")
	}

	sb.WriteString("# HELP medikeep_uptime_seconds Time since server start\n")
	sb.WriteString("# TYPE medikeep_uptime_seconds gauge\n")
	sb.WriteString("medikeep_uptime_seconds " + strconv.FormatInt(int64(time.Since(m.startTime).Seconds()), 10) + "\n\n")

	counter("medikeep_requests_total", "Total number of requests", m.requestsTotal.Load())
	counter("medikeep_requests_success", "Successful requests", m.requestsSuccess.Load())
	counter("medikeep_requests_failed", "Failed requests", m.requestsFailed.Load())
	counter("medikeep_reconciles_total", "Day-rollover reconcile passes", m.reconcilesTotal.Load())
	counter("medikeep_medicines_reset_total", "Medicines reset across all reconciles", m.medicinesReset.Load())
	counter("medikeep_toggles_total", "Dose toggles", m.togglesTotal.Load())
	counter("medikeep_doses_taken_total", "Doses marked taken", m.dosesTaken.Load())
	counter("medikeep_doses_untaken_total", "Doses un-marked", m.dosesUntaken.Load())
	counter("medikeep_reminders_scheduled_total", "Reminders scheduled", m.remindersScheduled.Load())
	counter("medikeep_reminders_delivered_total", "Reminders delivered", m.remindersDelivered.Load())
	counter("medikeep_reminders_failed_total", "Reminder deliveries failed", m.remindersFailed.Load())
	counter("medikeep_storage_errors_total", "Storage errors", m.storageErrors.Load())

	sb.WriteString("# HELP medikeep_active_connections Active websocket connections\n")
	sb.WriteString("# TYPE medikeep_active_connections gauge\n")
	sb.WriteString("medikeep_active_connections " + strconv.FormatInt(m.activeConnections.Load(), 10) + "\n\n")

	return sb.String()
}

func RecordRequest(success bool) {
	Default().RecordRequest(success)
}

func RecordReconcile(medicinesReset int) {
	Default().RecordReconcile(medicinesReset)
}

func RecordToggle(taken bool) {
	Default().RecordToggle(taken)
}

func RecordReminderScheduled() {
	Default().RecordReminderScheduled()
}

func RecordReminderDelivery(success bool) {
	Default().RecordReminderDelivery(success)
}

func RecordStorageError() {
	Default().RecordStorageError()
}
