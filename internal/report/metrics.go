package report

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/psantana5/pgobserver/internal/observe"
)

// Metrics counts what the watcher did and remembers the last thing it saw.
// It implements observe.Recorder. Each instance owns its own registry.
type Metrics struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	targetUp      prometheus.Gauge
	targetCPU     *prometheus.GaugeVec
	targetUptime  prometheus.Gauge
	lastPoll      prometheus.Gauge

	mu        sync.RWMutex
	pid       int
	pollCount uint64
	last      *observe.Snapshot
	lastAt    time.Time
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgobserver_polls_total",
				Help: "Process table lookups by result",
			},
			[]string{"result"}, // "present", "absent"
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgobserver_notifications_total",
				Help: "Notification attempts by result",
			},
			[]string{"result"}, // "sent", "failed"
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgobserver_watch_sessions_total",
				Help: "Finished watch sessions by mode and stop reason",
			},
			[]string{"mode", "reason"},
		),
		targetUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgobserver_target_up",
			Help: "1 if the watched process existed at the last poll",
		}),
		targetCPU: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgobserver_target_cpu_seconds",
				Help: "CPU time of the watched process at the last poll",
			},
			[]string{"mode"}, // "user", "system", "iowait"
		),
		targetUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgobserver_target_uptime_seconds",
			Help: "Age of the watched process at the last poll",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgobserver_last_poll_timestamp_seconds",
			Help: "Unix time of the last poll",
		}),
	}

	m.registry.MustRegister(
		m.polls,
		m.notifications,
		m.sessions,
		m.targetUp,
		m.targetCPU,
		m.targetUptime,
		m.lastPoll,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPoll updates poll counters and target gauges
func (m *Metrics) RecordPoll(pid int, snap *observe.Snapshot, present bool) {
	now := time.Now()
	m.lastPoll.Set(float64(now.Unix()))

	if present && snap != nil {
		m.polls.WithLabelValues("present").Inc()
		m.targetUp.Set(1)
		m.targetCPU.WithLabelValues("user").Set(snap.CPUTimes.User)
		m.targetCPU.WithLabelValues("system").Set(snap.CPUTimes.System)
		m.targetCPU.WithLabelValues("iowait").Set(snap.CPUTimes.Iowait)
		m.targetUptime.Set(snap.Uptime(now).Seconds())
	} else {
		m.polls.WithLabelValues("absent").Inc()
		m.targetUp.Set(0)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pid = pid
	m.pollCount++
	m.lastAt = now
	if present {
		m.last = snap
	}
}

// RecordNotification counts one notification attempt
func (m *Metrics) RecordNotification(sent bool) {
	if sent {
		m.notifications.WithLabelValues(NotificationSent).Inc()
	} else {
		m.notifications.WithLabelValues(NotificationFailed).Inc()
	}
}

// RecordResult counts a finished session
func (m *Metrics) RecordResult(r *Result) {
	m.sessions.WithLabelValues(r.Mode, r.Reason).Inc()
}

// Status is the live view served on /status
type Status struct {
	PID      int               `json:"pid"`
	State    string            `json:"state"`
	Polls    uint64            `json:"polls"`
	LastPoll time.Time         `json:"last_poll,omitempty"`
	Last     *observe.Snapshot `json:"last_snapshot,omitempty"`
}

// Status returns the latest poll data; state is filled in by the caller
func (m *Metrics) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		PID:      m.pid,
		Polls:    m.pollCount,
		LastPoll: m.lastAt,
		Last:     m.last,
	}
}
