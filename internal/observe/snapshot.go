package observe

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// CPUTimes is the CPU accounting of a process, in seconds
type CPUTimes struct {
	User   float64 `json:"user" yaml:"user"`
	System float64 `json:"system" yaml:"system"`
	Iowait float64 `json:"iowait" yaml:"iowait"`
}

// Total returns user + system time
func (c CPUTimes) Total() float64 {
	return c.User + c.System
}

// Snapshot is what one poll saw of a live process. Never mutated.
type Snapshot struct {
	PID         int       `json:"pid" yaml:"pid"`
	Exists      bool      `json:"exists" yaml:"exists"`
	Name        string    `json:"name" yaml:"name"`
	Status      string    `json:"status" yaml:"status"`
	CPUTimes    CPUTimes  `json:"cpu_times" yaml:"cpu_times"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	CommandLine []string  `json:"cmdline" yaml:"cmdline"`
}

// Uptime returns how long the process had been running when the snapshot was taken
func (s *Snapshot) Uptime(now time.Time) time.Duration {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CreatedAt)
}

// Poller looks a pid up in the OS process table
type Poller interface {
	Poll(ctx context.Context, pid int) (*Snapshot, bool)
}

// PollerFunc adapts a function to Poller
type PollerFunc func(ctx context.Context, pid int) (*Snapshot, bool)

// Poll calls f
func (f PollerFunc) Poll(ctx context.Context, pid int) (*Snapshot, bool) {
	return f(ctx, pid)
}

// ProcessTable looks pids up in the real OS process table through gopsutil
type ProcessTable struct{}

// Poll returns a snapshot of pid, or false if no such process exists.
// One lookup, no retries. Lookup errors count as absent.
func (ProcessTable) Poll(ctx context.Context, pid int) (*Snapshot, bool) {
	return Poll(ctx, pid)
}

// Poll returns a snapshot of pid, or false if no such process exists
func Poll(ctx context.Context, pid int) (*Snapshot, bool) {
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, false
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return nil, false
	}

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, false
	}

	snap := &Snapshot{PID: pid, Exists: true}

	// Individual fields may be unreadable (permissions, kernel threads).
	// Only a vanished process turns the poll into "absent".
	if name, err := p.NameWithContext(ctx); err == nil {
		snap.Name = name
	} else if gone(err) {
		return nil, false
	}

	if status, err := p.StatusWithContext(ctx); err == nil {
		snap.Status = strings.Join(status, ",")
	} else if gone(err) {
		return nil, false
	}

	if times, err := p.TimesWithContext(ctx); err == nil && times != nil {
		snap.CPUTimes = CPUTimes{
			User:   times.User,
			System: times.System,
			Iowait: times.Iowait,
		}
	}

	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		snap.CreatedAt = time.UnixMilli(created)
	}

	if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
		snap.CommandLine = cmdline
	}

	return snap, true
}

func gone(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) || errors.Is(err, os.ErrNotExist)
}
