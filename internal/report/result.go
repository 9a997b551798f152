package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/pgobserver/internal/observe"
	"github.com/psantana5/pgobserver/pkg/logging"
)

// Execution modes
const (
	ModeForeground = "foreground"
	ModeBackground = "background"
)

// Notification states of a finished session
const (
	NotificationNone   = "none"
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Result is the immutable record of one watch session. Set once at STOPPED, never change.
// Logs, metrics and CLI output are all projections of it.
type Result struct {
	// Identity
	SessionID string `json:"session_id" yaml:"session_id"`
	PID       int    `json:"pid" yaml:"pid"`
	Mode      string `json:"mode" yaml:"mode"`

	// Timing
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration_ns" yaml:"duration"`

	// Outcome
	Reason       string            `json:"reason" yaml:"reason"`
	Polls        int               `json:"polls" yaml:"polls"`
	Notification string            `json:"notification" yaml:"notification"`
	Last         *observe.Snapshot `json:"last_snapshot,omitempty" yaml:"last_snapshot,omitempty"`
}

// NewResult freezes a watcher outcome into a Result
func NewResult(mode string, out observe.Outcome) *Result {
	r := &Result{
		SessionID:    uuid.NewString(),
		PID:          out.PID,
		Mode:         mode,
		Reason:       string(out.Reason),
		Polls:        out.Polls,
		Notification: NotificationNone,
		Last:         out.Last,
	}

	r.StartTime = out.StartedAt
	r.EndTime = out.StoppedAt
	r.Duration = out.Duration()

	if out.Notified {
		r.Notification = NotificationFailed
		if out.NotifySent {
			r.Notification = NotificationSent
		}
	}
	return r
}

// Finished reports whether the session saw the process gone
func (r *Result) Finished() bool {
	return r.Reason == string(observe.ReasonProcessExited)
}

// LogSummary emits the one-line summary ops grep for
func (r *Result) LogSummary(logger *logging.Logger) {
	logger.Info(fmt.Sprintf("WATCH %s | pid=%d | mode=%s | reason=%s | polls=%d | notification=%s | runtime=%.0fs",
		r.SessionID,
		r.PID,
		r.Mode,
		r.Reason,
		r.Polls,
		r.Notification,
		r.Duration.Seconds(),
	))
}
