package observe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	apperrors "github.com/psantana5/pgobserver/internal/errors"
	"github.com/psantana5/pgobserver/internal/notify"
	"github.com/psantana5/pgobserver/pkg/logging"
)

// DefaultPollInterval is used when a target has no positive interval
const DefaultPollInterval = 2 * time.Second

// State of a watch session. Only RUNNING -> STOPPED exists.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "STOPPED"
	}
	return "RUNNING"
}

// Reason explains why a session stopped
type Reason string

const (
	ReasonProcessExited Reason = "process_exited"
	ReasonCancelled     Reason = "cancelled"
	ReasonStillRunning  Reason = "still_running" // foreground only
)

// Target is the pid to watch and how often. Immutable for a session.
type Target struct {
	PID          int
	PollInterval time.Duration
}

// Notifier delivers the "process finished" message
type Notifier interface {
	Send(ctx context.Context, req notify.Request) bool
}

// Recorder receives poll and notification events, e.g. for metrics
type Recorder interface {
	RecordPoll(pid int, snap *Snapshot, present bool)
	RecordNotification(sent bool)
}

// Outcome is what a finished session reports
type Outcome struct {
	PID        int
	Reason     Reason
	Polls      int
	Notified   bool // a send was attempted
	NotifySent bool // the SMTP server accepted it
	Last       *Snapshot
	StartedAt  time.Time
	StoppedAt  time.Time
}

// Duration is how long the session ran, up to now if it has not stopped
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() {
		return 0
	}
	if o.StoppedAt.IsZero() {
		return time.Since(o.StartedAt)
	}
	return o.StoppedAt.Sub(o.StartedAt)
}

// Watcher observes one PID until it disappears. Nothing else.
type Watcher struct {
	target   Target
	poller   Poller
	notifier Notifier
	recorder Recorder
	logger   *logging.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	state State
	ran   bool
}

// Option configures a Watcher
type Option func(*Watcher)

// WithPoller replaces the OS process table lookup
func WithPoller(p Poller) Option {
	return func(w *Watcher) { w.poller = p }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithTracer sets the tracer used for session, poll and send spans
func WithTracer(t trace.Tracer) Option {
	return func(w *Watcher) { w.tracer = t }
}

// WithRecorder sets the event recorder
func WithRecorder(r Recorder) Option {
	return func(w *Watcher) { w.recorder = r }
}

// New creates a watcher for target
func New(target Target, notifier Notifier, opts ...Option) *Watcher {
	if target.PollInterval <= 0 {
		target.PollInterval = DefaultPollInterval
	}
	w := &Watcher{
		target:   target,
		poller:   ProcessTable{},
		notifier: notifier,
		logger:   logging.Nop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithField("pid", target.PID)
	return w
}

// State returns the current state
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Target returns what is being watched
func (w *Watcher) Target() Target {
	return w.target
}

// Run polls every PollInterval until the process is gone or ctx is cancelled.
// Absence sends exactly one notification; cancellation sends none.
func (w *Watcher) Run(ctx context.Context) (Outcome, error) {
	if err := w.begin(); err != nil {
		return Outcome{}, err
	}

	ctx, span := w.tracer.Start(ctx, "watch.session", trace.WithAttributes(
		attribute.Int("pid", w.target.PID),
		attribute.String("mode", "background"),
		attribute.String("interval", w.target.PollInterval.String()),
	))
	defer span.End()

	out := Outcome{PID: w.target.PID, StartedAt: time.Now()}

	ticker := time.NewTicker(w.target.PollInterval)
	defer ticker.Stop()

	for {
		// Checked once per iteration; a poll or send in flight is never interrupted
		if ctx.Err() != nil {
			return w.stop(span, out, ReasonCancelled), nil
		}

		snap, present := w.poll(ctx)
		out.Polls++
		if !present {
			out.Notified = true
			out.NotifySent = w.notify(ctx)
			return w.stop(span, out, ReasonProcessExited), nil
		}
		out.Last = snap

		select {
		case <-ctx.Done():
			return w.stop(span, out, ReasonCancelled), nil
		case <-ticker.C:
		}
	}
}

// Once polls a single time and notifies if the process is already gone
func (w *Watcher) Once(ctx context.Context) (Outcome, error) {
	if err := w.begin(); err != nil {
		return Outcome{}, err
	}

	ctx, span := w.tracer.Start(ctx, "watch.session", trace.WithAttributes(
		attribute.Int("pid", w.target.PID),
		attribute.String("mode", "foreground"),
	))
	defer span.End()

	out := Outcome{PID: w.target.PID, StartedAt: time.Now()}

	snap, present := w.poll(ctx)
	out.Polls = 1
	if present {
		out.Last = snap
		return w.stop(span, out, ReasonStillRunning), nil
	}

	out.Notified = true
	out.NotifySent = w.notify(ctx)
	return w.stop(span, out, ReasonProcessExited), nil
}

// Start runs the polling loop in its own goroutine.
// The channel yields the outcome once and is then closed.
func (w *Watcher) Start(ctx context.Context) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		out, err := w.Run(ctx)
		if err != nil {
			w.logger.Error(fmt.Sprintf("Watch did not start: %v", err))
			return
		}
		done <- out
	}()
	return done
}

func (w *Watcher) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ran {
		return apperrors.ErrAlreadyStopped
	}
	w.ran = true
	return nil
}

func (w *Watcher) stop(span trace.Span, out Outcome, reason Reason) Outcome {
	out.Reason = reason
	out.StoppedAt = time.Now()

	w.mu.Lock()
	w.state = Stopped
	w.mu.Unlock()

	span.SetAttributes(
		attribute.String("reason", string(reason)),
		attribute.Int("polls", out.Polls),
		attribute.Bool("notified", out.Notified),
	)
	w.logger.Debug(fmt.Sprintf("Watch stopped: %s after %d polls", reason, out.Polls))
	return out
}

func (w *Watcher) poll(ctx context.Context) (*Snapshot, bool) {
	ctx, span := w.tracer.Start(ctx, "process.poll")
	defer span.End()

	snap, present := w.poller.Poll(ctx, w.target.PID)
	span.SetAttributes(attribute.Bool("exists", present))

	if w.recorder != nil {
		w.recorder.RecordPoll(w.target.PID, snap, present)
	}

	if !present {
		w.logger.Info(fmt.Sprintf("Process [%d] does not exist", w.target.PID))
		return nil, false
	}

	w.logger.Info(fmt.Sprintf("Process [%d] %s is %s, running for %ds",
		w.target.PID, snap.Name, snap.Status, int(snap.Uptime(time.Now()).Seconds())),
		map[string]interface{}{"cmdline": strings.Join(snap.CommandLine, " ")})
	return snap, true
}

func (w *Watcher) notify(ctx context.Context) bool {
	// Cancellation after the process is gone must not abort the send
	ctx, span := w.tracer.Start(context.WithoutCancel(ctx), "notify.send")
	defer span.End()

	sent := false
	if w.notifier != nil {
		sent = w.notifier.Send(ctx, notify.FinishedRequest(w.target.PID))
	}
	span.SetAttributes(attribute.Bool("sent", sent))

	if w.recorder != nil {
		w.recorder.RecordNotification(sent)
	}
	return sent
}
