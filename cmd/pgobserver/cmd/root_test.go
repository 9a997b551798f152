package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/psantana5/pgobserver/internal/config"
	apperrors "github.com/psantana5/pgobserver/internal/errors"
	"github.com/psantana5/pgobserver/internal/notify"
	"github.com/psantana5/pgobserver/internal/observe"
	"github.com/psantana5/pgobserver/internal/platform"
	"github.com/psantana5/pgobserver/pkg/logging"
)

const testINI = `[email]
server = 127.0.0.1
port = 465
username = watcher@example.com
password = secret
emails = ops@example.com
`

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []notify.Request
	ok   bool
}

func (r *recordingNotifier) Send(ctx context.Context, req notify.Request) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.ok
}

func testDeps(n *recordingNotifier, presentPolls int) deps {
	polls := 0
	return deps{
		detectPlatform: func(context.Context) platform.Info { return platform.Info{OS: "linux"} },
		newNotifier: func(config.EmailConfig, *logging.Logger) observe.Notifier {
			return n
		},
		poller: observe.PollerFunc(func(ctx context.Context, pid int) (*observe.Snapshot, bool) {
			polls++
			if polls <= presentPolls {
				return &observe.Snapshot{PID: pid, Exists: true, Name: "job", Status: "running"}, true
			}
			return nil, false
		}),
	}
}

func runCmd(t *testing.T, d deps, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd(d)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.ini")
	if err := os.WriteFile(path, []byte(testINI), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func decodeResult(t *testing.T, stdout string) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("stdout is not a JSON result: %v\n%s", err, stdout)
	}
	return result
}

func TestRoot_ForegroundProcessGone(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	n := &recordingNotifier{ok: true}

	stdout, _, err := runCmd(t, testDeps(n, 0), "-c", cfgPath, "-p", "9999", "--log-dir", dir, "-o", "json")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(n.reqs) != 1 || n.reqs[0].Subject != "进程 9999 执行结束" {
		t.Fatalf("Expected one finished notification, got %+v", n.reqs)
	}

	result := decodeResult(t, stdout)
	if result["mode"] != "foreground" || result["reason"] != "process_exited" || result["notification"] != "sent" {
		t.Errorf("Unexpected result %v", result)
	}
}

func TestRoot_ForegroundProcessRunning(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	n := &recordingNotifier{ok: true}

	stdout, _, err := runCmd(t, testDeps(n, 1), "-c", cfgPath, "-p", "1234", "--log-dir", dir, "-o", "json")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(n.reqs) != 0 {
		t.Errorf("Running process must not be notified, got %+v", n.reqs)
	}
	if result := decodeResult(t, stdout); result["reason"] != "still_running" || result["notification"] != "none" {
		t.Errorf("Unexpected result %v", result)
	}
}

func TestRoot_BackgroundUntilExit(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	n := &recordingNotifier{ok: false}
	metricsFile := filepath.Join(dir, "pgobserver.prom")

	stdout, _, err := runCmd(t, testDeps(n, 1),
		"-c", cfgPath, "-p", "1234", "-d", "-i", "1", "--log-dir", dir, "-o", "json", "--metrics-file", metricsFile)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(n.reqs) != 1 {
		t.Fatalf("Expected exactly one notification attempt, got %d", len(n.reqs))
	}

	result := decodeResult(t, stdout)
	if result["mode"] != "background" || result["notification"] != "failed" {
		t.Errorf("Unexpected result %v", result)
	}
	if polls, _ := result["polls"].(float64); polls != 2 {
		t.Errorf("Expected 2 polls, got %v", result["polls"])
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `pgobserver_notifications_total{result="failed"} 1`) {
		t.Errorf("metrics file missing failed notification:\n%s", data)
	}
}

func TestRoot_TextOutputAndLogFile(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	n := &recordingNotifier{ok: true}

	stdout, stderr, err := runCmd(t, testDeps(n, 0), "-c", cfgPath, "-p", "4321", "--log-dir", dir)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(stdout, "process_exited") {
		t.Errorf("Expected table output, got %q", stdout)
	}
	if !strings.Contains(stderr, "WATCH") {
		t.Errorf("Expected summary line on the console, got %q", stderr)
	}

	logs, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil || len(logs) != 1 {
		t.Fatalf("Expected one daily log file, got %v (%v)", logs, err)
	}
	data, _ := os.ReadFile(logs[0])
	if !strings.Contains(string(data), "pid="+strconv.Itoa(4321)) {
		t.Errorf("Log file missing summary: %s", data)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Log file leaks the SMTP password")
	}
}

func TestRoot_ConfigMissing(t *testing.T) {
	n := &recordingNotifier{ok: true}
	missing := filepath.Join(t.TempDir(), "config.ini")

	_, _, err := runCmd(t, testDeps(n, 0), "-c", missing, "-p", "1")
	if !errors.Is(err, apperrors.ErrConfigMissing) {
		t.Fatalf("Expected ErrConfigMissing, got %v", err)
	}
	if len(n.reqs) != 0 {
		t.Error("No notification may be sent without a config")
	}
}

func TestRoot_UnsupportedPlatform(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	n := &recordingNotifier{ok: true}
	d := testDeps(n, 0)
	d.detectPlatform = func(context.Context) platform.Info { return platform.Info{OS: "windows"} }

	_, stderr, err := runCmd(t, d, "-c", cfgPath, "-p", "1")
	if !errors.Is(err, apperrors.ErrUnsupportedPlatform) {
		t.Fatalf("Expected ErrUnsupportedPlatform, got %v", err)
	}
	if !strings.Contains(stderr, "windows platform is not supported") {
		t.Errorf("Expected platform error to be logged, got %q", stderr)
	}
	if len(n.reqs) != 0 {
		t.Error("No notification may be sent on an unsupported platform")
	}
}

func TestRoot_FlagValidation(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"pid required", []string{"-c", cfgPath}},
		{"pid not a number", []string{"-c", cfgPath, "-p", "abc"}},
		{"pid zero", []string{"-c", cfgPath, "-p", "0"}},
		{"interval zero", []string{"-c", cfgPath, "-p", "1", "-i", "0"}},
		{"unknown output", []string{"-c", cfgPath, "-p", "1", "-o", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{ok: true}
			if _, _, err := runCmd(t, testDeps(n, 0), tt.args...); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
			if len(n.reqs) != 0 {
				t.Error("Rejected invocation must not notify")
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := runCmd(t, testDeps(&recordingNotifier{}, 0), "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "pgobserver "+Version) {
		t.Errorf("Unexpected version output %q", stdout)
	}
}
