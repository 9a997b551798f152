package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteMetrics encodes everything g gathers in the Prometheus text format
func WriteMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile writes metrics for the node_exporter textfile collector.
// The file is replaced atomically so a scrape never sees half of it.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteMetrics(tmp, g); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move metrics file into place: %w", err)
	}
	return nil
}

// Render prints r in the requested format
func Render(w io.Writer, r *Result, format string) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)

	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(r); err != nil {
			return err
		}
		return encoder.Close()

	case FormatText, "":
		return renderText(w, r)

	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func renderText(w io.Writer, r *Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Session", "PID", "Mode", "Reason", "Polls", "Notification", "Runtime")
	table.Append(
		r.SessionID,
		fmt.Sprintf("%d", r.PID),
		r.Mode,
		r.Reason,
		fmt.Sprintf("%d", r.Polls),
		r.Notification,
		r.Duration.Round(time.Millisecond).String(),
	)
	if err := table.Render(); err != nil {
		return err
	}

	if r.Last == nil {
		return nil
	}

	fmt.Fprintln(w)
	snap := tablewriter.NewWriter(w)
	snap.Header("PID", "Name", "Status", "CPU user", "CPU system", "Started", "Command")
	snap.Append(
		fmt.Sprintf("%d", r.Last.PID),
		r.Last.Name,
		r.Last.Status,
		fmt.Sprintf("%.2fs", r.Last.CPUTimes.User),
		fmt.Sprintf("%.2fs", r.Last.CPUTimes.System),
		r.Last.CreatedAt.Format("2006-01-02 15:04:05"),
		strings.Join(r.Last.CommandLine, " "),
	)
	return snap.Render()
}
