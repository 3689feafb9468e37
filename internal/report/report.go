// Package report renders a run outcome for an operator (table) or a calling
// scheduler (json, yaml).
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"salesdw/internal/dw"
	"salesdw/internal/storage"
)

// Format selects the renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json, yaml (or yml). Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("report: unknown format %q (want table, json or yaml)", s)
}

// Summary is the serialisable form of a dw.Report.
type Summary struct {
	RunID    string         `json:"run_id" yaml:"run_id"`
	Status   string         `json:"status" yaml:"status"`
	Policy   string         `json:"policy" yaml:"policy"`
	Started  time.Time      `json:"started" yaml:"started"`
	Finished time.Time      `json:"finished" yaml:"finished"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Tables   []TableSummary `json:"tables" yaml:"tables"`
	Failures []Failure      `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// Failure describes one failed table. Connection is set when the store could
// not be reached, which usually means a rerun will succeed.
type Failure struct {
	Table      string `json:"table" yaml:"table"`
	Stage      string `json:"stage" yaml:"stage"`
	Reason     string `json:"reason" yaml:"reason"`
	Connection bool   `json:"connection,omitempty" yaml:"connection,omitempty"`
}

// TableSummary is one table line of a Summary.
type TableSummary struct {
	Table      string `json:"table" yaml:"table"`
	Status     string `json:"status" yaml:"status"`
	Stage      string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Rows       int    `json:"rows" yaml:"rows"`
	Inserted   int64  `json:"inserted" yaml:"inserted"`
	Dropped    int    `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	DurationMS int64  `json:"duration_ms" yaml:"duration_ms"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Summarize flattens rep. Error texts replace error values.
func Summarize(rep *dw.Report) Summary {
	s := Summary{
		RunID:    rep.RunID,
		Status:   "success",
		Policy:   string(rep.Policy),
		Started:  rep.Started,
		Finished: rep.Finished,
		Tables:   make([]TableSummary, 0, len(rep.Tables)),
	}
	if !rep.OK() {
		s.Status = "failure"
	}
	if rep.Err != nil {
		s.Error = rep.Err.Error()
	}
	for _, t := range rep.Tables {
		s.Tables = append(s.Tables, TableSummary{
			Table:      t.Table,
			Status:     string(t.Status),
			Stage:      t.Stage,
			Rows:       t.Rows,
			Inserted:   t.Inserted,
			Dropped:    t.Dropped,
			DurationMS: t.Duration.Milliseconds(),
			Reason:     t.Reason,
		})
	}
	for _, f := range rep.Failures() {
		s.Failures = append(s.Failures, Failure{
			Table:      f.Table,
			Stage:      f.Stage,
			Reason:     f.Reason,
			Connection: storage.IsConnection(f.Err),
		})
	}
	return s
}

// Render writes rep to w in format f.
func Render(w io.Writer, rep *dw.Report, f Format) error {
	s := Summarize(rep)
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		_, err := io.WriteString(w, renderTable(s))
		return err
	}
	return fmt.Errorf("report: unknown format %q", f)
}

func renderTable(s Summary) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Table", "Status", "Rows", "Inserted", "Dropped", "Duration", "Reason"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, t := range s.Tables {
		table.Append([]string{
			t.Table,
			colorStatus(t.Status),
			strconv.Itoa(t.Rows),
			strconv.FormatInt(t.Inserted, 10),
			strconv.Itoa(t.Dropped),
			(time.Duration(t.DurationMS) * time.Millisecond).String(),
			t.Reason,
		})
	}
	table.Render()

	status := color.GreenString("SUCCESS")
	if s.Status != "success" {
		status = color.RedString("FAILURE")
	}
	fmt.Fprintf(&buf, "\nrun %s (%s): %s\n", s.RunID, s.Policy, status)
	if s.Error != "" {
		fmt.Fprintf(&buf, "error: %s\n", s.Error)
	}
	for _, f := range s.Failures {
		kind := ""
		if f.Connection {
			kind = " (connection)"
		}
		fmt.Fprintf(&buf, "failed: %s at %s%s: %s\n", f.Table, f.Stage, kind, f.Reason)
	}
	return buf.String()
}

func colorStatus(status string) string {
	switch dw.Status(status) {
	case dw.StatusCreated:
		return color.CyanString(status)
	case dw.StatusInserted:
		return color.GreenString(status)
	case dw.StatusSkipped:
		return color.YellowString(status)
	case dw.StatusFailed:
		return color.RedString(status)
	}
	return status
}
