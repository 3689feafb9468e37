package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"salesdw/internal/dw"
	"salesdw/internal/storage"
)

func init() { color.NoColor = true }

func sampleReport() *dw.Report {
	start := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	return &dw.Report{
		RunID:    "r-42",
		Policy:   dw.PolicyStrict,
		Started:  start,
		Finished: start.Add(2 * time.Second),
		Tables: []dw.TableOutcome{
			{Table: "dim_time", Status: dw.StatusCreated, Rows: 3, Inserted: 3, Duration: 1500 * time.Millisecond},
			{Table: "dim_store", Status: dw.StatusFailed, Stage: "load", Rows: 2, Err: storage.NewTableError("insert", "dim_store", syscall.ECONNRESET, nil), Reason: "connection reset"},
			{Table: "fact_sales", Status: dw.StatusSkipped, Reason: "dimension load failed"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, "yml": FormatYAML, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("ParseFormat(xml) accepted")
	}
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatTable))
	out := buf.String()

	assert.Contains(t, out, "dim_time")
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "dimension load failed")
	assert.Contains(t, out, "run r-42 (strict): FAILURE")
	assert.Contains(t, out, "failed: dim_store at load (connection): connection reset")
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatJSON))

	var got Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "failure", got.Status)
	require.Len(t, got.Tables, 3)
	assert.Equal(t, int64(1500), got.Tables[0].DurationMS)
	assert.Equal(t, "load", got.Tables[1].Stage)
	assert.Equal(t, "connection reset", got.Tables[1].Reason)
	assert.Equal(t, []Failure{{Table: "dim_store", Stage: "load", Reason: "connection reset", Connection: true}}, got.Failures)
}

func TestSummarize_NonConnectionFailure(t *testing.T) {
	rep := sampleReport()
	rep.Tables[1].Err = errors.New("dw: dim_store: row arity mismatch")

	s := Summarize(rep)
	require.Len(t, s.Failures, 1)
	assert.False(t, s.Failures[0].Connection)
}

func TestRender_YAML(t *testing.T) {
	rep := sampleReport()
	rep.Tables = rep.Tables[:1]

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, FormatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "r-42", got["run_id"])
}

func TestSummarize_FatalError(t *testing.T) {
	rep := &dw.Report{RunID: "r", Err: errors.New("extract: sales: missing column")}
	s := Summarize(rep)
	assert.Equal(t, "failure", s.Status)
	assert.Equal(t, "extract: sales: missing column", s.Error)
	assert.Empty(t, s.Tables)
}
