// Package metrics defines the small backend seam the loader reports run
// metrics through. Concrete backends live in subpackages.
package metrics

// Labels are metric dimensions, rendered as tags or Prometheus labels.
type Labels map[string]string

// Backend receives counters and histogram observations. Implementations must
// be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush delivers buffered points. Backends without buffering return nil.
	Flush() error
}

// Metric names emitted by the run engine.
const (
	// TableTotal counts table outcomes, labels {table, status}.
	TableTotal = "salesdw_table_total"
	// TableDurationSeconds observes per-table wall time, labels {table, status}.
	TableDurationSeconds = "salesdw_table_duration_seconds"
	// RowsTotal counts rows, labels {table, kind} with kind candidates, inserted or dropped.
	RowsTotal = "salesdw_rows_total"
	// RunsTotal counts finished runs, labels {status}.
	RunsTotal = "salesdw_runs_total"
)

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
