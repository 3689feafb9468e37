package dw

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"salesdw/internal/storage"
)

// Status is the outcome of one table in a run.
type Status string

const (
	StatusCreated  Status = "created"
	StatusInserted Status = "inserted"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// TableOutcome reports what happened to one warehouse table.
type TableOutcome struct {
	Table    string        `json:"table" yaml:"table"`
	Status   Status        `json:"status" yaml:"status"`
	Stage    string        `json:"stage,omitempty" yaml:"stage,omitempty"` // reconcile, enrich or load on failure
	Rows     int           `json:"rows" yaml:"rows"`                       // candidate rows handed to the loader
	Inserted int64         `json:"inserted" yaml:"inserted"`
	Dropped  int           `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Err      error         `json:"-" yaml:"-"`
}

// Failed reports whether the table ended in StatusFailed.
func (o TableOutcome) Failed() bool { return o.Status == StatusFailed }

// Loader appends rows to one warehouse table at a time. It never updates or
// deletes.
type Loader struct {
	Warehouse storage.Warehouse
	Logger    *slog.Logger
	Clock     clockwork.Clock
}

// Load inserts the rows of spec.Name whose primary key is not yet persisted.
//
// Rows are aligned to spec.ColumnNames(), primary key first. Rows repeating a
// key within the batch are dropped, first occurrence winning, in input order.
//
// Outcomes:
//   - table missing: create it and insert the batch (StatusCreated).
//   - table present, even empty: insert absent keys (StatusInserted, zero allowed).
//   - anything else: StatusFailed with Err set.
func (l *Loader) Load(ctx context.Context, spec storage.TableSpec, rows [][]any) TableOutcome {
	clock := l.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := l.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	start := clock.Now()
	out := TableOutcome{Table: spec.Name, Rows: len(rows)}
	done := func() TableOutcome {
		out.Duration = clock.Since(start)
		return out
	}
	fail := func(err error) TableOutcome {
		out.Status = StatusFailed
		out.Stage = "load"
		out.Err = err
		out.Reason = err.Error()
		log.Error("table load failed", "stage", "load", "table", spec.Name, "err", err)
		return done()
	}

	if spec.PrimaryKey == nil {
		return fail(fmt.Errorf("dw: %s: spec has no primary key", spec.Name))
	}
	cols := spec.ColumnNames()
	for i, r := range rows {
		if len(r) != len(cols) {
			return fail(fmt.Errorf("dw: %s row %d has %d values, want %d", spec.Name, i+1, len(r), len(cols)))
		}
	}

	existing, err := l.Warehouse.ReadColumns(ctx, spec.Name, []string{spec.PrimaryKey.Name})
	switch {
	case storage.IsTableNotFound(err):
		if err := l.Warehouse.CreateTable(ctx, spec); err != nil {
			return fail(err)
		}
		batch := dedupeByKey(rows, nil)
		n, err := l.Warehouse.InsertRows(ctx, spec.Name, cols, batch)
		if err != nil {
			return fail(err)
		}
		out.Status = StatusCreated
		out.Inserted = n
		log.Info("table bootstrapped", "stage", "load", "table", spec.Name, "inserted", n)
		return done()
	case err != nil:
		return fail(err)
	}

	seen := make(map[string]struct{}, existing.Len())
	for _, r := range existing.Rows {
		seen[storage.NormalizeKey(r[0])] = struct{}{}
	}
	delta := dedupeByKey(rows, seen)

	out.Status = StatusInserted
	if len(delta) > 0 {
		n, err := l.Warehouse.InsertRows(ctx, spec.Name, cols, delta)
		if err != nil {
			return fail(err)
		}
		out.Inserted = n
	}
	log.Info("table loaded", "stage", "load", "table", spec.Name,
		"candidates", len(rows), "existing", existing.Len(), "inserted", out.Inserted)
	return done()
}

// dedupeByKey keeps rows whose first value is not in seen, first occurrence
// winning. seen may be nil and is updated in place.
func dedupeByKey(rows [][]any, seen map[string]struct{}) [][]any {
	if seen == nil {
		seen = make(map[string]struct{}, len(rows))
	}
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := storage.NormalizeKey(r[0])
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
