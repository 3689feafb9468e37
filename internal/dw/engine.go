package dw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"salesdw/internal/extract"
	"salesdw/internal/metrics"
	"salesdw/internal/storage"
)

// Engine runs one incremental load: extract, reconcile every dimension,
// enrich facts, then load the dimensions followed by the fact table.
//
// A table-level failure is isolated to that table. The fact table only loads
// when every dimension reconciled and loaded, so its references are
// guaranteed to exist.
type Engine struct {
	Source    storage.Source
	Warehouse storage.Warehouse

	Tables extract.Tables
	// Columns maps source column names. Warehouse column names are fixed.
	Columns extract.Columns
	Targets WarehouseTables

	Policy Policy
	// EnforceReferences adds FOREIGN KEY clauses when the fact table is
	// bootstrapped.
	EnforceReferences bool

	// Clock is the reference time for customer age. Defaults to the real clock.
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics metrics.Backend

	// RunID tags logs and the report. Generated when empty.
	RunID string
}

// Report is the outcome of one run.
type Report struct {
	RunID    string         `json:"run_id" yaml:"run_id"`
	Policy   Policy         `json:"policy" yaml:"policy"`
	Started  time.Time      `json:"started" yaml:"started"`
	Finished time.Time      `json:"finished" yaml:"finished"`
	Tables   []TableOutcome `json:"tables" yaml:"tables"`
	// Err is the fatal extraction error, if any. No table was touched.
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the run finished without a fatal error or a failed table.
func (r *Report) OK() bool {
	if r.Err != nil {
		return false
	}
	for _, t := range r.Tables {
		if t.Failed() {
			return false
		}
	}
	return true
}

// Failures returns the failed table outcomes in load order.
func (r *Report) Failures() []TableOutcome {
	var out []TableOutcome
	for _, t := range r.Tables {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

// ErrRunFailed is returned by Run when at least one table failed.
var ErrRunFailed = errors.New("dw: run finished with failed tables")

// dimPlan is one reconciled dimension ready to load.
type dimPlan struct {
	name    string
	spec    storage.TableSpec
	rows    [][]any
	fresh   int
	mapping map[string]int64
	err     error
}

// Run executes the load. The returned Report is never nil. The error is the
// fatal extraction failure, ErrRunFailed when any table failed, or nil.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	runID := e.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := e.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("run_id", runID)
	m := e.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	policy := e.Policy
	if policy == "" {
		policy = PolicyStrict
	}
	targets := e.Targets.WithDefaults()

	rep := &Report{RunID: runID, Policy: policy, Started: clock.Now()}
	finish := func() {
		rep.Finished = clock.Now()
		status := "success"
		if !rep.OK() {
			status = "failure"
		}
		m.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": status})
		log.Info("run finished", "stage", "run", "status", status, "ms", rep.Finished.Sub(rep.Started).Milliseconds())
	}

	log.Info("run started", "stage", "run", "policy", string(policy))

	batch, err := (&extract.Extractor{Source: e.Source, Tables: e.Tables, Columns: e.Columns, Logger: log, Clock: clock}).Extract(ctx)
	if err != nil {
		log.Error("extraction failed", "stage", "extract", "err", err)
		rep.Err = err
		finish()
		return rep, err
	}

	snaps := SnapshotReader{Warehouse: e.Warehouse}
	dims := []*dimPlan{
		e.planTime(ctx, snaps, targets.Time, batch),
		e.planProducts(ctx, snaps, targets.Product, batch),
		e.planCustomers(ctx, snaps, targets.Customer, batch, clock.Now()),
		e.planPassthrough(ctx, snaps, targets.Store, batch.Columns.StoreID, extract.ColStoreID, batch.Stores),
		e.planPassthrough(ctx, snaps, targets.Employee, batch.Columns.EmployeeID, extract.ColEmployeeID, batch.Employees),
	}

	reconciled := true
	for _, d := range dims {
		if d.err != nil {
			reconciled = false
			log.Error("dimension reconciliation failed", "stage", "reconcile", "table", d.name, "err", d.err)
			continue
		}
		log.Info("dimension reconciled", "stage", "reconcile", "table", d.name, "candidates", len(d.rows), "new", d.fresh)
	}

	// Enrichment needs every mapping; it runs before any write so a strict
	// reference failure is known up front.
	var (
		facts     Enrichment
		enrichErr error
	)
	if reconciled {
		facts, enrichErr = Enrich(targets.Fact, batch.Sales, Dimensions{
			Time:     dims[0].mapping,
			Product:  dims[1].mapping,
			Customer: dims[2].mapping,
			Store:    dims[3].mapping,
			Employee: dims[4].mapping,
		}, productPrices(batch.Products), policy)
		if enrichErr != nil {
			log.Error("fact enrichment failed", "stage", "enrich", "table", targets.Fact, "err", enrichErr)
		} else if facts.Dropped > 0 {
			log.Warn("fact rows dropped", "stage", "enrich", "table", targets.Fact, "dropped", facts.Dropped)
		}
	}

	loader := &Loader{Warehouse: e.Warehouse, Logger: log, Clock: clock}
	dimsLoaded := reconciled
	for _, d := range dims {
		var out TableOutcome
		if d.err != nil {
			out = TableOutcome{Table: d.name, Status: StatusFailed, Stage: "reconcile", Err: d.err, Reason: d.err.Error()}
		} else {
			out = loader.Load(ctx, d.spec, d.rows)
		}
		if out.Failed() {
			dimsLoaded = false
		}
		e.record(m, out)
		rep.Tables = append(rep.Tables, out)
	}

	var fact TableOutcome
	switch {
	case !reconciled:
		fact = TableOutcome{Table: targets.Fact, Status: StatusSkipped, Reason: "dimension reconciliation failed"}
	case enrichErr != nil:
		fact = TableOutcome{Table: targets.Fact, Status: StatusFailed, Stage: "enrich", Rows: len(batch.Sales), Err: enrichErr, Reason: enrichErr.Error()}
	case !dimsLoaded:
		fact = TableOutcome{Table: targets.Fact, Status: StatusSkipped, Reason: "dimension load failed"}
	default:
		rows := make([][]any, len(facts.Rows))
		for i, f := range facts.Rows {
			rows[i] = f.Values()
		}
		fact = loader.Load(ctx, factSpec(targets, e.EnforceReferences), rows)
		fact.Dropped = facts.Dropped
	}
	if fact.Status == StatusSkipped {
		log.Warn("fact load skipped", "stage", "load", "table", fact.Table, "reason", fact.Reason)
	}
	e.record(m, fact)
	rep.Tables = append(rep.Tables, fact)

	finish()
	if !rep.OK() {
		return rep, ErrRunFailed
	}
	return rep, nil
}

func (e *Engine) record(m metrics.Backend, o TableOutcome) {
	status := string(o.Status)
	m.IncCounter(metrics.TableTotal, 1, metrics.Labels{"table": o.Table, "status": status})
	m.ObserveHistogram(metrics.TableDurationSeconds, o.Duration.Seconds(), metrics.Labels{"table": o.Table, "status": status})
	m.IncCounter(metrics.RowsTotal, float64(o.Rows), metrics.Labels{"table": o.Table, "kind": "candidates"})
	m.IncCounter(metrics.RowsTotal, float64(o.Inserted), metrics.Labels{"table": o.Table, "kind": "inserted"})
	m.IncCounter(metrics.RowsTotal, float64(o.Dropped), metrics.Labels{"table": o.Table, "kind": "dropped"})
}

// keyedRows prefixes every distinct candidate with its resolved surrogate
// key. Candidates already in the snapshot stay in the batch; the loader
// filters them against the persisted keys.
func keyedRows(cands []Candidate, r Reconciliation) [][]any {
	seen := make(map[string]struct{}, len(cands))
	out := make([][]any, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.NaturalKey]; ok {
			continue
		}
		seen[c.NaturalKey] = struct{}{}
		row := make([]any, 0, len(c.Row)+1)
		row = append(row, r.Mapping[c.NaturalKey])
		out = append(out, append(row, c.Row...))
	}
	return out
}

func (e *Engine) planTime(ctx context.Context, snaps SnapshotReader, table string, b *extract.Batch) *dimPlan {
	p := &dimPlan{name: table, spec: timeSpec(table)}
	snap, err := snaps.TimeSnapshot(ctx, table)
	if err != nil {
		p.err = err
		return p
	}
	cands := TimeCandidates(b.Sales)
	r := Reconcile(cands, snap)
	p.rows, p.fresh, p.mapping = keyedRows(cands, r), len(r.New), r.Mapping
	return p
}

func (e *Engine) planProducts(ctx context.Context, snaps SnapshotReader, table string, b *extract.Batch) *dimPlan {
	cands := make([]Candidate, len(b.Products))
	attrs := make([][]any, len(b.Products))
	for i, pr := range b.Products {
		attrs[i] = []any{pr.Name, pr.Category, pr.Price}
		cands[i] = Candidate{NaturalKey: identityKey(pr.ID), Key: pr.ID, Row: attrs[i]}
	}
	return e.planIdentity(ctx, snaps, productSpec(table, attrs), cands)
}

// planCustomers derives age as the difference between the reference year and
// the birth year. An unknown birth date gives a NULL age.
func (e *Engine) planCustomers(ctx context.Context, snaps SnapshotReader, table string, b *extract.Batch, now time.Time) *dimPlan {
	cands := make([]Candidate, len(b.Customers))
	attrs := make([][]any, len(b.Customers))
	for i, c := range b.Customers {
		var age any
		if c.BirthDate != nil {
			age = int64(now.Year() - c.BirthDate.Year())
		}
		attrs[i] = []any{c.Name, c.Email, c.Gender, age}
		cands[i] = Candidate{NaturalKey: identityKey(c.ID), Key: c.ID, Row: attrs[i]}
	}
	return e.planIdentity(ctx, snaps, customerSpec(table, attrs), cands)
}

// planPassthrough builds an id-keyed dimension carrying every source column.
// The source id column srcKey becomes the warehouse key column keyCol.
func (e *Engine) planPassthrough(ctx context.Context, snaps SnapshotReader, table, srcKey, keyCol string, f *storage.Frame) *dimPlan {
	keyIdx := f.Index(srcKey)
	if keyIdx < 0 {
		return &dimPlan{name: table, err: fmt.Errorf("dw: %s: source has no %s column", table, srcKey)}
	}
	var cols []string
	for i, c := range f.Columns {
		if i != keyIdx {
			cols = append(cols, c)
		}
	}

	cands := make([]Candidate, 0, f.Len())
	attrs := make([][]any, 0, f.Len())
	for i, r := range f.Rows {
		id, err := storage.KeyInt64(r[keyIdx])
		if err != nil {
			return &dimPlan{name: table, err: fmt.Errorf("dw: %s row %d %s: %w", table, i+1, srcKey, err)}
		}
		row := make([]any, 0, len(cols))
		for j, v := range r {
			if j != keyIdx {
				row = append(row, v)
			}
		}
		attrs = append(attrs, row)
		cands = append(cands, Candidate{NaturalKey: identityKey(id), Key: id, Row: row})
	}
	return e.planIdentity(ctx, snaps, passthroughSpec(table, keyCol, cols, attrs), cands)
}

func (e *Engine) planIdentity(ctx context.Context, snaps SnapshotReader, spec storage.TableSpec, cands []Candidate) *dimPlan {
	p := &dimPlan{name: spec.Name, spec: spec}
	snap, err := snaps.IdentitySnapshot(ctx, spec.Name, spec.PrimaryKey.Name)
	if err != nil {
		p.err = err
		return p
	}
	r := ReconcileIdentity(cands, snap)
	p.rows, p.fresh, p.mapping = keyedRows(cands, r), len(r.New), r.Mapping
	return p
}

// productPrices maps product id to price, first occurrence winning like the
// dimension itself.
func productPrices(products []extract.Product) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		if _, ok := out[p.ID]; !ok {
			out[p.ID] = p.Price
		}
	}
	return out
}
