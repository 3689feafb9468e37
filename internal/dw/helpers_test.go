package dw

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"salesdw/internal/extract"
	"salesdw/internal/metrics"
	"salesdw/internal/storage"
)

var errConnReset = syscall.ECONNRESET

type memTable struct {
	spec storage.TableSpec
	rows [][]any
}

// memWarehouse is an in-memory storage.Warehouse. InsertRows rejects a
// duplicate primary key the way a real database would, and writes nothing in
// that case.
type memWarehouse struct {
	tables map[string]*memTable

	failRead   map[string]error
	failCreate map[string]error
	failInsert map[string]error

	created []string
	inserts []string
	closed  int
}

func newMemWarehouse() *memWarehouse {
	return &memWarehouse{
		tables:     map[string]*memTable{},
		failRead:   map[string]error{},
		failCreate: map[string]error{},
		failInsert: map[string]error{},
	}
}

func (w *memWarehouse) seed(spec storage.TableSpec, rows ...[]any) {
	w.tables[spec.Name] = &memTable{spec: spec, rows: rows}
}

func (w *memWarehouse) ReadColumns(_ context.Context, table string, columns []string) (*storage.Frame, error) {
	if err := w.failRead[table]; err != nil {
		return nil, err
	}
	t, ok := w.tables[table]
	if !ok {
		return nil, storage.TableNotFound("read", table)
	}
	names := t.spec.ColumnNames()
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = -1
		for j, n := range names {
			if strings.EqualFold(n, c) {
				idx[i] = j
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("mem: %s has no column %q", table, c)
		}
	}
	f := &storage.Frame{Columns: columns}
	for _, r := range t.rows {
		out := make([]any, len(idx))
		for i, j := range idx {
			out[i] = r[j]
		}
		f.Rows = append(f.Rows, out)
	}
	return f, nil
}

func (w *memWarehouse) CreateTable(_ context.Context, spec storage.TableSpec) error {
	if err := w.failCreate[spec.Name]; err != nil {
		return err
	}
	if _, ok := w.tables[spec.Name]; ok {
		return fmt.Errorf("mem: table %s already exists", spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	w.tables[spec.Name] = &memTable{spec: spec}
	w.created = append(w.created, spec.Name)
	return nil
}

func (w *memWarehouse) InsertRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if err := w.failInsert[table]; err != nil {
		return 0, err
	}
	t, ok := w.tables[table]
	if !ok {
		return 0, storage.TableNotFound("insert", table)
	}
	if got, want := strings.Join(columns, ","), strings.Join(t.spec.ColumnNames(), ","); got != want {
		return 0, fmt.Errorf("mem: %s columns %s, want %s", table, got, want)
	}
	keys := make(map[string]struct{}, len(t.rows)+len(rows))
	for _, r := range t.rows {
		keys[storage.NormalizeKey(r[0])] = struct{}{}
	}
	for _, r := range rows {
		k := storage.NormalizeKey(r[0])
		if _, dup := keys[k]; dup {
			return 0, fmt.Errorf("mem: %s duplicate primary key %s", table, k)
		}
		keys[k] = struct{}{}
	}
	t.rows = append(t.rows, rows...)
	w.inserts = append(w.inserts, table)
	return int64(len(rows)), nil
}

func (w *memWarehouse) Close() error { w.closed++; return nil }

func (w *memWarehouse) rowCount(table string) int {
	if t, ok := w.tables[table]; ok {
		return len(t.rows)
	}
	return -1
}

// keys returns the primary keys of table as strings.
func (w *memWarehouse) keys(table string) map[string]struct{} {
	out := map[string]struct{}{}
	if t, ok := w.tables[table]; ok {
		for _, r := range t.rows {
			out[storage.NormalizeKey(r[0])] = struct{}{}
		}
	}
	return out
}

type memSource struct {
	tables map[string]*storage.Frame
	closed int
}

func (s *memSource) ReadTable(_ context.Context, table string) (*storage.Frame, error) {
	f, ok := s.tables[table]
	if !ok {
		return nil, storage.TableNotFound("read", table)
	}
	return f, nil
}

func (s *memSource) Close() error { s.closed++; return nil }

// shopSource is a small, consistent source: three sales over two days.
func shopSource() *memSource {
	return &memSource{tables: map[string]*storage.Frame{
		"sales": {
			Columns: []string{extract.ColSaleID, extract.ColDate, extract.ColProductID, extract.ColCustomerID, extract.ColEmployeeID, extract.ColStoreID, extract.ColQuantity, extract.ColDiscount},
			Rows: [][]any{
				{int64(100), "2024-01-02", int64(10), int64(7), int64(3), int64(2), int64(5), "0.1"},
				{int64(101), "2024-01-01", int64(11), int64(8), int64(3), int64(2), int64(1), nil},
				{int64(102), "2024-01-02 17:30:00", int64(10), int64(8), int64(4), int64(1), int64(2), "0"},
			},
		},
		"products": {
			Columns: []string{extract.ColProductID, extract.ColName, extract.ColCategory, extract.ColPrice},
			Rows: [][]any{
				{int64(10), "Lamp", "Home", "10.0"},
				{int64(11), "Desk", "Office", "120.50"},
			},
		},
		"customers": {
			Columns: []string{extract.ColCustomerID, extract.ColName, extract.ColEmail, extract.ColGender, extract.ColBirthDate},
			Rows: [][]any{
				{int64(7), "Ana", "ana@example.com", "F", "1990-05-02"},
				{int64(8), "Luis", nil, "M", nil},
			},
		},
		"stores": {
			Columns: []string{extract.ColStoreID, "name", "city"},
			Rows: [][]any{
				{int64(1), "Norte", "Quito"},
				{int64(2), "Centro", "Lima"},
			},
		},
		"employees": {
			Columns: []string{extract.ColEmployeeID, "name", "hired"},
			Rows: [][]any{
				{int64(3), "Rosa", "2020-02-01"},
				{int64(4), "Jorge", "2021-09-15"},
			},
		},
	}}
}

// recordingMetrics counts calls per metric name and label set.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	observed map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]float64{}, observed: map[string]int{}}
}

func labelKey(name string, l metrics.Labels) string {
	return fmt.Sprintf("%s{table=%s,status=%s,kind=%s}", name, l["table"], l["status"], l["kind"])
}

func (r *recordingMetrics) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[labelKey(name, l)] += delta
}

func (r *recordingMetrics) ObserveHistogram(name string, _ float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observed[labelKey(name, l)]++
}

func (r *recordingMetrics) Flush() error { return nil }

var refTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
