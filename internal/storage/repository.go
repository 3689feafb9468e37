package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a source or warehouse
// backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - Options carries backend-specific knobs (e.g. csv "comma", "encoding").
type Config struct {
	Kind    string
	DSN     string
	Options map[string]string
}

// Option returns cfg.Options[key] or def when unset/empty.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Source is read-only access to the transactional store.
//
// Tables are consumed whole; there is no filtering or pagination.
type Source interface {
	// ReadTable returns every row of table with all its columns.
	//
	// Errors:
	//   - Returns a *TableError with Kind KindTableNotFound when the table does not exist.
	ReadTable(ctx context.Context, table string) (*Frame, error)

	Close() error
}

// Warehouse is read + append-only write access to the star schema.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the incremental loader needs. Nothing here updates or deletes
// rows.
type Warehouse interface {
	// ReadColumns returns the projection of table onto columns.
	//
	// Errors:
	//   - *TableError{Kind: KindTableNotFound} when the table is absent. An
	//     existing table with zero rows returns an empty Frame and no error.
	//   - *TableError{Kind: KindConnection} for connectivity failures.
	ReadColumns(ctx context.Context, table string, columns []string) (*Frame, error)

	// CreateTable creates spec.Name with its primary key and constraints.
	CreateTable(ctx context.Context, spec TableSpec) error

	// InsertRows appends rows (aligned to columns) to table inside a single
	// transaction, chunked to the backend's parameter limits. It returns the
	// number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Close releases any backend resources (connections, pools).
	//
	// Callers should treat Close as "call once" at the end of a run.
	Close() error
}

type (
	sourceFactory    func(ctx context.Context, cfg Config) (Source, error)
	warehouseFactory func(ctx context.Context, cfg Config) (Warehouse, error)
)

var (
	mu                 sync.RWMutex
	sourceFactories    = map[string]sourceFactory{}
	warehouseFactories = map[string]warehouseFactory{}
)

// RegisterSource registers a source backend under a kind (e.g. "mysql", "csv").
//
// When to use:
//   - Call RegisterSource from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Registering
//     twice is a programming error and fails fast.
func RegisterSource(kind string, f func(ctx context.Context, cfg Config) (Source, error)) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterSource called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterSource called with nil factory")
	}
	if _, exists := sourceFactories[kind]; exists {
		panic(fmt.Sprintf("storage: source factory already registered for kind=%q", kind))
	}
	sourceFactories[kind] = f
}

// RegisterWarehouse registers a warehouse backend under a kind.
//
// Panics under the same conditions as RegisterSource.
func RegisterWarehouse(kind string, f func(ctx context.Context, cfg Config) (Warehouse, error)) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterWarehouse called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterWarehouse called with nil factory")
	}
	if _, exists := warehouseFactories[kind]; exists {
		panic(fmt.Sprintf("storage: warehouse factory already registered for kind=%q", kind))
	}
	warehouseFactories[kind] = f
}

// OpenSource constructs a Source using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func OpenSource(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing source kind")
	}

	mu.RLock()
	f := sourceFactories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported source kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// OpenWarehouse constructs a Warehouse using the registered backend factory.
func OpenWarehouse(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing warehouse kind")
	}

	mu.RLock()
	f := warehouseFactories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported warehouse kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// SourceKinds lists registered source kinds in sorted order.
func SourceKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(sourceFactories)
}

// WarehouseKinds lists registered warehouse kinds in sorted order.
func WarehouseKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(warehouseFactories)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
