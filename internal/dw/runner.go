package dw

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"salesdw/internal/extract"
	"salesdw/internal/metrics"
	"salesdw/internal/storage"
)

// RunConfig is everything one run needs besides its collaborators.
type RunConfig struct {
	Source            storage.Config
	Warehouse         storage.Config
	Tables            extract.Tables
	Columns           extract.Columns
	Targets           WarehouseTables
	Policy            Policy
	EnforceReferences bool
}

// Runner opens the source and warehouse handles for a run and closes them on
// every exit path.
type Runner struct {
	// storage-agnostic factory seams
	OpenSource    func(ctx context.Context, cfg storage.Config) (storage.Source, error)
	OpenWarehouse func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error)

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics metrics.Backend
	RunID   string
}

// NewDefaultRunner wires the storage registry. Backends must be linked in by
// the caller (see internal/storage/all).
func NewDefaultRunner(log *slog.Logger, m metrics.Backend) *Runner {
	return &Runner{
		OpenSource:    storage.OpenSource,
		OpenWarehouse: storage.OpenWarehouse,
		Clock:         clockwork.NewRealClock(),
		Logger:        log,
		Metrics:       m,
	}
}

// Run opens both handles and executes the engine. DSNs go through
// os.ExpandEnv so secrets can stay in the environment. A failure to open a
// handle returns a nil Report.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Report, error) {
	openSrc, openWh := r.OpenSource, r.OpenWarehouse
	if openSrc == nil {
		openSrc = storage.OpenSource
	}
	if openWh == nil {
		openWh = storage.OpenWarehouse
	}

	srcCfg := cfg.Source
	srcCfg.DSN = os.ExpandEnv(srcCfg.DSN)
	src, err := openSrc(ctx, srcCfg)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	whCfg := cfg.Warehouse
	whCfg.DSN = os.ExpandEnv(whCfg.DSN)
	wh, err := openWh(ctx, whCfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	defer wh.Close()

	engine := &Engine{
		Source:            src,
		Warehouse:         wh,
		Tables:            cfg.Tables,
		Columns:           cfg.Columns,
		Targets:           cfg.Targets,
		Policy:            cfg.Policy,
		EnforceReferences: cfg.EnforceReferences,
		Clock:             r.Clock,
		Logger:            r.Logger,
		Metrics:           r.Metrics,
		RunID:             r.RunID,
	}
	return engine.Run(ctx)
}
