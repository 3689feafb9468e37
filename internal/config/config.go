// Package config defines the pipeline file the CLI consumes and turns it into
// a dw.RunConfig.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"salesdw/internal/dw"
	"salesdw/internal/extract"
	"salesdw/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. SALESDW_WAREHOUSE_DSN.
const EnvPrefix = "SALESDW"

// DefaultInsertBatchSize caps rows per INSERT statement unless overridden.
const DefaultInsertBatchSize = 500

// Metrics backend names.
const (
	MetricsNone        = "none"
	MetricsDatadog     = "datadog"
	MetricsPushgateway = "pushgateway"
)

// Pipeline is the top-level config file.
type Pipeline struct {
	Job       string    `json:"job" mapstructure:"job"`
	Source    Source    `json:"source" mapstructure:"source"`
	Warehouse Warehouse `json:"warehouse" mapstructure:"warehouse"`
	Runtime   Runtime   `json:"runtime" mapstructure:"runtime"`
	Metrics   Metrics   `json:"metrics" mapstructure:"metrics"`
	Report    Report    `json:"report" mapstructure:"report"`
}

// Source is the transactional store the run reads from.
type Source struct {
	Kind    string            `json:"kind" mapstructure:"kind"`
	DSN     string            `json:"dsn" mapstructure:"dsn"`
	Options map[string]string `json:"options,omitempty" mapstructure:"options"`
	Tables  extract.Tables    `json:"tables" mapstructure:"tables"`
	Columns extract.Columns   `json:"columns" mapstructure:"columns"`
}

// Warehouse is the star schema the run appends to.
type Warehouse struct {
	Kind    string             `json:"kind" mapstructure:"kind"`
	DSN     string             `json:"dsn" mapstructure:"dsn"`
	Options map[string]string  `json:"options,omitempty" mapstructure:"options"`
	Tables  dw.WarehouseTables `json:"tables" mapstructure:"tables"`
}

// Runtime controls load behaviour.
type Runtime struct {
	// ReferencePolicy is "strict" or "lenient".
	ReferencePolicy string `json:"reference_policy" mapstructure:"reference_policy"`
	// InsertBatchSize caps rows per INSERT statement.
	InsertBatchSize int `json:"insert_batch_size" mapstructure:"insert_batch_size"`
	// EnforceReferences adds FOREIGN KEY clauses when the fact table is created.
	EnforceReferences bool `json:"enforce_references" mapstructure:"enforce_references"`
}

// Metrics selects where run metrics go.
type Metrics struct {
	Backend        string        `json:"backend" mapstructure:"backend"`
	PushgatewayURL string        `json:"pushgateway_url,omitempty" mapstructure:"pushgateway_url"`
	Tags           []string      `json:"tags,omitempty" mapstructure:"tags"`
	FlushInterval  time.Duration `json:"flush_interval,omitempty" mapstructure:"flush_interval"`
}

// Report selects the outcome rendering.
type Report struct {
	Format string `json:"format" mapstructure:"format"`
}

// Default returns a pipeline with every optional field filled.
func Default() Pipeline {
	return Pipeline{
		Job:       "salesdw",
		Source:    Source{Tables: extract.DefaultTables(), Columns: extract.DefaultColumns()},
		Warehouse: Warehouse{Tables: dw.DefaultWarehouseTables()},
		Runtime: Runtime{
			ReferencePolicy: string(dw.PolicyStrict),
			InsertBatchSize: DefaultInsertBatchSize,
		},
		Metrics: Metrics{Backend: MetricsNone, FlushInterval: 60 * time.Second},
		Report:  Report{Format: "table"},
	}
}

// Load reads the pipeline at path (YAML or JSON by extension). A .env file
// next to it is loaded first when present; variables already set win.
// Environment variables override file values: runtime.reference_policy is
// SALESDW_RUNTIME_REFERENCE_POLICY.
func Load(path string) (Pipeline, error) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Pipeline{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	p.Source.Tables = p.Source.Tables.WithDefaults()
	p.Source.Columns = p.Source.Columns.WithDefaults()
	p.Warehouse.Tables = p.Warehouse.Tables.WithDefaults()
	return p, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the file
// leaves out.
func setDefaults(v *viper.Viper, d Pipeline) {
	v.SetDefault("job", d.Job)
	v.SetDefault("source.kind", "")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.tables.sales", d.Source.Tables.Sales)
	v.SetDefault("source.tables.customers", d.Source.Tables.Customers)
	v.SetDefault("source.tables.products", d.Source.Tables.Products)
	v.SetDefault("source.tables.stores", d.Source.Tables.Stores)
	v.SetDefault("source.tables.employees", d.Source.Tables.Employees)
	c := d.Source.Columns
	for key, val := range map[string]string{
		"sale_id": c.SaleID, "date": c.Date, "product_id": c.ProductID, "customer_id": c.CustomerID,
		"employee_id": c.EmployeeID, "store_id": c.StoreID, "quantity": c.Quantity, "discount": c.Discount,
		"name": c.Name, "email": c.Email, "gender": c.Gender, "birth_date": c.BirthDate,
		"category": c.Category, "price": c.Price,
	} {
		v.SetDefault("source.columns."+key, val)
	}
	v.SetDefault("warehouse.kind", "")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.tables.time", d.Warehouse.Tables.Time)
	v.SetDefault("warehouse.tables.product", d.Warehouse.Tables.Product)
	v.SetDefault("warehouse.tables.customer", d.Warehouse.Tables.Customer)
	v.SetDefault("warehouse.tables.store", d.Warehouse.Tables.Store)
	v.SetDefault("warehouse.tables.employee", d.Warehouse.Tables.Employee)
	v.SetDefault("warehouse.tables.fact", d.Warehouse.Tables.Fact)
	v.SetDefault("runtime.reference_policy", d.Runtime.ReferencePolicy)
	v.SetDefault("runtime.insert_batch_size", d.Runtime.InsertBatchSize)
	v.SetDefault("runtime.enforce_references", d.Runtime.EnforceReferences)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.tags", []string{})
	v.SetDefault("metrics.flush_interval", d.Metrics.FlushInterval)
	v.SetDefault("report.format", d.Report.Format)
}

// ToRunConfig converts p for dw.Runner. InsertBatchSize travels to the
// warehouse backend as the "batch_size" option.
func (p Pipeline) ToRunConfig() (dw.RunConfig, error) {
	policy, err := dw.ParsePolicy(p.Runtime.ReferencePolicy)
	if err != nil {
		return dw.RunConfig{}, err
	}

	whOpts := make(map[string]string, len(p.Warehouse.Options)+1)
	for k, v := range p.Warehouse.Options {
		whOpts[k] = v
	}
	if p.Runtime.InsertBatchSize > 0 {
		whOpts["batch_size"] = strconv.Itoa(p.Runtime.InsertBatchSize)
	}

	return dw.RunConfig{
		Source:            storage.Config{Kind: p.Source.Kind, DSN: p.Source.DSN, Options: p.Source.Options},
		Warehouse:         storage.Config{Kind: p.Warehouse.Kind, DSN: p.Warehouse.DSN, Options: whOpts},
		Tables:            p.Source.Tables.WithDefaults(),
		Columns:           p.Source.Columns.WithDefaults(),
		Targets:           p.Warehouse.Tables.WithDefaults(),
		Policy:            policy,
		EnforceReferences: p.Runtime.EnforceReferences,
	}, nil
}
