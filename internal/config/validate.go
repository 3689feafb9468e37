package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"salesdw/internal/dw"
	"salesdw/internal/report"
	"salesdw/internal/storage"
)

// Severity grades a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path uses the config key form, e.g.
// "warehouse.tables.fact".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message) }

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks p against the linked storage backends. It never touches a
// store.
func Validate(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityWarning, "job", "empty; metrics use the default job name")
	}

	checkStore(add, "source", p.Source.Kind, p.Source.DSN, storage.SourceKinds())
	checkStore(add, "warehouse", p.Warehouse.Kind, p.Warehouse.DSN, storage.WarehouseKinds())
	if p.Source.Kind != "" && p.Source.Kind == p.Warehouse.Kind && p.Source.DSN != "" && p.Source.DSN == p.Warehouse.DSN {
		add(SeverityWarning, "warehouse.dsn", "same store as source; dimension tables may collide with source tables")
	}

	checkNames(add, "source.tables", map[string]string{
		"sales":     p.Source.Tables.Sales,
		"customers": p.Source.Tables.Customers,
		"products":  p.Source.Tables.Products,
		"stores":    p.Source.Tables.Stores,
		"employees": p.Source.Tables.Employees,
	})
	checkNames(add, "warehouse.tables", map[string]string{
		"time":     p.Warehouse.Tables.Time,
		"product":  p.Warehouse.Tables.Product,
		"customer": p.Warehouse.Tables.Customer,
		"store":    p.Warehouse.Tables.Store,
		"employee": p.Warehouse.Tables.Employee,
		"fact":     p.Warehouse.Tables.Fact,
	})

	if _, err := dw.ParsePolicy(p.Runtime.ReferencePolicy); err != nil {
		add(SeverityError, "runtime.reference_policy", "%v", err)
	}
	if p.Runtime.InsertBatchSize < 0 {
		add(SeverityError, "runtime.insert_batch_size", "must be >= 0, got %d", p.Runtime.InsertBatchSize)
	}

	switch strings.ToLower(p.Metrics.Backend) {
	case "", MetricsNone:
	case MetricsDatadog:
		if p.Metrics.FlushInterval < 0 {
			add(SeverityError, "metrics.flush_interval", "must be >= 0, got %s", p.Metrics.FlushInterval)
		}
	case MetricsPushgateway:
		if p.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "required for the pushgateway backend")
		} else if u, err := url.Parse(p.Metrics.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, "metrics.pushgateway_url", "not an absolute URL: %q", p.Metrics.PushgatewayURL)
		}
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want none, datadog or pushgateway)", p.Metrics.Backend)
	}

	if _, err := report.ParseFormat(p.Report.Format); err != nil {
		add(SeverityError, "report.format", "%v", err)
	}
	return out
}

func checkStore(add func(Severity, string, string, ...any), path, kind, dsn string, kinds []string) {
	switch {
	case kind == "":
		add(SeverityError, path+".kind", "required")
	case !slices.Contains(kinds, kind):
		add(SeverityError, path+".kind", "unsupported kind %q (have %s)", kind, strings.Join(kinds, ", "))
	}
	if strings.TrimSpace(dsn) == "" {
		add(SeverityError, path+".dsn", "required")
	}
}

// checkNames flags blank and repeated physical table names.
func checkNames(add func(Severity, string, string, ...any), path string, names map[string]string) {
	byName := map[string][]string{}
	for role, name := range names {
		if strings.TrimSpace(name) == "" {
			add(SeverityError, path+"."+role, "empty table name")
			continue
		}
		key := strings.ToLower(name)
		byName[key] = append(byName[key], role)
	}
	keys := make([]string, 0, len(byName))
	for k := range byName {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, name := range keys {
		roles := byName[name]
		if len(roles) < 2 {
			continue
		}
		slices.Sort(roles)
		add(SeverityError, path+"."+roles[1], "table %q already used by %s", name, roles[0])
	}
}
