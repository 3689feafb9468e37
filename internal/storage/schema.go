// The TableSpec types live here so dw and every backend package can import
// them without circular deps.
package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Logical column types. Each backend maps them to its own DDL vocabulary.
const (
	TypeBigInt    = "bigint"
	TypeDouble    = "double"
	TypeDecimal   = "decimal" // decimal(18,4)
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeBoolean   = "boolean"
	TypeText      = "text"
)

// TypeVarchar returns the logical varchar(n) type.
func TypeVarchar(n int) string { return fmt.Sprintf("varchar(%d)", n) }

// ParseVarchar reports whether t is a logical varchar(n) and returns n.
func ParseVarchar(t string) (int, bool) {
	t = strings.ToLower(strings.TrimSpace(t))
	if !strings.HasPrefix(t, "varchar(") || !strings.HasSuffix(t, ")") {
		return 0, false
	}
	n, err := strconv.Atoi(t[len("varchar(") : len(t)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // logical type, always supplied by the caller (keys are never auto-generated)
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	References string `json:"references,omitempty"` // "table(column)"
	Nullable   *bool  `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

// ColumnNames returns the primary key column followed by every declared
// column, the order rows passed to InsertRows are aligned to.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey != nil {
		out = append(out, t.PrimaryKey.Name)
	}
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Validate rejects specs a backend cannot turn into DDL.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if t.PrimaryKey == nil || strings.TrimSpace(t.PrimaryKey.Name) == "" {
		return fmt.Errorf("%s: primary key is required", t.Name)
	}
	seen := map[string]bool{strings.ToLower(t.PrimaryKey.Name): true}
	for _, c := range t.Columns {
		n := strings.ToLower(strings.TrimSpace(c.Name))
		if n == "" {
			return fmt.Errorf("%s: column with empty name", t.Name)
		}
		if seen[n] {
			return fmt.Errorf("%s: duplicate column %s", t.Name, c.Name)
		}
		seen[n] = true
	}
	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		for _, c := range con.Columns {
			if !seen[strings.ToLower(c)] {
				return fmt.Errorf("%s: constraint references unknown column %s", t.Name, c)
			}
		}
	}
	return nil
}

// SplitReference splits "table(column)" into its parts.
func SplitReference(ref string) (table, column string, ok bool) {
	ref = strings.TrimSpace(ref)
	open := strings.IndexByte(ref, '(')
	if open <= 0 || !strings.HasSuffix(ref, ")") {
		return "", "", false
	}
	table = strings.TrimSpace(ref[:open])
	column = strings.TrimSpace(ref[open+1 : len(ref)-1])
	if table == "" || column == "" {
		return "", "", false
	}
	return table, column, true
}

// IsNullable reports the column's nullability, defaulting to true.
func (c ColumnSpec) IsNullable() bool {
	if c.Nullable == nil {
		return true
	}
	return *c.Nullable
}

// NotNull is a convenience for building ColumnSpec.Nullable.
func NotNull() *bool {
	f := false
	return &f
}
