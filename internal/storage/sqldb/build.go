package sqldb

import (
	"fmt"
	"strings"

	"salesdw/internal/storage"
)

// TableIdent quotes a possibly schema-qualified name part by part.
//
// Example (mssql):
//
//	"dbo.fact_sales" -> [dbo].[fact_sales]
func TableIdent(d Dialect, name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = d.QuoteIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func joinIdentList(d Dialect, columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, d.QuoteIdent(c))
	}
	return strings.Join(out, ", ")
}

// BuildSelectSQL builds "SELECT <cols> FROM <table>"; empty columns selects *.
func BuildSelectSQL(d Dialect, table string, columns []string) string {
	sel := "*"
	if len(columns) > 0 {
		sel = joinIdentList(d, columns)
	}
	return fmt.Sprintf("SELECT %s FROM %s", sel, TableIdent(d, table))
}

// BuildCreateSQL generates the CREATE TABLE for spec: the primary key first,
// then the declared columns, UNIQUE constraints, and one table-level FOREIGN
// KEY per column that carries a reference.
//
// Foreign keys are emitted at table level because MySQL parses and then
// ignores inline REFERENCES clauses.
func BuildCreateSQL(d Dialect, t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	pkType, err := d.ColumnType(t.PrimaryKey.Type)
	if err != nil {
		return "", fmt.Errorf("%s primary key %s: %w", t.Name, t.PrimaryKey.Name, err)
	}

	parts := []string{fmt.Sprintf("%s %s NOT NULL PRIMARY KEY", d.QuoteIdent(t.PrimaryKey.Name), pkType)}

	var fks []string
	for _, c := range t.Columns {
		typ, err := d.ColumnType(c.Type)
		if err != nil {
			return "", fmt.Errorf("%s column %s: %w", t.Name, c.Name, err)
		}
		col := d.QuoteIdent(c.Name) + " " + typ
		if !c.IsNullable() {
			col += " NOT NULL"
		}
		parts = append(parts, col)

		if strings.TrimSpace(c.References) == "" {
			continue
		}
		refTable, refCol, ok := storage.SplitReference(c.References)
		if !ok {
			return "", fmt.Errorf("%s column %s: invalid reference %q (want table(column))", t.Name, c.Name, c.References)
		}
		fks = append(fks, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.QuoteIdent(c.Name), TableIdent(d, refTable), d.QuoteIdent(refCol)))
	}

	for _, con := range t.Constraints {
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", joinIdentList(d, con.Columns)))
	}
	parts = append(parts, fks...)

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", TableIdent(d, t.Name), strings.Join(parts, ",\n  ")), nil
}

// BuildInsertSQL builds a single multi-row INSERT ... VALUES for rows and
// returns the flattened, bound arguments.
func BuildInsertSQL(d Dialect, table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(TableIdent(d, table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(d, columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			v := row[j]
			if d.BindValue != nil {
				v = d.BindValue(v)
			}
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// QuestionPlaceholder is the "?" marker used by SQLite and MySQL.
func QuestionPlaceholder(int) string { return "?" }
