package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// Frame is a materialized table: column names plus rows aligned to them.
//
// Values are whatever the backend driver produced, with []byte already turned
// into string so callers never see driver-owned buffers.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Index returns the position of column name (case-insensitive), or -1.
func (f *Frame) Index(name string) int {
	if f == nil {
		return -1
	}
	for i, c := range f.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Require returns the positions of names in order, or an error naming the
// first missing column.
func (f *Frame) Require(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx := f.Index(n)
		if idx < 0 {
			return nil, fmt.Errorf("missing column %q", n)
		}
		out[i] = idx
	}
	return out, nil
}

// ScanFrame drains rows into a Frame and closes them.
func ScanFrame(rows *sql.Rows) (*Frame, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	f := &Frame{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		f.Rows = append(f.Rows, vals)
	}
	return f, rows.Err()
}

// ChunkRows splits rows so that no chunk binds more than maxParams
// placeholders (and no more than maxRows rows when maxRows > 0).
func ChunkRows(rows [][]any, width, maxParams, maxRows int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if width > 0 && maxParams > 0 {
		per = maxParams / width
	}
	if maxRows > 0 && per > maxRows {
		per = maxRows
	}
	if per < 1 {
		per = 1
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
