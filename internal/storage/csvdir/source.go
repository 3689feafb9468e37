// Package csvdir registers the "csv" source: a directory of one CSV export
// per table (<dir>/<table>.csv), as produced by a dump of the transactional
// store.
//
// Options:
//   - comma:       field delimiter (default ",")
//   - encoding:    WHATWG encoding label of the files (default "utf-8"), e.g.
//     "windows-1252", "iso-8859-1", "shift_jis"
//   - lazy_quotes: "true" to tolerate bare quotes in unquoted fields
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"salesdw/internal/storage"
	"salesdw/internal/transformer/builtin"
)

func init() {
	storage.RegisterSource("csv", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		return Open(cfg)
	})
}

// Source reads whole tables from CSV files.
type Source struct {
	dir   string
	comma rune
	lazy  bool
	enc   encoding.Encoding // nil = UTF-8
}

// Open validates the directory and options.
func Open(cfg storage.Config) (*Source, error) {
	dir := strings.TrimSpace(cfg.DSN)
	if dir == "" {
		return nil, fmt.Errorf("csv: empty dsn (want a directory)")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, &storage.TableError{Op: "connect", Table: dir, Kind: storage.KindConnection, Err: err}
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("csv: %s is not a directory", dir)
	}

	s := &Source{dir: dir, comma: ','}

	if c := cfg.Option("comma", ""); c != "" {
		if c == `\t` {
			c = "\t"
		}
		r, size := utf8.DecodeRuneInString(c)
		if size != len(c) || r == utf8.RuneError {
			return nil, fmt.Errorf("csv: comma must be a single character, got %q", c)
		}
		s.comma = r
	}
	s.lazy = strings.EqualFold(cfg.Option("lazy_quotes", "false"), "true")

	label := strings.ToLower(cfg.Option("encoding", "utf-8"))
	if label != "utf-8" && label != "utf8" {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, fmt.Errorf("csv: unknown encoding %q: %w", label, err)
		}
		s.enc = enc
	}
	return s, nil
}

// Close is a no-op; files are opened and closed per ReadTable.
func (s *Source) Close() error { return nil }

// ReadTable reads <dir>/<table>.csv. The first record is the header; names
// are trimmed, BOM-stripped, lowercased, and spaces become underscores.
// Empty cells read as nil.
func (s *Source) ReadTable(ctx context.Context, table string) (*storage.Frame, error) {
	path := filepath.Join(s.dir, table+".csv")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.TableNotFound("read", table)
		}
		return nil, storage.NewTableError("read", table, err, nil)
	}
	defer f.Close()

	var r io.Reader = f
	if s.enc != nil {
		r = transform.NewReader(f, s.enc.NewDecoder())
	}

	frame, err := s.read(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("csv: read %s: %w", path, err)
	}
	return frame, nil
}

func (s *Source) read(ctx context.Context, r io.Reader) (*storage.Frame, error) {
	cr := csv.NewReader(r)
	cr.Comma = s.comma
	cr.LazyQuotes = s.lazy
	cr.FieldsPerRecord = -1

	hdr, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	f := &storage.Frame{Columns: make([]string, len(hdr))}
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if builtin.HasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		f.Columns[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		line++
		if err == io.EOF {
			return f, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]any, len(f.Columns))
		for i := range f.Columns {
			if i >= len(rec) {
				continue
			}
			v := rec[i]
			if builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row[i] = v
			}
		}
		f.Rows = append(f.Rows, row)
	}
}

var _ storage.Source = (*Source)(nil)
