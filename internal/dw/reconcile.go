package dw

import (
	"context"
	"fmt"

	"salesdw/internal/storage"
)

// Candidate is one prospective dimension row derived from the current
// extraction. Key is only meaningful for id-keyed dimensions, where the source
// identifier doubles as surrogate key.
type Candidate struct {
	NaturalKey string
	Key        int64
	Row        []any // attribute columns, surrogate key excluded
}

// Snapshot is the natural key to surrogate key mapping persisted in a
// dimension at the start of reconciliation.
type Snapshot struct {
	Keys   map[string]int64
	MaxKey int64
}

// Assigned is a candidate that received a surrogate key.
type Assigned struct {
	Key int64
	Row []any
}

// Reconciliation is the result of comparing a candidate batch with a
// snapshot.
type Reconciliation struct {
	// New holds the delta in assignment order.
	New []Assigned
	// Mapping is the union of the snapshot and the new assignments.
	Mapping map[string]int64
}

// Reconcile dedupes candidates by natural key, first occurrence winning,
// drops those already in the snapshot and assigns MaxKey+1, MaxKey+2, ... to
// the rest in candidate order. It does no I/O and never consumes keys for an
// empty delta.
func Reconcile(cands []Candidate, snap Snapshot) Reconciliation {
	mapping := make(map[string]int64, len(snap.Keys)+len(cands))
	for k, v := range snap.Keys {
		mapping[k] = v
	}

	next := snap.MaxKey
	var fresh []Assigned
	for _, c := range cands {
		if _, ok := mapping[c.NaturalKey]; ok {
			continue
		}
		next++
		mapping[c.NaturalKey] = next
		fresh = append(fresh, Assigned{Key: next, Row: c.Row})
	}
	return Reconciliation{New: fresh, Mapping: mapping}
}

// ReconcileIdentity partitions id-keyed candidates the same way Reconcile
// does, except the surrogate key is the candidate's own Key.
func ReconcileIdentity(cands []Candidate, snap Snapshot) Reconciliation {
	mapping := make(map[string]int64, len(snap.Keys)+len(cands))
	for k, v := range snap.Keys {
		mapping[k] = v
	}

	var fresh []Assigned
	for _, c := range cands {
		if _, ok := mapping[c.NaturalKey]; ok {
			continue
		}
		mapping[c.NaturalKey] = c.Key
		fresh = append(fresh, Assigned{Key: c.Key, Row: c.Row})
	}
	return Reconciliation{New: fresh, Mapping: mapping}
}

// SnapshotReader loads dimension snapshots from the warehouse.
type SnapshotReader struct {
	Warehouse storage.Warehouse
}

// TimeSnapshot reads every persisted time row. A missing table is an empty
// snapshot. When one natural key appears under several surrogate keys the
// smallest wins.
func (r SnapshotReader) TimeSnapshot(ctx context.Context, table string) (Snapshot, error) {
	cols := append([]string{colTimeKey}, timeColumns...)
	f, err := r.Warehouse.ReadColumns(ctx, table, cols)
	if err != nil {
		if storage.IsTableNotFound(err) {
			return Snapshot{Keys: map[string]int64{}}, nil
		}
		return Snapshot{}, err
	}

	snap := Snapshot{Keys: make(map[string]int64, f.Len())}
	for i, row := range f.Rows {
		key, err := storage.KeyInt64(row[0])
		if err != nil {
			return Snapshot{}, fmt.Errorf("dw: %s row %d %s: %w", table, i+1, colTimeKey, err)
		}
		attrs, err := decodeTimeRow(row[1:])
		if err != nil {
			return Snapshot{}, fmt.Errorf("dw: %s row %d: %w", table, i+1, err)
		}
		snap.add(attrs.NaturalKey(), key)
	}
	return snap, nil
}

// IdentitySnapshot reads the key column of an id-keyed dimension.
func (r SnapshotReader) IdentitySnapshot(ctx context.Context, table, keyCol string) (Snapshot, error) {
	f, err := r.Warehouse.ReadColumns(ctx, table, []string{keyCol})
	if err != nil {
		if storage.IsTableNotFound(err) {
			return Snapshot{Keys: map[string]int64{}}, nil
		}
		return Snapshot{}, err
	}

	snap := Snapshot{Keys: make(map[string]int64, f.Len())}
	for i, row := range f.Rows {
		key, err := storage.KeyInt64(row[0])
		if err != nil {
			return Snapshot{}, fmt.Errorf("dw: %s row %d %s: %w", table, i+1, keyCol, err)
		}
		snap.add(identityKey(key), key)
	}
	return snap, nil
}

func (s *Snapshot) add(nk string, key int64) {
	if cur, ok := s.Keys[nk]; !ok || key < cur {
		s.Keys[nk] = key
	}
	if key > s.MaxKey {
		s.MaxKey = key
	}
}

// identityKey is the natural key string of an id-keyed dimension row.
func identityKey(id int64) string {
	return storage.NormalizeKey(id)
}
