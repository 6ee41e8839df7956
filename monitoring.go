package objstore

import (
	"context"
	"fmt"
)

type TableStats struct {
	Rows      int
	IndexRows int

	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

func (ts *TableStats) TotalSize() int64 {
	return ts.DataSize + ts.IndexSize
}

func (ts *TableStats) TotalAlloc() int64 {
	return ts.DataAlloc + ts.IndexAlloc
}

// TableStats reports the size of a store. The in-memory backend only counts rows.
func (db *DB) TableStats(ctx context.Context, store string) (TableStats, error) {
	if err := db.usable(); err != nil {
		return TableStats{}, err
	}
	return call(ctx, db.engine.loop, func() (TableStats, error) {
		if err := db.usable(); err != nil {
			return TableStats{}, err
		}
		ts := db.storeState(store)
		if ts == nil {
			return TableStats{}, engineErrf("stats", store, "", nil, ErrNotFound, "")
		}
		stx, err := db.be.st.BeginTx(false)
		if err != nil {
			return TableStats{}, err
		}
		defer stx.Rollback()

		bname := storeBucketName(store)
		data := stx.Bucket(bname, dataBucket)
		if data == nil {
			return TableStats{}, fmt.Errorf("stats %s: %w: missing data bucket", store, ErrNotFound)
		}
		bs := data.Stats()
		result := TableStats{
			Rows:      bs.KeyN,
			DataSize:  bs.LeafInuse,
			DataAlloc: bs.TotalAlloc(),
		}
		for _, iname := range indexBuckets(ts) {
			ib := stx.Bucket(bname, iname)
			if ib == nil {
				continue
			}
			bs = ib.Stats()
			result.IndexRows += bs.KeyN
			result.IndexSize += bs.LeafInuse
			result.IndexAlloc += bs.TotalAlloc()
		}
		return result, nil
	})
}

// Size returns the database size in bytes, or 0 for in-memory databases.
func (db *DB) Size(ctx context.Context) (int64, error) {
	if err := db.usable(); err != nil {
		return 0, err
	}
	return call(ctx, db.engine.loop, func() (int64, error) {
		stx, err := db.be.st.BeginTx(false)
		if err != nil {
			return 0, err
		}
		defer stx.Rollback()
		return stx.Size(), nil
	})
}
