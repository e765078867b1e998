package tests

import (
	"testing"

	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/erigon-lib/kv/memdb"
	"github.com/stretchr/testify/require"
)

// TestDB opens an in-memory MDBX database with the given tables created.
func TestDB(t testing.TB, tables kv.TableCfg) (kv.RwDB, func()) {
	t.Helper()

	db := memdb.NewTestDB(t)

	err := db.Update(t.Context(), func(tx kv.RwTx) error {
		for bucket := range tables {
			if txErr := tx.CreateBucket(bucket); txErr != nil {
				return txErr
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
	}

	require.NoError(t, err)

	return db, db.Close
}
