package ledger

import (
	"context"
	"fmt"
	"os"

	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/erigon-lib/kv/mdbx"
	mdbxlog "github.com/ledgerwatch/log/v3"
	"github.com/rs/zerolog/log"
)

// OpenDB opens (creating when needed) the ledger database at path with every
// ledger table.
func OpenDB(ctx context.Context, path string) (kv.RwDB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger db directory: %w", err)
	}

	db, err := mdbx.NewMDBX(mdbxlog.New()).
		Path(path).
		WithTableCfg(func(_ kv.TableCfg) kv.TableCfg {
			return DefaultTables()
		}).
		Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db: %w", err)
	}

	log.Ctx(ctx).Info().Str("path", path).Msg("Ledger db opened")

	return db, nil
}

// LoadStreamPosition returns the offset the event source resumes from.
func LoadStreamPosition(ctx context.Context, db kv.RoDB) (int64, error) {
	var pos int64

	err := db.View(ctx, func(tx kv.Tx) error {
		var err error

		pos, err = ReadStreamPosition(tx)

		return err
	})

	return pos, err
}
