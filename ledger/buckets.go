package ledger

import (
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger/holders"
	"github.com/0xAtelerix/tokenledger/ledger/transfers"
)

const (
	ConfigBucket = "ledger_config" // supply, cursor, event stream position

	SupplyKey         = "supply"
	CursorKey         = "cursor"
	StreamPositionKey = "stream_pos"
)

func DefaultTables() kv.TableCfg {
	return MergeTables(
		kv.TableCfg{ConfigBucket: {}},
		holders.Tables(),
		transfers.Tables(),
	)
}

func MergeTables(bucketSets ...kv.TableCfg) kv.TableCfg {
	final := kv.TableCfg{}
	for _, buckets := range bucketSets {
		for i := range buckets {
			final[i] = buckets[i]
		}
	}

	return final
}
