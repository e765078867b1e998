package transfers

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const (
	Bucket      = "transfers"        // "<txHash>-<logIndex>" -> transfer record
	IndexBucket = "holder_transfers" // address | block | logIndex | txHash -> transfer id

	indexKeyLen = common.AddressLength + 8 + 4 + common.HashLength
)

func Tables() kv.TableCfg {
	return kv.TableCfg{
		Bucket:      {},
		IndexBucket: {},
	}
}

type record struct {
	From            []byte `cbor:"1,keyasint"`
	To              []byte `cbor:"2,keyasint"`
	Amount          []byte `cbor:"3,keyasint"`
	BlockNumber     uint64 `cbor:"4,keyasint"`
	BlockTimestamp  uint64 `cbor:"5,keyasint"`
	TransactionHash []byte `cbor:"6,keyasint"`
	LogIndex        uint32 `cbor:"7,keyasint"`
}

// Log is the append-only transfer log. Records are immutable once appended.
type Log struct{}

func NewLog() *Log {
	return &Log{}
}

func (*Log) Exists(tx kv.Tx, id types.TransferID) (bool, error) {
	value, err := tx.GetOne(Bucket, []byte(id))
	if err != nil {
		return false, fmt.Errorf("%w: lookup transfer %s: %w", library.ErrStoreUnavailable, id, err)
	}

	return len(value) > 0, nil
}

// Append inserts the record once. A second append of the same id fails with
// ErrDuplicateEvent and leaves the stored record untouched.
func (l *Log) Append(tx kv.RwTx, t types.Transfer) error {
	exists, err := l.Exists(tx, t.ID)
	if err != nil {
		return err
	}

	if exists {
		return fmt.Errorf("%w: %s", library.ErrDuplicateEvent, t.ID)
	}

	value, err := encode(t)
	if err != nil {
		return err
	}

	if err := tx.Put(Bucket, []byte(t.ID), value); err != nil {
		return fmt.Errorf("%w: append transfer %s: %w", library.ErrStoreUnavailable, t.ID, err)
	}

	// a self-transfer produces one index entry, both roles share the key
	for _, holder := range []common.Address{t.From, t.To} {
		if types.IsSentinel(holder) {
			continue
		}

		if err := tx.Put(IndexBucket, indexKey(holder, t), []byte(t.ID)); err != nil {
			return fmt.Errorf("%w: index transfer %s: %w", library.ErrStoreUnavailable, t.ID, err)
		}
	}

	return nil
}

func (*Log) Get(tx kv.Tx, id types.TransferID) (types.Transfer, error) {
	value, err := tx.GetOne(Bucket, []byte(id))
	if err != nil {
		return types.Transfer{}, fmt.Errorf("%w: get transfer %s: %w", library.ErrStoreUnavailable, id, err)
	}

	if len(value) == 0 {
		return types.Transfer{}, fmt.Errorf("%w: transfer %s", library.ErrNotFound, id)
	}

	return decode(id, value)
}

// ByHolder returns up to limit transfers touching holder, newest first.
func (l *Log) ByHolder(tx kv.Tx, holder common.Address, limit int) ([]types.Transfer, error) {
	if limit <= 0 {
		return nil, nil
	}

	c, err := tx.Cursor(IndexBucket)
	if err != nil {
		return nil, fmt.Errorf("%w: index cursor: %w", library.ErrStoreUnavailable, err)
	}
	defer c.Close()

	// seek past the holder's range, then walk backwards
	upper := bytes.Repeat([]byte{0xff}, indexKeyLen+1)
	copy(upper, holder[:])

	k, v, err := c.Seek(upper)
	if err != nil {
		return nil, fmt.Errorf("%w: seek index: %w", library.ErrStoreUnavailable, err)
	}

	if k == nil {
		k, v, err = c.Last()
	} else {
		k, v, err = c.Prev()
	}

	out := make([]types.Transfer, 0, limit)

	for ; k != nil && len(out) < limit; k, v, err = c.Prev() {
		if err != nil {
			return nil, fmt.Errorf("%w: iterate index: %w", library.ErrStoreUnavailable, err)
		}

		if len(k) != indexKeyLen || common.BytesToAddress(k[:common.AddressLength]) != holder {
			break
		}

		t, err := l.Get(tx, types.TransferID(v))
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: iterate index: %w", library.ErrStoreUnavailable, err)
	}

	return out, nil
}

func indexKey(holder common.Address, t types.Transfer) []byte {
	key := make([]byte, indexKeyLen)
	copy(key, holder[:])
	binary.BigEndian.PutUint64(key[common.AddressLength:], t.BlockNumber)
	binary.BigEndian.PutUint32(key[common.AddressLength+8:], t.LogIndex)
	copy(key[common.AddressLength+12:], t.TransactionHash[:])

	return key
}

func encode(t types.Transfer) ([]byte, error) {
	amount := t.Amount.Bytes32()

	value, err := cbor.Marshal(record{
		From:            t.From[:],
		To:              t.To[:],
		Amount:          amount[:],
		BlockNumber:     t.BlockNumber,
		BlockTimestamp:  t.BlockTimestamp,
		TransactionHash: t.TransactionHash[:],
		LogIndex:        t.LogIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transfer %s: %w", t.ID, err)
	}

	return value, nil
}

func decode(id types.TransferID, value []byte) (types.Transfer, error) {
	var rec record
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return types.Transfer{}, fmt.Errorf("%w: transfer %s: %w", library.ErrCorruptedRecord, id, err)
	}

	if len(rec.From) != common.AddressLength || len(rec.To) != common.AddressLength ||
		len(rec.Amount) != 32 || len(rec.TransactionHash) != common.HashLength {
		return types.Transfer{}, fmt.Errorf("%w: transfer %s: bad field width", library.ErrCorruptedRecord, id)
	}

	return types.Transfer{
		ID:              id,
		From:            common.BytesToAddress(rec.From),
		To:              common.BytesToAddress(rec.To),
		Amount:          new(uint256.Int).SetBytes(rec.Amount),
		BlockNumber:     rec.BlockNumber,
		BlockTimestamp:  rec.BlockTimestamp,
		TransactionHash: common.BytesToHash(rec.TransactionHash),
		LogIndex:        rec.LogIndex,
	}, nil
}
