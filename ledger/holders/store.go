package holders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const Bucket = "holders" // lowercase hex address -> holder record

func Tables() kv.TableCfg {
	return kv.TableCfg{
		Bucket: {},
	}
}

// record is the persisted form of an aggregate. Amounts are 32-byte big-endian.
type record struct {
	Balance       []byte `cbor:"1,keyasint"`
	TotalReceived []byte `cbor:"2,keyasint"`
	TotalSent     []byte `cbor:"3,keyasint"`
	TransferCount uint64 `cbor:"4,keyasint"`
}

// Store keeps holder aggregates. All methods run inside the caller's transaction,
// so a holder write commits or rolls back together with everything else in it.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// GetOrCreate returns the stored aggregate or a zeroed one. Nothing is written
// until Save.
func (s *Store) GetOrCreate(tx kv.Tx, addr common.Address) (*types.HolderAggregate, error) {
	h, ok, err := s.Get(tx, addr)
	if err != nil {
		return nil, err
	}

	if !ok {
		return types.NewHolderAggregate(addr), nil
	}

	return h, nil
}

func (*Store) Get(tx kv.Tx, addr common.Address) (*types.HolderAggregate, bool, error) {
	value, err := tx.GetOne(Bucket, key(addr))
	if err != nil {
		return nil, false, fmt.Errorf("%w: get holder %s: %w", library.ErrStoreUnavailable, types.HolderKey(addr), err)
	}

	if len(value) == 0 {
		return nil, false, nil
	}

	h, err := decode(addr, value)
	if err != nil {
		return nil, false, err
	}

	return h, true, nil
}

// Save overwrites the whole record for the holder's address.
func (*Store) Save(tx kv.RwTx, h *types.HolderAggregate) error {
	value, err := encode(h)
	if err != nil {
		return err
	}

	if err := tx.Put(Bucket, key(h.Address), value); err != nil {
		return fmt.Errorf("%w: save holder %s: %w", library.ErrStoreUnavailable, types.HolderKey(h.Address), err)
	}

	return nil
}

// ForEach walks holders in key order until fn returns an error.
func (*Store) ForEach(tx kv.Tx, fn func(h *types.HolderAggregate) error) error {
	c, err := tx.Cursor(Bucket)
	if err != nil {
		return fmt.Errorf("%w: holders cursor: %w", library.ErrStoreUnavailable, err)
	}
	defer c.Close()

	for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
		if err != nil {
			return fmt.Errorf("%w: iterate holders: %w", library.ErrStoreUnavailable, err)
		}

		addr, err := types.ParseAddress(string(k))
		if err != nil {
			return fmt.Errorf("%w: holder key %q", library.ErrCorruptedRecord, k)
		}

		h, err := decode(addr, v)
		if err != nil {
			return err
		}

		if err := fn(h); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) Count(tx kv.Tx) (uint64, error) {
	var n uint64

	err := s.ForEach(tx, func(*types.HolderAggregate) error {
		n++

		return nil
	})

	return n, err
}

func key(addr common.Address) []byte {
	return []byte(types.HolderKey(addr))
}

func encode(h *types.HolderAggregate) ([]byte, error) {
	balance := h.Balance.Bytes32()
	received := h.TotalReceived.Bytes32()
	sent := h.TotalSent.Bytes32()

	value, err := cbor.Marshal(record{
		Balance:       balance[:],
		TotalReceived: received[:],
		TotalSent:     sent[:],
		TransferCount: h.TransferCount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal holder %s: %w", types.HolderKey(h.Address), err)
	}

	return value, nil
}

func decode(addr common.Address, value []byte) (*types.HolderAggregate, error) {
	var rec record
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("%w: holder %s: %w", library.ErrCorruptedRecord, types.HolderKey(addr), err)
	}

	if len(rec.Balance) != 32 || len(rec.TotalReceived) != 32 || len(rec.TotalSent) != 32 {
		return nil, fmt.Errorf("%w: holder %s: bad amount width", library.ErrCorruptedRecord, types.HolderKey(addr))
	}

	return &types.HolderAggregate{
		Address:       addr,
		Balance:       new(uint256.Int).SetBytes(rec.Balance),
		TotalReceived: new(uint256.Int).SetBytes(rec.TotalReceived),
		TotalSent:     new(uint256.Int).SetBytes(rec.TotalSent),
		TransferCount: rec.TransferCount,
	}, nil
}
