package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

type supplyRecord struct {
	Minted []byte `cbor:"1,keyasint"`
	Burned []byte `cbor:"2,keyasint"`
}

// ReadSupply returns cumulative minted and burned amounts, zero on a fresh ledger.
func ReadSupply(tx kv.Tx) (types.Supply, error) {
	value, err := tx.GetOne(ConfigBucket, []byte(SupplyKey))
	if err != nil {
		return types.Supply{}, fmt.Errorf("%w: read supply: %w", library.ErrStoreUnavailable, err)
	}

	if len(value) == 0 {
		return types.NewSupply(), nil
	}

	var rec supplyRecord
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return types.Supply{}, fmt.Errorf("%w: supply: %w", library.ErrCorruptedRecord, err)
	}

	if len(rec.Minted) != 32 || len(rec.Burned) != 32 {
		return types.Supply{}, fmt.Errorf("%w: supply: bad amount width", library.ErrCorruptedRecord)
	}

	return types.Supply{
		Minted: new(uint256.Int).SetBytes(rec.Minted),
		Burned: new(uint256.Int).SetBytes(rec.Burned),
	}, nil
}

func writeSupply(tx kv.RwTx, s types.Supply) error {
	minted := s.Minted.Bytes32()
	burned := s.Burned.Bytes32()

	value, err := cbor.Marshal(supplyRecord{Minted: minted[:], Burned: burned[:]})
	if err != nil {
		return fmt.Errorf("marshal supply: %w", err)
	}

	if err := tx.Put(ConfigBucket, []byte(SupplyKey), value); err != nil {
		return fmt.Errorf("%w: write supply: %w", library.ErrStoreUnavailable, err)
	}

	return nil
}

// cursor value: blockNumber (8) | logIndex (4) | txHash (32)
const cursorLen = 8 + 4 + common.HashLength

// ReadCursor returns the position of the last applied event. ok is false on a
// fresh ledger.
func ReadCursor(tx kv.Tx) (types.Cursor, bool, error) {
	value, err := tx.GetOne(ConfigBucket, []byte(CursorKey))
	if err != nil {
		return types.Cursor{}, false, fmt.Errorf("%w: read cursor: %w", library.ErrStoreUnavailable, err)
	}

	if len(value) == 0 {
		return types.Cursor{}, false, nil
	}

	if len(value) != cursorLen {
		return types.Cursor{}, false, fmt.Errorf("%w: cursor length %d", library.ErrCorruptedRecord, len(value))
	}

	return types.Cursor{
		BlockNumber:     binary.BigEndian.Uint64(value[:8]),
		LogIndex:        binary.BigEndian.Uint32(value[8:12]),
		TransactionHash: common.BytesToHash(value[12:]),
	}, true, nil
}

func writeCursor(tx kv.RwTx, c types.Cursor) error {
	value := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(value[:8], c.BlockNumber)
	binary.BigEndian.PutUint32(value[8:12], c.LogIndex)
	copy(value[12:], c.TransactionHash[:])

	if err := tx.Put(ConfigBucket, []byte(CursorKey), value); err != nil {
		return fmt.Errorf("%w: write cursor: %w", library.ErrStoreUnavailable, err)
	}

	return nil
}

// ReadStreamPosition returns the event source offset to resume from.
func ReadStreamPosition(tx kv.Tx) (int64, error) {
	value, err := tx.GetOne(ConfigBucket, []byte(StreamPositionKey))
	if err != nil {
		return 0, fmt.Errorf("%w: read stream position: %w", library.ErrStoreUnavailable, err)
	}

	if len(value) != 8 {
		return 0, nil // default to beginning
	}

	return int64(binary.BigEndian.Uint64(value)), nil
}

func WriteStreamPosition(tx kv.RwTx, pos int64) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(pos))

	if err := tx.Put(ConfigBucket, []byte(StreamPositionKey), value); err != nil {
		return fmt.Errorf("%w: write stream position: %w", library.ErrStoreUnavailable, err)
	}

	return nil
}
