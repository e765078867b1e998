package tests

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xAtelerix/tokenledger/ledger/types"
)

func Addr(i byte) common.Address {
	var a common.Address

	a[19] = i

	return a
}

func AddrTopic(a common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], a[:]) // ABI-encoded indexed address (left-padded to 32)

	return h
}

func Hash(i uint64) common.Hash {
	return common.BigToHash(new(uint256.Int).SetUint64(i).ToBig())
}

// Event builds a transfer event whose transaction hash is derived from block and
// log index, so every (block, logIndex) pair is a distinct transfer.
func Event(from, to common.Address, amount uint64, block uint64, logIndex uint32) types.TransferEvent {
	return types.TransferEvent{
		From:            from,
		To:              to,
		Amount:          uint256.NewInt(amount),
		BlockNumber:     block,
		BlockTimestamp:  1_700_000_000 + block*12,
		TransactionHash: Hash(block<<32 | uint64(logIndex)),
		LogIndex:        logIndex,
	}
}
