package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/0xAtelerix/tokenledger/ledger/library"
)

// SentinelAddress is the all-zero address. As a sender it denotes a mint,
// as a receiver a burn.
//
//nolint:gochecknoglobals // read only
var SentinelAddress = common.Address{}

func IsSentinel(addr common.Address) bool {
	return addr == SentinelAddress
}

type Kind string

const (
	KindMint     Kind = "mint"
	KindBurn     Kind = "burn"
	KindTransfer Kind = "transfer"
	KindSelf     Kind = "self"
	// KindNoop is a transfer from the sentinel to the sentinel.
	KindNoop Kind = "noop"
)

// TransferEvent is a single token Transfer log as delivered by the event source.
// TransactionIndex is only used for canonical ordering, it's not persisted.
type TransferEvent struct {
	From             common.Address `json:"from"`
	To               common.Address `json:"to"`
	Amount           *uint256.Int   `json:"amount"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockTimestamp   uint64         `json:"blockTimestamp"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex uint32         `json:"transactionIndex,omitempty"`
	LogIndex         uint32         `json:"logIndex"`
}

func (e TransferEvent) ID() TransferID {
	return NewTransferID(e.TransactionHash, e.LogIndex)
}

func (e TransferEvent) Kind() Kind {
	switch {
	case IsSentinel(e.From) && IsSentinel(e.To):
		return KindNoop
	case IsSentinel(e.From):
		return KindMint
	case IsSentinel(e.To):
		return KindBurn
	case e.From == e.To:
		return KindSelf
	default:
		return KindTransfer
	}
}

func (e TransferEvent) Validate() error {
	if e.Amount == nil {
		return fmt.Errorf("%w: %s: nil amount", library.ErrInvalidEvent, e.ID())
	}

	return nil
}

// Before reports whether e precedes other in canonical order
// (blockNumber, transactionIndex, logIndex).
func (e TransferEvent) Before(other TransferEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}

	if e.TransactionIndex != other.TransactionIndex {
		return e.TransactionIndex < other.TransactionIndex
	}

	return e.LogIndex < other.LogIndex
}

// Transfer is the immutable record written once per event.
type Transfer struct {
	ID              TransferID
	From            common.Address
	To              common.Address
	Amount          *uint256.Int
	BlockNumber     uint64
	BlockTimestamp  uint64
	TransactionHash common.Hash
	LogIndex        uint32
}

func NewTransfer(e TransferEvent) Transfer {
	return Transfer{
		ID:              e.ID(),
		From:            e.From,
		To:              e.To,
		Amount:          new(uint256.Int).Set(e.Amount),
		BlockNumber:     e.BlockNumber,
		BlockTimestamp:  e.BlockTimestamp,
		TransactionHash: e.TransactionHash,
		LogIndex:        e.LogIndex,
	}
}

// TransferID is "<transactionHash>-<logIndex>", unique even within one transaction.
type TransferID string

func NewTransferID(txHash common.Hash, logIndex uint32) TransferID {
	return TransferID(txHash.Hex() + "-" + strconv.FormatUint(uint64(logIndex), 10))
}

func ParseTransferID(s string) (common.Hash, uint32, error) {
	hashPart, indexPart, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return common.Hash{}, 0, fmt.Errorf("%w: transfer id %q", library.ErrMalformedKey, s)
	}

	hashPart = strings.TrimPrefix(strings.ToLower(hashPart), "0x")
	if len(hashPart) != 2*common.HashLength {
		return common.Hash{}, 0, fmt.Errorf("%w: transfer id %q: bad hash", library.ErrMalformedKey, s)
	}

	logIndex, err := strconv.ParseUint(indexPart, 10, 32)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("%w: transfer id %q: %w", library.ErrMalformedKey, s, err)
	}

	return common.HexToHash(hashPart), uint32(logIndex), nil
}

func (id TransferID) String() string {
	return string(id)
}

// HolderAggregate is the running per-address summary.
type HolderAggregate struct {
	Address       common.Address
	Balance       *uint256.Int
	TotalReceived *uint256.Int
	TotalSent     *uint256.Int
	TransferCount uint64
}

// NewHolderAggregate returns a fully zeroed aggregate.
func NewHolderAggregate(addr common.Address) *HolderAggregate {
	return &HolderAggregate{
		Address:       addr,
		Balance:       new(uint256.Int),
		TotalReceived: new(uint256.Int),
		TotalSent:     new(uint256.Int),
	}
}

func (h *HolderAggregate) Clone() *HolderAggregate {
	return &HolderAggregate{
		Address:       h.Address,
		Balance:       new(uint256.Int).Set(h.Balance),
		TotalReceived: new(uint256.Int).Set(h.TotalReceived),
		TotalSent:     new(uint256.Int).Set(h.TotalSent),
		TransferCount: h.TransferCount,
	}
}

// CheckInvariant verifies balance == totalReceived - totalSent.
func (h *HolderAggregate) CheckInvariant() error {
	if h.TotalReceived.Lt(h.TotalSent) {
		return fmt.Errorf("%w: holder %s sent %s more than received %s",
			library.ErrIntegrity, HolderKey(h.Address), h.TotalSent.Dec(), h.TotalReceived.Dec())
	}

	expected := new(uint256.Int).Sub(h.TotalReceived, h.TotalSent)
	if !expected.Eq(h.Balance) {
		return fmt.Errorf("%w: holder %s balance %s != received %s - sent %s",
			library.ErrIntegrity, HolderKey(h.Address),
			h.Balance.Dec(), h.TotalReceived.Dec(), h.TotalSent.Dec())
	}

	return nil
}

// HolderKey is the persisted key of an aggregate: lowercase 0x-prefixed hex.
func HolderKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: address %q", library.ErrMalformedKey, s)
	}

	return common.HexToAddress(s), nil
}

// Supply tracks cumulative mint and burn volume.
type Supply struct {
	Minted *uint256.Int
	Burned *uint256.Int
}

func NewSupply() Supply {
	return Supply{Minted: new(uint256.Int), Burned: new(uint256.Int)}
}

// Circulating returns minted - burned. Burned never exceeds minted while the
// ledger is consistent.
func (s Supply) Circulating() (*uint256.Int, error) {
	if s.Minted.Lt(s.Burned) {
		return nil, fmt.Errorf("%w: burned %s exceeds minted %s",
			library.ErrIntegrity, s.Burned.Dec(), s.Minted.Dec())
	}

	return new(uint256.Int).Sub(s.Minted, s.Burned), nil
}

// Cursor is the position of the last applied event.
type Cursor struct {
	BlockNumber     uint64
	TransactionHash common.Hash
	LogIndex        uint32
}
