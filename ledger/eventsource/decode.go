package eventsource

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/goccy/go-json"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/library/tokens"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const (
	FormatEvents   = "events"
	FormatReceipts = "receipts"
)

// DecodeEventLine decodes one JSON TransferEvent.
func DecodeEventLine(line []byte) ([]types.TransferEvent, error) {
	var ev types.TransferEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, err
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}

	return []types.TransferEvent{ev}, nil
}

// ReceiptLine is one line of a receipts file: a transaction receipt and the
// timestamp of its block, which receipts don't carry.
type ReceiptLine struct {
	BlockTimestamp uint64             `json:"blockTimestamp"`
	Receipt        *gethtypes.Receipt `json:"receipt"`
}

// ReceiptLineDecoder extracts the token's Transfer events from receipt lines.
// A receipt without matching logs yields no events.
func ReceiptLineDecoder(token common.Address) LineDecoder {
	return func(line []byte) ([]types.TransferEvent, error) {
		var rl ReceiptLine
		if err := json.Unmarshal(line, &rl); err != nil {
			return nil, err
		}

		return tokens.ExtractTransfers(rl.Receipt, token, rl.BlockTimestamp)
	}
}

// DecoderFor picks the line decoder for a configured events format.
func DecoderFor(format string, token common.Address) (LineDecoder, error) {
	switch format {
	case FormatEvents:
		return DecodeEventLine, nil
	case FormatReceipts:
		if types.IsSentinel(token) {
			return nil, fmt.Errorf("%w: receipts format needs a token contract", library.ErrInvalidConfig)
		}

		return ReceiptLineDecoder(token), nil
	default:
		return nil, fmt.Errorf("%w: %q", library.ErrUnsupportedInput, format)
	}
}
