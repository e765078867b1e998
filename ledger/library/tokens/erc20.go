package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

//nolint:gochecknoglobals // read only
var (
	// SigTransfer is topic0 of Transfer(address,address,uint256), shared by
	// ERC-20 and ERC-721.
	SigTransfer = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// ERC20TransferABI is Transfer(from indexed, to indexed, value).
	ERC20TransferABI = mustABI(`[
	  { "type":"event","name":"Transfer",
	    "inputs":[
	      {"indexed":true,"name":"from","type":"address"},
	      {"indexed":true,"name":"to","type":"address"},
	      {"indexed":false,"name":"value","type":"uint256"}
	    ]
	  }
	]`)
)

func mustABI(json string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(err)
	}

	return a
}

type erc20Transfer struct {
	From  common.Address `abi:"from"`
	To    common.Address `abi:"to"`
	Value *big.Int       `abi:"value"`
}

// ExtractTransfers returns the ERC-20 Transfer events emitted by token in the
// receipt, in log order. Logs of other contracts and four-topic ERC-721
// transfers are skipped.
func ExtractTransfers(r *gethtypes.Receipt, token common.Address, blockTimestamp uint64) ([]types.TransferEvent, error) {
	if r == nil {
		return nil, ErrNilReceipt
	}

	var blockNumber uint64
	if r.BlockNumber != nil {
		blockNumber = r.BlockNumber.Uint64()
	}

	out := make([]types.TransferEvent, 0, len(r.Logs))

	for _, lg := range r.Logs {
		if lg == nil || lg.Address != token || len(lg.Topics) != 3 || lg.Topics[0] != SigTransfer {
			continue
		}

		ev, matched, err := DecodeEventInto[erc20Transfer](ERC20TransferABI, "Transfer", lg)
		if err != nil {
			return nil, fmt.Errorf("%w: log %d of tx %s: %w", library.ErrInvalidEvent, lg.Index, r.TxHash, err)
		}

		if !matched {
			continue
		}

		amount, overflow := uint256.FromBig(ev.Value)
		if overflow {
			return nil, fmt.Errorf("%w: log %d of tx %s", library.ErrAmountOverflow, lg.Index, r.TxHash)
		}

		out = append(out, types.TransferEvent{
			From:             ev.From,
			To:               ev.To,
			Amount:           amount,
			BlockNumber:      blockNumber,
			BlockTimestamp:   blockTimestamp,
			TransactionHash:  r.TxHash,
			TransactionIndex: uint32(r.TransactionIndex),
			LogIndex:         uint32(lg.Index),
		})
	}

	return out, nil
}
