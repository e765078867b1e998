package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// DecodeEventInto decodes a log matching eventName in a into T, a struct whose
// fields carry `abi:"<name>"` tags. matched is false when topic0 or the number
// of indexed topics doesn't fit the event, so overloaded events such as the
// ERC-20 and ERC-721 Transfer can be told apart.
func DecodeEventInto[T any](
	a abi.ABI,
	eventName string,
	lg *gethtypes.Log,
) (out T, matched bool, err error) {
	ev, ok := a.Events[eventName]
	if !ok {
		return out, false, fmt.Errorf("%w: %s", ErrABIUnknownEvent, eventName)
	}

	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return out, false, nil
	}

	idxArgs := indexed(ev.Inputs)
	if len(lg.Topics)-1 != len(idxArgs) {
		return out, false, nil
	}

	nonIdx := ev.Inputs.NonIndexed()

	nonVals, err := nonIdx.Unpack(lg.Data)
	if err != nil {
		return out, true, fmt.Errorf("unpack data for %s: %w", eventName, err)
	}

	values := make(map[string]any, len(ev.Inputs))
	for i, arg := range nonIdx {
		values[strings.ToLower(arg.Name)] = nonVals[i]
	}

	for i, arg := range idxArgs {
		values[strings.ToLower(arg.Name)] = topicValue(arg, lg.Topics[i+1])
	}

	if err := assignByABI(&out, ev.Inputs, values); err != nil {
		return out, true, err
	}

	return out, true, nil
}

func topicValue(arg abi.Argument, topic common.Hash) any {
	switch arg.Type.T {
	case abi.AddressTy:
		// right-aligned in 32 bytes
		return common.BytesToAddress(topic.Bytes()[12:])
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic[common.HashLength-1] != 0
	default:
		// dynamic indexed types are hashed, the original value is gone
		return topic
	}
}
