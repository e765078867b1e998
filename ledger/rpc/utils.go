package rpc

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"

	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
	jsonRPCVersion        = "2.0"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeNotFound       = -32004
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, code int, message string, id any) {
	writeJSON(w, http.StatusOK, JSONRPCResponse{
		JSONRPC: jsonRPCVersion,
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	})
}

// errorCode maps a method error onto a JSON-RPC error code.
func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrMethodNotFound):
		return codeMethodNotFound
	case errors.Is(err, ErrWrongParamCount),
		errors.Is(err, ErrParameterMustBeString),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrInvalidTransferID),
		errors.Is(err, ErrInvalidLimit):
		return codeInvalidParams
	case errors.Is(err, ErrHolderNotFound), errors.Is(err, ErrTransferNotFound):
		return codeNotFound
	default:
		return codeInternalError
	}
}

func stringParam(params []any, i int) (string, error) {
	s, ok := params[i].(string)
	if !ok {
		return "", ErrParameterMustBeString
	}

	return s, nil
}

func parseAddress(params []any, i int) (common.Address, error) {
	s, err := stringParam(params, i)
	if err != nil {
		return common.Address{}, err
	}

	addr, err := types.ParseAddress(s)
	if err != nil {
		return common.Address{}, errors.Join(ErrInvalidAddress, err)
	}

	return addr, nil
}

// parseLimit accepts JSON numbers, decimal strings and 0x-prefixed hex strings.
func parseLimit(v any) (int, error) {
	var n uint64

	switch value := v.(type) {
	case float64:
		if value < 1 || math.Trunc(value) != value || value > math.MaxInt32 {
			return 0, ErrInvalidLimit
		}

		n = uint64(value)
	case string:
		s := strings.TrimSpace(value)
		base := 10

		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s = s[2:]
			base = 16
		}

		parsed, err := strconv.ParseUint(s, base, 31)
		if err != nil || parsed == 0 {
			return 0, ErrInvalidLimit
		}

		n = parsed
	default:
		return 0, ErrInvalidLimit
	}

	return int(n), nil
}
