package rpc

import (
	"context"
)

// JSONRPCRequest represents a standard JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      any    `json:"id"`
}

// JSONRPCResponse represents a standard JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Method handles one JSON-RPC method.
type Method func(ctx context.Context, params []any) (any, error)

// Amounts are decimal strings, addresses and hashes lowercase 0x hex.

type HolderView struct {
	Address       string `json:"address"`
	Balance       string `json:"balance"`
	TotalReceived string `json:"totalReceived"`
	TotalSent     string `json:"totalSent"`
	TransferCount uint64 `json:"transferCount"`
}

type TransferView struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	BlockNumber     uint64 `json:"blockNumber"`
	BlockTimestamp  uint64 `json:"blockTimestamp"`
	TransactionHash string `json:"transactionHash"`
	LogIndex        uint32 `json:"logIndex"`
}

type SupplyView struct {
	Minted      string `json:"minted"`
	Burned      string `json:"burned"`
	Circulating string `json:"circulating"`
}

type CursorView struct {
	Applied         bool   `json:"applied"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash,omitempty"`
	LogIndex        uint32 `json:"logIndex"`
}
