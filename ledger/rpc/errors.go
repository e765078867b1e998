package rpc

import "errors"

var (
	ErrMethodNotFound          = errors.New("method not found")
	ErrWrongParamCount         = errors.New("wrong number of parameters")
	ErrParameterMustBeString   = errors.New("parameter must be a string")
	ErrInvalidAddress          = errors.New("invalid address")
	ErrInvalidTransferID       = errors.New("invalid transfer id")
	ErrInvalidLimit            = errors.New("limit must be a positive integer")
	ErrHolderNotFound          = errors.New("holder not found")
	ErrTransferNotFound        = errors.New("transfer not found")
	ErrFailedToReadLedger      = errors.New("failed to read ledger")
	ErrMethodAlreadyRegistered = errors.New("method already registered")
)
