package library

type LedgerError string

func (e LedgerError) Error() string {
	return string(e)
}

const (
	// ErrDuplicateEvent marks a transfer id that is already recorded.
	// Redelivery is expected, the engine resolves it as a no-op.
	ErrDuplicateEvent = LedgerError("duplicate event")
	// ErrIntegrity is fatal for the stream: balance underflow or accumulator
	// overflow means the ordering upstream is broken or data is corrupted.
	ErrIntegrity = LedgerError("ledger integrity violation")
	// ErrStoreUnavailable wraps persistence failures. Safe to retry.
	ErrStoreUnavailable = LedgerError("store unavailable")

	ErrInvalidEvent    = LedgerError("invalid transfer event")
	ErrCorruptedRecord = LedgerError("corrupted record")
	ErrNotFound        = LedgerError("not found")

	ErrMalformedKey     = LedgerError("malformed key")
	ErrAmountOverflow   = LedgerError("amount does not fit in uint256")
	ErrNilDB            = LedgerError("ledger db is nil")
	ErrInvalidConfig    = LedgerError("invalid config")
	ErrUnsupportedInput = LedgerError("unsupported events format")
)
