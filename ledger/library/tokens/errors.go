package tokens

import (
	"github.com/0xAtelerix/tokenledger/ledger/library"
)

const (
	ErrNonNilRequired        = library.LedgerError("out must be non-nil pointer to struct")
	ErrStructRequired        = library.LedgerError("out must point to a struct")
	ErrABIPlanTypeMismatched = library.LedgerError("type mismatch")
	ErrABIUnknownEvent       = library.LedgerError("unknown event")
	ErrNilReceipt            = library.LedgerError("nil receipt")
)
