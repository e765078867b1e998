package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger/holders"
	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

// Report summarises a full audit of the ledger.
type Report struct {
	Holders      uint64
	TotalBalance *uint256.Int
	Supply       types.Supply
	Violations   []error
}

func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// Err joins all violations, nil when the ledger is consistent.
func (r Report) Err() error {
	return errors.Join(r.Violations...)
}

// Verify walks every holder and checks balance == received - sent, and that the
// balances add up to minted - burned.
func Verify(ctx context.Context, db kv.RoDB) (Report, error) {
	report := Report{TotalBalance: new(uint256.Int)}

	err := db.View(ctx, func(tx kv.Tx) error {
		var err error

		report.Supply, err = ReadSupply(tx)
		if err != nil {
			return err
		}

		return holders.NewStore().ForEach(tx, func(h *types.HolderAggregate) error {
			report.Holders++

			if err := h.CheckInvariant(); err != nil {
				report.Violations = append(report.Violations, err)
			}

			sum, overflow := new(uint256.Int).AddOverflow(report.TotalBalance, h.Balance)
			if overflow {
				return fmt.Errorf("%w: sum of balances overflows", library.ErrIntegrity)
			}

			report.TotalBalance = sum

			return nil
		})
	})
	if err != nil {
		return report, err
	}

	circulating, err := report.Supply.Circulating()
	if err != nil {
		report.Violations = append(report.Violations, err)

		return report, nil
	}

	if !circulating.Eq(report.TotalBalance) {
		report.Violations = append(report.Violations, fmt.Errorf(
			"%w: balances sum to %s, minted %s - burned %s = %s",
			library.ErrIntegrity, report.TotalBalance.Dec(),
			report.Supply.Minted.Dec(), report.Supply.Burned.Dec(), circulating.Dec(),
		))
	}

	return report, nil
}
