package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/rs/zerolog/log"

	"github.com/0xAtelerix/tokenledger/ledger/holders"
	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/transfers"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

type HolderStore interface {
	GetOrCreate(tx kv.Tx, addr common.Address) (*types.HolderAggregate, error)
	Save(tx kv.RwTx, h *types.HolderAggregate) error
}

type TransferLog interface {
	Exists(tx kv.Tx, id types.TransferID) (bool, error)
	Append(tx kv.RwTx, t types.Transfer) error
}

type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeApplied
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return outcomeApplied
	case OutcomeDuplicate:
		return outcomeDuplicate
	default:
		return outcomeRejected
	}
}

// Engine derives holder aggregates and the transfer log from a canonically
// ordered stream of transfer events. Every event is applied in one write
// transaction: either all of its writes commit or none do.
type Engine struct {
	db        kv.RwDB
	holders   HolderStore
	transfers TransferLog
}

type Option func(*Engine)

func WithHolderStore(s HolderStore) Option {
	return func(e *Engine) {
		e.holders = s
	}
}

func WithTransferLog(l TransferLog) Option {
	return func(e *Engine) {
		e.transfers = l
	}
}

func NewEngine(db kv.RwDB, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, library.ErrNilDB
	}

	e := &Engine{
		db:        db,
		holders:   holders.NewStore(),
		transfers: transfers.NewLog(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

func (e *Engine) DB() kv.RwDB {
	return e.db
}

// Process applies a single event. A redelivered event is reported as
// OutcomeDuplicate with a nil error.
func (e *Engine) Process(ctx context.Context, ev types.TransferEvent) (Outcome, error) {
	return e.process(ctx, ev, nil)
}

// ProcessAt applies ev and records streamPos, the offset the event source
// resumes from, in the same transaction.
func (e *Engine) ProcessAt(ctx context.Context, ev types.TransferEvent, streamPos int64) (Outcome, error) {
	return e.process(ctx, ev, func(tx kv.RwTx) error {
		return WriteStreamPosition(tx, streamPos)
	})
}

func (e *Engine) process(
	ctx context.Context,
	ev types.TransferEvent,
	also func(tx kv.RwTx) error,
) (Outcome, error) {
	start := time.Now()
	outcome := OutcomeRejected

	err := e.db.Update(ctx, func(tx kv.RwTx) error {
		var err error

		outcome, err = e.Apply(tx, ev)
		if err != nil {
			return err
		}

		if outcome == OutcomeApplied && also != nil {
			return also(tx)
		}

		return nil
	})
	if err != nil {
		err = classify(err)
		outcome = OutcomeRejected

		if errors.Is(err, library.ErrIntegrity) {
			log.Ctx(ctx).Error().Err(err).
				Str("transfer", ev.ID().String()).
				Uint64("block", ev.BlockNumber).
				Msg("Integrity violation, event rejected")
		}
	}

	EventsTotal.WithLabelValues(outcome.String()).Inc()

	if outcome == OutcomeApplied {
		ProcessDuration.Observe(time.Since(start).Seconds())
		LastBlock.Set(float64(ev.BlockNumber))
	}

	return outcome, err
}

// Apply runs the per-event algorithm inside tx. The caller owns the
// transaction and must roll it back when an error is returned.
func (e *Engine) Apply(tx kv.RwTx, ev types.TransferEvent) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return OutcomeRejected, err
	}

	id := ev.ID()

	exists, err := e.transfers.Exists(tx, id)
	if err != nil {
		return OutcomeRejected, err
	}

	if exists {
		return OutcomeDuplicate, nil
	}

	if err := e.transfers.Append(tx, types.NewTransfer(ev)); err != nil {
		if errors.Is(err, library.ErrDuplicateEvent) {
			return OutcomeDuplicate, nil
		}

		return OutcomeRejected, err
	}

	supply, err := ReadSupply(tx)
	if err != nil {
		return OutcomeRejected, err
	}

	if types.IsSentinel(ev.From) {
		if err := accumulate(supply.Minted, ev.Amount, "minted supply"); err != nil {
			return OutcomeRejected, err
		}
	} else {
		sender, err := e.holders.GetOrCreate(tx, ev.From)
		if err != nil {
			return OutcomeRejected, err
		}

		if err := debit(sender, ev.Amount); err != nil {
			return OutcomeRejected, fmt.Errorf("%w (transfer %s)", err, id)
		}

		if err := e.save(tx, sender); err != nil {
			return OutcomeRejected, err
		}
	}

	if types.IsSentinel(ev.To) {
		if err := accumulate(supply.Burned, ev.Amount, "burned supply"); err != nil {
			return OutcomeRejected, err
		}
	} else {
		// for a self-transfer this reads the sender record saved above
		receiver, err := e.holders.GetOrCreate(tx, ev.To)
		if err != nil {
			return OutcomeRejected, err
		}

		if err := credit(receiver, ev.Amount); err != nil {
			return OutcomeRejected, fmt.Errorf("%w (transfer %s)", err, id)
		}

		if err := e.save(tx, receiver); err != nil {
			return OutcomeRejected, err
		}
	}

	if err := writeSupply(tx, supply); err != nil {
		return OutcomeRejected, err
	}

	err = writeCursor(tx, types.Cursor{
		BlockNumber:     ev.BlockNumber,
		TransactionHash: ev.TransactionHash,
		LogIndex:        ev.LogIndex,
	})
	if err != nil {
		return OutcomeRejected, err
	}

	return OutcomeApplied, nil
}

func (e *Engine) save(tx kv.RwTx, h *types.HolderAggregate) error {
	if h.TransferCount == 1 {
		HoldersCreated.Inc()
	}

	return e.holders.Save(tx, h)
}

// debit never clamps: a balance below amount is an integrity violation.
func debit(h *types.HolderAggregate, amount *uint256.Int) error {
	if h.Balance.Lt(amount) {
		return fmt.Errorf("%w: holder %s balance %s below amount %s",
			library.ErrIntegrity, types.HolderKey(h.Address), h.Balance.Dec(), amount.Dec())
	}

	if err := accumulate(h.TotalSent, amount, "total sent of "+types.HolderKey(h.Address)); err != nil {
		return err
	}

	h.Balance.Sub(h.Balance, amount)
	h.TransferCount++

	return nil
}

func credit(h *types.HolderAggregate, amount *uint256.Int) error {
	if _, overflow := new(uint256.Int).AddOverflow(h.Balance, amount); overflow {
		return fmt.Errorf("%w: balance of %s overflows", library.ErrIntegrity, types.HolderKey(h.Address))
	}

	if err := accumulate(h.TotalReceived, amount, "total received of "+types.HolderKey(h.Address)); err != nil {
		return err
	}

	h.Balance.Add(h.Balance, amount)
	h.TransferCount++

	return nil
}

// accumulate adds amount to acc in place, failing instead of wrapping.
func accumulate(acc *uint256.Int, amount *uint256.Int, what string) error {
	sum, overflow := new(uint256.Int).AddOverflow(acc, amount)
	if overflow {
		return fmt.Errorf("%w: %s overflows uint256", library.ErrIntegrity, what)
	}

	acc.Set(sum)

	return nil
}

// classify maps errors escaping the write transaction onto the ledger's error
// kinds. Anything unrecognised comes from the database itself.
func classify(err error) error {
	switch {
	case errors.Is(err, library.ErrIntegrity),
		errors.Is(err, library.ErrInvalidEvent),
		errors.Is(err, library.ErrStoreUnavailable),
		errors.Is(err, library.ErrCorruptedRecord),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", library.ErrStoreUnavailable, err)
	}
}
