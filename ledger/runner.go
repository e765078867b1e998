package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/0xAtelerix/tokenledger/ledger/eventsource"
	"github.com/0xAtelerix/tokenledger/ledger/library"
)

const DefaultMaxRetries = 10

// EventSource delivers events in canonical order. Next returns io.EOF when a
// finite source is exhausted.
type EventSource interface {
	Next(ctx context.Context) (eventsource.Item, error)
}

// Stats counts what a run did.
type Stats struct {
	Applied    uint64
	Duplicates uint64
	Retries    uint64
}

// Runner feeds an event source into the engine one event at a time.
// Store failures are retried, integrity and invalid events stop it.
type Runner struct {
	engine     *Engine
	source     EventSource
	maxRetries uint
	newBackOff func() backoff.BackOff
	stats      Stats
}

type RunnerOption func(*Runner)

func WithMaxRetries(n uint) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

func WithBackOff(f func() backoff.BackOff) RunnerOption {
	return func(r *Runner) {
		r.newBackOff = f
	}
}

func NewRunner(engine *Engine, source EventSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:     engine,
		source:     source,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 10 * time.Second

			return b
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Runner) Stats() Stats {
	return r.stats
}

// Run consumes the source until it is exhausted, ctx is done, or an event
// cannot be applied. A finite source ending returns nil.
func (r *Runner) Run(ctx context.Context) error {
	logger := log.Ctx(ctx)

	for {
		item, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Info().
				Uint64("applied", r.stats.Applied).
				Uint64("duplicates", r.stats.Duplicates).
				Msg("Event source exhausted")

			return nil
		}

		if err != nil {
			return err
		}

		outcome, err := r.apply(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logger.Error().Err(err).
				Str("transfer", item.Event.ID().String()).
				Uint64("block", item.Event.BlockNumber).
				Int64("offset", item.Offset).
				Msg("Ledger halted")

			return fmt.Errorf("halted at transfer %s: %w", item.Event.ID(), err)
		}

		switch outcome {
		case OutcomeDuplicate:
			r.stats.Duplicates++

			logger.Debug().
				Str("transfer", item.Event.ID().String()).
				Msg("Duplicate event skipped")
		case OutcomeApplied:
			r.stats.Applied++

			logger.Trace().
				Str("transfer", item.Event.ID().String()).
				Uint64("block", item.Event.BlockNumber).
				Msg("Event applied")
		case OutcomeRejected:
		}
	}
}

func (r *Runner) apply(ctx context.Context, item eventsource.Item) (Outcome, error) {
	op := func() (Outcome, error) {
		outcome, err := r.engine.ProcessAt(ctx, item.Event, item.Offset)
		if err == nil || errors.Is(err, library.ErrStoreUnavailable) {
			return outcome, err
		}

		return outcome, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.stats.Retries++
			RunnerRetries.Inc()

			log.Ctx(ctx).Warn().Err(err).
				Str("transfer", item.Event.ID().String()).
				Dur("retryIn", next).
				Msg("Store unavailable, retrying")
		}),
	)
}
