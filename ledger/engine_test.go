package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/0xAtelerix/tokenledger/ledger/holders"
	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/library/tests"
	"github.com/0xAtelerix/tokenledger/ledger/transfers"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

func newTestEngine(t testing.TB, opts ...Option) *Engine {
	t.Helper()

	db, cleanup := tests.TestDB(t, DefaultTables())
	t.Cleanup(cleanup)

	engine, err := NewEngine(db, opts...)
	require.NoError(t, err)

	return engine
}

func holderOf(t testing.TB, db kv.RoDB, addr common.Address) *types.HolderAggregate {
	t.Helper()

	var h *types.HolderAggregate

	err := db.View(t.Context(), func(tx kv.Tx) error {
		var err error

		h, err = holders.NewStore().GetOrCreate(tx, addr)

		return err
	})
	require.NoError(t, err)

	return h
}

func supplyOf(t testing.TB, db kv.RoDB) types.Supply {
	t.Helper()

	var s types.Supply

	err := db.View(t.Context(), func(tx kv.Tx) error {
		var err error

		s, err = ReadSupply(tx)

		return err
	})
	require.NoError(t, err)

	return s
}

func transferExists(t testing.TB, db kv.RoDB, id types.TransferID) bool {
	t.Helper()

	var ok bool

	err := db.View(t.Context(), func(tx kv.Tx) error {
		var err error

		ok, err = transfers.NewLog().Exists(tx, id)

		return err
	})
	require.NoError(t, err)

	return ok
}

// snapshot copies every ledger table, so two snapshots are equal only if no
// byte of state changed in between.
func snapshot(t testing.TB, db kv.RoDB) map[string]map[string]string {
	t.Helper()

	out := make(map[string]map[string]string)

	err := db.View(t.Context(), func(tx kv.Tx) error {
		for bucket := range DefaultTables() {
			rows := make(map[string]string)

			c, err := tx.Cursor(bucket)
			if err != nil {
				return err
			}

			for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
				if err != nil {
					c.Close()

					return err
				}

				rows[string(k)] = string(v)
			}

			c.Close()

			out[bucket] = rows
		}

		return nil
	})
	require.NoError(t, err)

	return out
}

func requireAggregate(t testing.TB, h *types.HolderAggregate, balance, received, sent, count uint64) {
	t.Helper()

	require.Equal(t, uint256.NewInt(balance), h.Balance, "balance")
	require.Equal(t, uint256.NewInt(received), h.TotalReceived, "totalReceived")
	require.Equal(t, uint256.NewInt(sent), h.TotalSent, "totalSent")
	require.Equal(t, count, h.TransferCount, "transferCount")
}

func mustApply(t testing.TB, e *Engine, ev types.TransferEvent) {
	t.Helper()

	outcome, err := e.Process(t.Context(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestNewEngine_NilDB(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil)
	require.ErrorIs(t, err, library.ErrNilDB)
}

func TestEngine_MintTransferBurn(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a, b := tests.Addr(0xA), tests.Addr(0xB)

	mint := tests.Event(types.SentinelAddress, a, 1000, 1, 0)
	move := tests.Event(a, b, 400, 2, 0)
	burn := tests.Event(a, types.SentinelAddress, 600, 3, 0)

	mustApply(t, e, mint)
	requireAggregate(t, holderOf(t, e.DB(), a), 1000, 1000, 0, 1)

	mustApply(t, e, move)
	requireAggregate(t, holderOf(t, e.DB(), a), 600, 1000, 400, 2)
	requireAggregate(t, holderOf(t, e.DB(), b), 400, 400, 0, 1)

	mustApply(t, e, burn)
	requireAggregate(t, holderOf(t, e.DB(), a), 0, 1000, 1000, 3)
	requireAggregate(t, holderOf(t, e.DB(), b), 400, 400, 0, 1)

	for _, ev := range []types.TransferEvent{mint, move, burn} {
		require.True(t, transferExists(t, e.DB(), ev.ID()))
	}

	supply := supplyOf(t, e.DB())
	require.Equal(t, uint256.NewInt(1000), supply.Minted)
	require.Equal(t, uint256.NewInt(600), supply.Burned)

	// the sentinel never gets an aggregate
	err := e.DB().View(t.Context(), func(tx kv.Tx) error {
		_, ok, err := holders.NewStore().Get(tx, types.SentinelAddress)
		require.False(t, ok)

		cursor, ok, cerr := ReadCursor(tx)
		require.NoError(t, cerr)
		require.True(t, ok)
		require.Equal(t, types.Cursor{
			BlockNumber:     3,
			TransactionHash: burn.TransactionHash,
			LogIndex:        0,
		}, cursor)

		return err
	})
	require.NoError(t, err)

	report, err := Verify(t.Context(), e.DB())
	require.NoError(t, err)
	require.True(t, report.OK(), report.Err())
	require.Equal(t, uint64(2), report.Holders)
	require.Equal(t, uint256.NewInt(400), report.TotalBalance)
}

func TestEngine_SelfTransfer(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	mustApply(t, e, tests.Event(types.SentinelAddress, a, 500, 1, 0))
	before := holderOf(t, e.DB(), a)

	mustApply(t, e, tests.Event(a, a, 100, 2, 0))
	after := holderOf(t, e.DB(), a)

	require.Equal(t, before.Balance, after.Balance)
	require.Equal(t, new(uint256.Int).AddUint64(before.TotalSent, 100), after.TotalSent)
	require.Equal(t, new(uint256.Int).AddUint64(before.TotalReceived, 100), after.TotalReceived)
	require.Equal(t, before.TransferCount+2, after.TransferCount)
	require.NoError(t, after.CheckInvariant())
}

func TestEngine_SelfTransferAboveBalance(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	mustApply(t, e, tests.Event(types.SentinelAddress, a, 50, 1, 0))

	outcome, err := e.Process(t.Context(), tests.Event(a, a, 100, 2, 0))
	require.ErrorIs(t, err, library.ErrIntegrity)
	require.Equal(t, OutcomeRejected, outcome)
	requireAggregate(t, holderOf(t, e.DB(), a), 50, 50, 0, 1)
}

func TestEngine_OverBurnRejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	mustApply(t, e, tests.Event(types.SentinelAddress, a, 100, 1, 0))
	before := snapshot(t, e.DB())

	burn := tests.Event(a, types.SentinelAddress, 101, 2, 0)

	outcome, err := e.Process(t.Context(), burn)
	require.ErrorIs(t, err, library.ErrIntegrity)
	require.Equal(t, OutcomeRejected, outcome)

	require.Equal(t, before, snapshot(t, e.DB()))
	require.False(t, transferExists(t, e.DB(), burn.ID()))
	requireAggregate(t, holderOf(t, e.DB(), a), 100, 100, 0, 1)
}

func TestEngine_TransferFromEmptyHolderRejected(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	before := snapshot(t, e.DB())

	_, err := e.Process(t.Context(), tests.Event(tests.Addr(1), tests.Addr(2), 1, 1, 0))
	require.ErrorIs(t, err, library.ErrIntegrity)
	require.Equal(t, before, snapshot(t, e.DB()))
}

func TestEngine_ReplayIsNoop(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a, b := tests.Addr(0xA), tests.Addr(0xB)

	mustApply(t, e, tests.Event(types.SentinelAddress, a, 1000, 1, 0))

	move := tests.Event(a, b, 250, 2, 0)
	mustApply(t, e, move)

	before := snapshot(t, e.DB())

	for range 3 {
		outcome, err := e.Process(t.Context(), move)
		require.NoError(t, err)
		require.Equal(t, OutcomeDuplicate, outcome)
	}

	require.Equal(t, before, snapshot(t, e.DB()))
}

func TestEngine_DuplicateIDWinsOverPayload(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	mint := tests.Event(types.SentinelAddress, a, 10, 1, 0)
	mustApply(t, e, mint)

	// same (txHash, logIndex), different content: still a redelivery
	changed := mint
	changed.Amount = uint256.NewInt(9999)

	outcome, err := e.Process(t.Context(), changed)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	requireAggregate(t, holderOf(t, e.DB(), a), 10, 10, 0, 1)
}

func TestEngine_ZeroAmount(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a, b := tests.Addr(0xA), tests.Addr(0xB)

	ev := tests.Event(a, b, 0, 1, 0)
	mustApply(t, e, ev)

	require.True(t, transferExists(t, e.DB(), ev.ID()))
	requireAggregate(t, holderOf(t, e.DB(), a), 0, 0, 0, 1)
	requireAggregate(t, holderOf(t, e.DB(), b), 0, 0, 0, 1)
}

func TestEngine_SentinelToSentinel(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	ev := tests.Event(types.SentinelAddress, types.SentinelAddress, 7, 1, 0)
	mustApply(t, e, ev)

	require.True(t, transferExists(t, e.DB(), ev.ID()))

	supply := supplyOf(t, e.DB())
	require.Equal(t, uint256.NewInt(7), supply.Minted)
	require.Equal(t, uint256.NewInt(7), supply.Burned)

	report, err := Verify(t.Context(), e.DB())
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Zero(t, report.Holders)
}

func TestEngine_SameTxDistinctLogIndexes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a, b := tests.Addr(0xA), tests.Addr(0xB)

	first := tests.Event(types.SentinelAddress, a, 10, 1, 0)
	second := first
	second.LogIndex = 1
	second.To = b

	mustApply(t, e, first)
	mustApply(t, e, second)

	requireAggregate(t, holderOf(t, e.DB(), a), 10, 10, 0, 1)
	requireAggregate(t, holderOf(t, e.DB(), b), 10, 10, 0, 1)
}

func TestEngine_NilAmountInvalid(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	ev := tests.Event(types.SentinelAddress, tests.Addr(1), 0, 1, 0)
	ev.Amount = nil

	outcome, err := e.Process(t.Context(), ev)
	require.ErrorIs(t, err, library.ErrInvalidEvent)
	require.Equal(t, OutcomeRejected, outcome)
}

func TestEngine_OverflowIsIntegrity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	maxMint := tests.Event(types.SentinelAddress, a, 0, 1, 0)
	maxMint.Amount = new(uint256.Int).SetAllOne()
	mustApply(t, e, maxMint)

	before := snapshot(t, e.DB())

	_, err := e.Process(t.Context(), tests.Event(types.SentinelAddress, tests.Addr(0xB), 1, 2, 0))
	require.ErrorIs(t, err, library.ErrIntegrity)
	require.Equal(t, before, snapshot(t, e.DB()))
}

type failingStore struct {
	*holders.Store
	failOn common.Address
}

func (s failingStore) Save(tx kv.RwTx, h *types.HolderAggregate) error {
	if h.Address == s.failOn {
		return errors.New("disk full")
	}

	return s.Store.Save(tx, h)
}

func TestEngine_StoreFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	a, b := tests.Addr(0xA), tests.Addr(0xB)
	e := newTestEngine(t, WithHolderStore(failingStore{Store: holders.NewStore(), failOn: b}))

	mustApply(t, e, tests.Event(types.SentinelAddress, a, 100, 1, 0))
	before := snapshot(t, e.DB())

	// sender is saved before the receiver fails
	move := tests.Event(a, b, 40, 2, 0)

	outcome, err := e.ProcessAt(t.Context(), move, 99)
	require.ErrorIs(t, err, library.ErrStoreUnavailable)
	require.Equal(t, OutcomeRejected, outcome)

	require.Equal(t, before, snapshot(t, e.DB()))
	require.False(t, transferExists(t, e.DB(), move.ID()))
	requireAggregate(t, holderOf(t, e.DB(), a), 100, 100, 0, 1)
}

func TestEngine_ProcessAtStreamPosition(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	a := tests.Addr(0xA)

	pos, err := LoadStreamPosition(t.Context(), e.DB())
	require.NoError(t, err)
	require.Zero(t, pos)

	mint := tests.Event(types.SentinelAddress, a, 5, 1, 0)

	outcome, err := e.ProcessAt(t.Context(), mint, 120)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	pos, err = LoadStreamPosition(t.Context(), e.DB())
	require.NoError(t, err)
	require.Equal(t, int64(120), pos)

	outcome, err = e.ProcessAt(t.Context(), mint, 500)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)

	pos, err = LoadStreamPosition(t.Context(), e.DB())
	require.NoError(t, err)
	require.Equal(t, int64(120), pos)

	_, err = e.ProcessAt(t.Context(), tests.Event(a, tests.Addr(2), 6, 2, 0), 240)
	require.ErrorIs(t, err, library.ErrIntegrity)

	pos, err = LoadStreamPosition(t.Context(), e.DB())
	require.NoError(t, err)
	require.Equal(t, int64(120), pos)
}

// genEvents draws a canonically ordered sequence over a few holders. Debits are
// drawn against a model of balances, so every event is expected to apply.
func genEvents(t *rapid.T) []types.TransferEvent {
	addrs := []common.Address{types.SentinelAddress, tests.Addr(1), tests.Addr(2), tests.Addr(3)}
	balances := make(map[common.Address]uint64)

	n := rapid.IntRange(1, 40).Draw(t, "n")
	out := make([]types.TransferEvent, 0, n)

	for i := range n {
		from := rapid.SampledFrom(addrs).Draw(t, "from")
		to := rapid.SampledFrom(addrs).Draw(t, "to")

		var amount uint64

		if types.IsSentinel(from) {
			amount = rapid.Uint64Range(0, 1_000_000).Draw(t, "mint")
		} else {
			amount = rapid.Uint64Range(0, balances[from]).Draw(t, "amount")
			balances[from] -= amount
		}

		if !types.IsSentinel(to) {
			balances[to] += amount
		}

		block := uint64(i/3 + 1)
		out = append(out, tests.Event(from, to, amount, block, uint32(i%3)))
	}

	return out
}

func TestEngine_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(tr *rapid.T) {
		t.Run(tr.Name(), func(t *testing.T) {
			e := newTestEngine(t)
			events := genEvents(tr)

			for i, ev := range events {
				outcome, err := e.Process(t.Context(), ev)
				require.NoError(tr, err, "event %d", i)
				require.Equal(tr, OutcomeApplied, outcome)

				// conservation and per-holder invariant at every prefix
				report, err := Verify(t.Context(), e.DB())
				require.NoError(tr, err)
				require.True(tr, report.OK(), "after event %d: %v", i, report.Err())

				// replaying anything seen so far changes nothing
				before := snapshot(t, e.DB())
				replay := events[rapid.IntRange(0, i).Draw(tr, "replay")]

				outcome, err = e.Process(t.Context(), replay)
				require.NoError(tr, err)
				require.Equal(tr, OutcomeDuplicate, outcome)
				require.Equal(tr, before, snapshot(t, e.DB()))
			}
		})
	})
}

func TestEngine_OverdraftNeverCommits(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(tr *rapid.T) {
		t.Run(tr.Name(), func(t *testing.T) {
			e := newTestEngine(t)
			a := tests.Addr(1)

			minted := rapid.Uint64Range(0, 1_000_000).Draw(tr, "minted")
			excess := rapid.Uint64Range(1, 1_000_000).Draw(tr, "excess")
			to := rapid.SampledFrom([]common.Address{types.SentinelAddress, tests.Addr(2)}).Draw(tr, "to")

			mustApply(t, e, tests.Event(types.SentinelAddress, a, minted, 1, 0))
			before := snapshot(t, e.DB())

			_, err := e.Process(t.Context(), tests.Event(a, to, minted+excess, 2, 0))
			require.ErrorIs(tr, err, library.ErrIntegrity)
			require.Equal(tr, before, snapshot(t, e.DB()))
		})
	})
}
