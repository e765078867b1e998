package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/0xAtelerix/tokenledger/ledger"
	"github.com/0xAtelerix/tokenledger/ledger/holders"
	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/transfers"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const (
	DefaultTransfersLimit = 100
	MaxTransfersLimit     = 1000
)

func holderView(h *types.HolderAggregate) HolderView {
	return HolderView{
		Address:       types.HolderKey(h.Address),
		Balance:       h.Balance.Dec(),
		TotalReceived: h.TotalReceived.Dec(),
		TotalSent:     h.TotalSent.Dec(),
		TransferCount: h.TransferCount,
	}
}

func transferView(t types.Transfer) TransferView {
	kind := types.TransferEvent{From: t.From, To: t.To}.Kind()

	return TransferView{
		ID:              t.ID.String(),
		Kind:            string(kind),
		From:            types.HolderKey(t.From),
		To:              types.HolderKey(t.To),
		Amount:          t.Amount.Dec(),
		BlockNumber:     t.BlockNumber,
		BlockTimestamp:  t.BlockTimestamp,
		TransactionHash: t.TransactionHash.Hex(),
		LogIndex:        t.LogIndex,
	}
}

func (s *Server) view(ctx context.Context, fn func(tx kv.Tx) error) error {
	err := s.db.View(ctx, fn)
	if err == nil ||
		errors.Is(err, ErrHolderNotFound) ||
		errors.Is(err, ErrTransferNotFound) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrFailedToReadLedger, err)
}

// getHolder(address) returns the holder's aggregate.
func (s *Server) getHolder(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: getHolder requires exactly 1 parameter", ErrWrongParamCount)
	}

	addr, err := parseAddress(params, 0)
	if err != nil {
		return nil, err
	}

	var res HolderView

	err = s.view(ctx, func(tx kv.Tx) error {
		h, ok, err := holders.NewStore().Get(tx, addr)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%w: %s", ErrHolderNotFound, types.HolderKey(addr))
		}

		res = holderView(h)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// getTransfer(id) returns one transfer by "<transactionHash>-<logIndex>".
func (s *Server) getTransfer(ctx context.Context, params []any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: getTransfer requires exactly 1 parameter", ErrWrongParamCount)
	}

	raw, err := stringParam(params, 0)
	if err != nil {
		return nil, err
	}

	hash, logIndex, err := types.ParseTransferID(raw)
	if err != nil {
		return nil, errors.Join(ErrInvalidTransferID, err)
	}

	id := types.NewTransferID(hash, logIndex)

	var res TransferView

	err = s.view(ctx, func(tx kv.Tx) error {
		t, err := transfers.NewLog().Get(tx, id)
		if errors.Is(err, library.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrTransferNotFound, id)
		}

		if err != nil {
			return err
		}

		res = transferView(t)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// getHolderTransfers(address, limit?) returns the holder's transfers, newest first.
func (s *Server) getHolderTransfers(ctx context.Context, params []any) (any, error) {
	if len(params) < 1 || len(params) > 2 {
		return nil, fmt.Errorf("%w: getHolderTransfers requires 1 or 2 parameters", ErrWrongParamCount)
	}

	addr, err := parseAddress(params, 0)
	if err != nil {
		return nil, err
	}

	limit := DefaultTransfersLimit

	if len(params) == 2 && params[1] != nil {
		limit, err = parseLimit(params[1])
		if err != nil {
			return nil, err
		}

		limit = min(limit, MaxTransfersLimit)
	}

	res := make([]TransferView, 0)

	err = s.view(ctx, func(tx kv.Tx) error {
		list, err := transfers.NewLog().ByHolder(tx, addr, limit)
		if err != nil {
			return err
		}

		for _, t := range list {
			res = append(res, transferView(t))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Server) getSupply(ctx context.Context, _ []any) (any, error) {
	var res SupplyView

	err := s.view(ctx, func(tx kv.Tx) error {
		supply, err := ledger.ReadSupply(tx)
		if err != nil {
			return err
		}

		circulating, err := supply.Circulating()
		if err != nil {
			return err
		}

		res = SupplyView{
			Minted:      supply.Minted.Dec(),
			Burned:      supply.Burned.Dec(),
			Circulating: circulating.Dec(),
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// getCursor returns the position of the last applied event.
func (s *Server) getCursor(ctx context.Context, _ []any) (any, error) {
	var res CursorView

	err := s.view(ctx, func(tx kv.Tx) error {
		cursor, ok, err := ledger.ReadCursor(tx)
		if err != nil || !ok {
			return err
		}

		res = CursorView{
			Applied:         true,
			BlockNumber:     cursor.BlockNumber,
			TransactionHash: cursor.TransactionHash.Hex(),
			LogIndex:        cursor.LogIndex,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Server) getHolderCount(ctx context.Context, _ []any) (any, error) {
	var count uint64

	err := s.view(ctx, func(tx kv.Tx) error {
		var err error

		count, err = holders.NewStore().Count(tx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return count, nil
}
