package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chainstate/internal/model"
	"chainstate/internal/store"
)

var errNoSender = errors.New("no signer connected")

// TxRequest describes a contract write.
type TxRequest struct {
	Call model.CallSpec
}

// TxRef locates a transaction in the write log.
type TxRef struct {
	ChainID uint64
	ID      int
}

// Submit appends the transaction to the current chain's write log, then
// estimates gas, applies the configured increase and broadcasts it. The
// outcome is recorded as QUEUED with the hash or REJECTED with a reason.
// The returned error only reports a failed store update.
func (e *Engine) Submit(ctx context.Context, req TxRequest) (TxRef, error) {
	chain := e.store.CurrentChain()
	res, err := e.store.Dispatch(store.TransactSubmitted{
		ChainID: chain.ID,
		Address: req.Call.Address,
		ABI:     req.Call.ABI,
		Method:  req.Call.Method,
		Args:    req.Call.Args,
	})
	if err != nil {
		return TxRef{}, err
	}
	ref := TxRef{ChainID: chain.ID, ID: res.TxID}
	e.metrics.Transactions.WithLabelValues(string(model.TxSubmitted)).Inc()

	hash, err := e.broadcast(ctx, chain, req.Call)
	if err != nil {
		reason := ParseRevertReason(err)
		e.logger.Warn("transaction rejected",
			zap.Uint64("chain_id", chain.ID),
			zap.Int("id", ref.ID),
			zap.String("method", req.Call.Method),
			zap.String("reason", reason),
		)
		return ref, e.transact(store.TransactRejected{ChainID: ref.ChainID, ID: ref.ID, Error: reason}, model.TxRejected)
	}

	e.logger.Info("transaction queued",
		zap.Uint64("chain_id", chain.ID),
		zap.Int("id", ref.ID),
		zap.String("tx_hash", hash),
	)
	return ref, e.transact(store.TransactQueued{ChainID: ref.ChainID, ID: ref.ID, TxHash: hash}, model.TxQueued)
}

func (e *Engine) broadcast(ctx context.Context, chain model.ChainContext, call model.CallSpec) (string, error) {
	if e.sender == nil {
		return "", errNoSender
	}
	signerChain, err := e.sender.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("get signer chain id: %w", err)
	}
	if signerChain != chain.ID {
		return "", fmt.Errorf("wrong network: signer on chain %d, expected %d", signerChain, chain.ID)
	}
	gas, err := e.sender.EstimateGas(ctx, call)
	if err != nil {
		return "", err
	}
	return e.sender.Send(ctx, call, gas*e.cfg.GasIncrease/100)
}

// PollReceipt waits for the receipt of a queued transaction. Each poll waits
// PollDelay first; a missing receipt moves on to the next attempt until
// MaxPolls lookups have been made, after which the transaction expires.
// The returned error is the context's or a failed store update.
func (e *Engine) PollReceipt(ctx context.Context, ref TxRef, txHash string, attempt int) error {
	if e.receipts == nil {
		return e.transact(store.TransactRejected{ChainID: ref.ChainID, ID: ref.ID, Error: "no receipt source"}, model.TxRejected)
	}
	for {
		if attempt >= e.cfg.MaxPolls {
			e.logger.Warn("transaction expired", zap.String("tx_hash", txHash), zap.Int("attempts", attempt))
			return e.transact(store.TransactExpired{ChainID: ref.ChainID, ID: ref.ID}, model.TxExpired)
		}
		if err := sleep(ctx, e.cfg.PollDelay); err != nil {
			return err
		}

		status, err := e.receipts.ReceiptStatus(ctx, txHash)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
			return e.transact(store.TransactRejected{ChainID: ref.ChainID, ID: ref.ID, Error: err.Error()}, model.TxRejected)
		case status == nil:
			attempt++
			if attempt >= e.cfg.MaxPolls {
				continue
			}
			if err := e.transact(store.TransactQueued{ChainID: ref.ChainID, ID: ref.ID, TxHash: txHash, Attempt: attempt}, model.TxQueued); err != nil {
				return err
			}
		case *status == 1:
			e.logger.Info("transaction mined", zap.String("tx_hash", txHash))
			return e.transact(store.TransactMined{ChainID: ref.ChainID, ID: ref.ID}, model.TxMined)
		case *status == 0:
			e.logger.Warn("transaction reverted", zap.String("tx_hash", txHash))
			return e.transact(store.TransactReverted{ChainID: ref.ChainID, ID: ref.ID, Error: fmt.Sprintf("Tx %s reverted", txHash)}, model.TxReverted)
		default:
			return e.transact(store.TransactRejected{ChainID: ref.ChainID, ID: ref.ID, Error: fmt.Sprintf("unexpected receipt status %d", *status)}, model.TxRejected)
		}
	}
}

// Transact submits req and, once queued, polls for its receipt.
func (e *Engine) Transact(ctx context.Context, req TxRequest) (TxRef, error) {
	ref, err := e.Submit(ctx, req)
	if err != nil {
		return ref, err
	}
	tx, ok := e.store.Transaction(ref.ChainID, ref.ID)
	if !ok || tx.Status != model.TxQueued {
		return ref, nil
	}
	return ref, e.PollReceipt(ctx, ref, tx.TxHash, 0)
}

func (e *Engine) transact(a store.Action, to model.TxStatus) error {
	if _, err := e.store.Dispatch(a); err != nil {
		return err
	}
	e.metrics.Transactions.WithLabelValues(string(to)).Inc()
	return nil
}
