package engine

import (
	"errors"
	"math/big"

	"chainstate/internal/model"
	"chainstate/internal/signing"
)

var errNoSigner = errors.New("no signer configured")

// SelectCall returns the record of call on the current chain.
func (e *Engine) SelectCall(call model.CallSpec) (model.CallRecord, bool) {
	chain := e.store.CurrentChain()
	return e.store.Call(chain.ID, e.keyOf(chain, call))
}

// SelectCallTimestamp returns when call last loaded, in epoch millis.
func (e *Engine) SelectCallTimestamp(call model.CallSpec) (int64, bool) {
	chain := e.store.CurrentChain()
	return e.store.CallTimestamp(chain.ID, e.keyOf(chain, call))
}

// SelectCallMultiple projects several calls in order.
func (e *Engine) SelectCallMultiple(calls []model.CallSpec) []model.CallView {
	chain := e.store.CurrentChain()
	keys := make([]model.CallKey, len(calls))
	for i, call := range calls {
		keys[i] = e.keyOf(chain, call)
	}
	return e.store.CallMultiple(chain.ID, keys)
}

// LastTransaction returns the most recent transaction on the current chain.
func (e *Engine) LastTransaction() (model.Transaction, bool) {
	return e.store.LastTransaction(e.store.CurrentChain().ID)
}

// Transaction returns the transaction ref points at, on the chain it was
// submitted to.
func (e *Engine) Transaction(ref TxRef) (model.Transaction, bool) {
	return e.store.Transaction(ref.ChainID, ref.ID)
}

// BiggerSign returns the largest signed allowance of userAddress for nonce
// and counterparty on the current chain.
func (e *Engine) BiggerSign(userAddress string, nonce *big.Int, counterparty string) (model.TypedSign, bool) {
	return e.store.BiggerSign(e.store.CurrentChain().ID, userAddress, nonce, counterparty)
}

// Signing returns the signature coordinator, or an error when the engine was
// built without a signer.
func (e *Engine) Signing() (*signing.Coordinator, error) {
	if e.signing == nil {
		return nil, errNoSigner
	}
	return e.signing, nil
}
