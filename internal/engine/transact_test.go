package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainstate/internal/contract"
	"chainstate/internal/model"
	"chainstate/internal/store"
)

func approve() TxRequest {
	return TxRequest{Call: model.CallSpec{
		Address: tokenAddr,
		ABI:     contract.ERC20,
		Method:  "approve",
		Args:    []interface{}{common.HexToAddress(spenderAddr), 1000},
	}}
}

// statusLog records the statuses a transaction goes through.
type statusLog struct {
	mu       sync.Mutex
	statuses []model.TxStatus
}

func (l *statusLog) observe(c store.Change) {
	if c.Transaction == nil {
		return
	}
	l.mu.Lock()
	l.statuses = append(l.statuses, c.Transaction.Status)
	l.mu.Unlock()
}

func (l *statusLog) get() []model.TxStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.TxStatus(nil), l.statuses...)
}

func txHarness(t *testing.T, sender *fakeSender, receipts *fakeReceipts) (*harness, *statusLog) {
	t.Helper()
	h := newHarness(t, func(d *Deps) {
		d.Sender = sender
		d.Receipts = receipts
	})
	log := &statusLog{}
	h.store.Observe(log.observe)
	return h, log
}

func TestTransactMined(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 100000, hash: "0xHASH"}
	receipts := &fakeReceipts{statuses: []*uint64{status(1)}}
	h, log := txHarness(t, sender, receipts)

	ref, err := h.engine.Submit(context.Background(), approve())
	require.NoError(t, err)
	tx, ok := h.engine.Transaction(ref)
	require.True(t, ok)
	assert.Equal(t, model.TxQueued, tx.Status)
	assert.Equal(t, "0xHASH", tx.TxHash)
	assert.Equal(t, uint64(130000), sender.gasLimit)

	require.NoError(t, h.engine.PollReceipt(context.Background(), ref, tx.TxHash, 0))
	tx, _ = h.engine.LastTransaction()
	assert.Equal(t, model.TxMined, tx.Status)
	assert.Equal(t, []model.TxStatus{model.TxSubmitted, model.TxQueued, model.TxMined}, log.get())
}

func TestTransactReverted(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 21000, hash: "0xHASH"}
	receipts := &fakeReceipts{statuses: []*uint64{status(0)}}
	h, _ := txHarness(t, sender, receipts)

	ref, err := h.engine.Transact(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxReverted, tx.Status)
	assert.Equal(t, "Tx 0xHASH reverted", tx.Error)
}

func TestTransactWaitsForPendingReceipt(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 21000, hash: "0xHASH"}
	receipts := &fakeReceipts{statuses: []*uint64{nil, nil, status(1)}}
	h, log := txHarness(t, sender, receipts)

	ref, err := h.engine.Transact(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxMined, tx.Status)
	assert.Equal(t, 2, tx.Attempts)
	assert.Equal(t, 3, receipts.lookups)
	assert.Equal(t, []model.TxStatus{
		model.TxSubmitted, model.TxQueued, model.TxQueued, model.TxQueued, model.TxMined,
	}, log.get())
}

func TestTransactExpires(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 21000, hash: "0xHASH"}
	receipts := &fakeReceipts{}
	h, _ := txHarness(t, sender, receipts)

	ref, err := h.engine.Transact(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxExpired, tx.Status)
	assert.Equal(t, h.engine.Config().MaxPolls, receipts.lookups)
}

func TestTransactReceiptErrorRejects(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 21000, hash: "0xHASH"}
	receipts := &fakeReceipts{err: errors.New("connection reset")}
	h, _ := txHarness(t, sender, receipts)

	ref, err := h.engine.Transact(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxRejected, tx.Status)
	assert.Equal(t, "connection reset", tx.Error)
}

func TestSubmitRejectsWithRevertReason(t *testing.T) {
	sender := &fakeSender{
		chainID:  testChain.ID,
		estimate: 21000,
		sendErr:  errors.New(`execution failed: {"code":3,"message":"execution reverted","data":{"reason":"ERC20: insufficient allowance"}}`),
	}
	receipts := &fakeReceipts{}
	h, log := txHarness(t, sender, receipts)

	ref, err := h.engine.Transact(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxRejected, tx.Status)
	assert.Equal(t, "ERC20: insufficient allowance", tx.Error)
	assert.Zero(t, receipts.lookups)
	assert.Equal(t, []model.TxStatus{model.TxSubmitted, model.TxRejected}, log.get())
}

func TestSubmitRejectsWrongNetwork(t *testing.T) {
	sender := &fakeSender{chainID: 1, estimate: 21000, hash: "0xHASH"}
	h, _ := txHarness(t, sender, &fakeReceipts{})

	ref, err := h.engine.Submit(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxRejected, tx.Status)
	assert.Contains(t, tx.Error, "wrong network")
	assert.Zero(t, sender.sent)
}

func TestSubmitWithoutSender(t *testing.T) {
	h := newHarness(t, nil)

	ref, err := h.engine.Submit(context.Background(), approve())
	require.NoError(t, err)

	tx, _ := h.engine.Transaction(ref)
	assert.Equal(t, model.TxRejected, tx.Status)
	assert.Equal(t, errNoSender.Error(), tx.Error)
}

func TestTransactionIDsFollowSubmitOrder(t *testing.T) {
	sender := &fakeSender{chainID: testChain.ID, estimate: 21000, hash: "0xHASH"}
	h, _ := txHarness(t, sender, &fakeReceipts{})
	ctx := context.Background()

	first, err := h.engine.Submit(ctx, approve())
	require.NoError(t, err)
	second, err := h.engine.Submit(ctx, approve())
	require.NoError(t, err)

	assert.Equal(t, 0, first.ID)
	assert.Equal(t, 1, second.ID)
	last, ok := h.engine.LastTransaction()
	require.True(t, ok)
	assert.Equal(t, 1, last.ID)
}
