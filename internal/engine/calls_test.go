package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainstate/internal/metrics"
	"chainstate/internal/model"
)

func TestIssueReadLoadsValue(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.script("totalSupply", readResult{value: 7})

	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: totalSupply()}))

	rec, ok := h.engine.SelectCall(totalSupply())
	require.True(t, ok)
	assert.Equal(t, model.CallLoaded, rec.Status)
	assert.Equal(t, 7, rec.Value)

	ts, ok := h.engine.SelectCallTimestamp(totalSupply())
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().UnixMilli(), ts)
}

func TestIssueReadSkipsFreshKey(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.reader.script("totalSupply", readResult{value: 1}, readResult{value: 2})

	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	before, _ := h.engine.SelectCall(totalSupply())

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))

	after, _ := h.engine.SelectCall(totalSupply())
	assert.Equal(t, 1, h.reader.count("totalSupply"))
	assert.Equal(t, before, after)

	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	assert.Equal(t, 2, h.reader.count("totalSupply"))
	after, _ = h.engine.SelectCall(totalSupply())
	assert.Equal(t, 2, after.Value)
}

func TestIssueReadMaxAgeOverride(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))

	h.clock.Advance(200 * time.Millisecond)
	short := 100 * time.Millisecond
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply(), MaxAge: &short}))
	assert.Equal(t, 2, h.reader.count("totalSupply"))

	long := time.Minute
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply(), MaxAge: &long}))
	assert.Equal(t, 2, h.reader.count("totalSupply"))
}

func TestForceCallAlwaysReads(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply(), ForceCall: true}))
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply(), ForceCall: true}))

	assert.Equal(t, 2, h.reader.count("totalSupply"))
}

func TestIssueReadRetryBound(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.script("totalSupply", readResult{err: errRPC})

	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: totalSupply()}))

	assert.Equal(t, 3, h.reader.count("totalSupply"))
	rec, ok := h.engine.SelectCall(totalSupply())
	require.True(t, ok)
	assert.Equal(t, model.CallError, rec.Status)
	assert.Equal(t, 2, rec.Retries)
	assert.Equal(t, errRPC.Error(), rec.Error)
	_, ok = h.engine.SelectCallTimestamp(totalSupply())
	assert.False(t, ok)
}

func TestIssueReadRecoversAfterRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.script("totalSupply", readResult{err: errRPC}, readResult{value: 5})

	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: totalSupply()}))

	assert.Equal(t, 2, h.reader.count("totalSupply"))
	rec, _ := h.engine.SelectCall(totalSupply())
	assert.Equal(t, model.CallLoaded, rec.Status)
	assert.Equal(t, 5, rec.Value)
	assert.Zero(t, rec.Retries)
}

func TestIssueReadEncodingErrorIsNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	bad := model.CallSpec{Address: tokenAddr, ABI: "ERC20", Method: "mint"}

	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: bad}))

	assert.Equal(t, 0, h.reader.count("mint"))
	rec, ok := h.engine.SelectCall(bad)
	require.True(t, ok)
	assert.Equal(t, model.CallError, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestIssueReadStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.script("totalSupply", readResult{err: errRPC})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.reader.count("totalSupply"))
}

func TestConcurrentReadsShareOneAttempt(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.gate = make(chan struct{})
	h.reader.entered = make(chan struct{}, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	}()
	<-h.reader.entered

	rec, _ := h.engine.SelectCall(totalSupply())
	assert.Equal(t, model.CallLoading, rec.Status)

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	}()
	time.Sleep(20 * time.Millisecond)
	close(h.reader.gate)
	wg.Wait()

	assert.Equal(t, 1, h.reader.count("totalSupply"))
	rec, _ = h.engine.SelectCall(totalSupply())
	assert.Equal(t, model.CallLoaded, rec.Status)
}

func TestCancelledRefreshKeepsLoadedValue(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.script("totalSupply", readResult{value: 7}, readResult{value: 8})
	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: totalSupply()}))

	h.clock.Advance(4 * time.Second)
	h.reader.gate = make(chan struct{})
	h.reader.entered = make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}) }()
	<-h.reader.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	rec, ok := h.engine.SelectCall(totalSupply())
	require.True(t, ok)
	assert.Equal(t, model.CallLoaded, rec.Status)
	assert.Equal(t, 7, rec.Value)
	assert.Empty(t, rec.Error)
	assert.Equal(t, 2, h.reader.count("totalSupply"))
}

func TestSharedReadSurvivesOwnerCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.reader.gate = make(chan struct{})
	h.reader.entered = make(chan struct{}, 1)
	h.reader.script("totalSupply", readResult{value: 5})

	ownerCtx, cancelOwner := context.WithCancel(context.Background())
	owner := make(chan error, 1)
	go func() { owner <- h.engine.IssueRead(ownerCtx, ReadRequest{Call: totalSupply()}) }()
	<-h.reader.entered

	joined := make(chan error, 1)
	go func() { joined <- h.engine.IssueRead(context.Background(), ReadRequest{Call: totalSupply()}) }()
	time.Sleep(20 * time.Millisecond)

	cancelOwner()
	assert.ErrorIs(t, <-owner, context.Canceled)

	// The joined caller reads again on its own context.
	<-h.reader.entered
	close(h.reader.gate)
	require.NoError(t, <-joined)

	assert.Equal(t, 2, h.reader.count("totalSupply"))
	rec, ok := h.engine.SelectCall(totalSupply())
	require.True(t, ok)
	assert.Equal(t, model.CallLoaded, rec.Status)
	assert.Equal(t, 5, rec.Value)
}

func TestReadsArePartitionedByChain(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))

	other := model.ChainContext{Name: "other", ID: 56, RPC: "http://node-b"}
	require.NoError(t, h.engine.SelectChain(other))
	_, ok := h.engine.SelectCall(totalSupply())
	assert.False(t, ok)

	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	assert.Equal(t, 2, h.reader.count("totalSupply"))

	key, err := h.engine.CallKey(testChain, totalSupply())
	require.NoError(t, err)
	rec, ok := h.store.Call(testChain.ID, key)
	require.True(t, ok)
	assert.Equal(t, model.CallLoaded, rec.Status)
}

func TestCallKeyDependsOnEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.engine.CallKey(testChain, totalSupply())
	require.NoError(t, err)
	b, err := h.engine.CallKey(model.ChainContext{ID: testChain.ID, RPC: "http://node-b"}, totalSupply())
	require.NoError(t, err)
	c, err := h.engine.CallKey(testChain, totalSupply())
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestSelectCallMultiple(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.IssueRead(context.Background(), ReadRequest{Call: decimals()}))

	views := h.engine.SelectCallMultiple([]model.CallSpec{totalSupply(), decimals()})
	require.Len(t, views, 2)
	assert.Equal(t, model.CallView{}, views[0])
	assert.Equal(t, model.CallView{Status: model.CallLoaded, Value: "decimals"}, views[1])
}

func TestReadMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(t, func(d *Deps) { d.Metrics = m })
	ctx := context.Background()

	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))
	require.NoError(t, h.engine.IssueRead(ctx, ReadRequest{Call: totalSupply()}))

	assert.Equal(t, 1.0, counterValue(t, m.Reads.WithLabelValues(metrics.ReadIssued)))
	assert.Equal(t, 1.0, counterValue(t, m.Reads.WithLabelValues(metrics.ReadFresh)))
	assert.Equal(t, 1.0, counterValue(t, m.Reads.WithLabelValues(metrics.ReadLoaded)))
}
