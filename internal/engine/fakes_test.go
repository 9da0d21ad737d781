package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"chainstate/internal/contract"
	"chainstate/internal/metrics"
	"chainstate/internal/model"
	"chainstate/internal/store"
)

const (
	tokenAddr   = "0x1111111111111111111111111111111111111111"
	spenderAddr = "0x2222222222222222222222222222222222222222"
)

var testChain = model.ChainContext{Name: "testnet", ID: 97, RPC: "http://node-a"}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeReader answers reads from a per-method script. Methods without a
// script return their name.
type fakeReader struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string][]readResult
	gate    chan struct{}
	entered chan struct{}
}

type readResult struct {
	value interface{}
	err   error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		calls:   make(map[string]int),
		results: make(map[string][]readResult),
	}
}

func (r *fakeReader) script(method string, results ...readResult) {
	r.mu.Lock()
	r.results[method] = append(r.results[method], results...)
	r.mu.Unlock()
}

func (r *fakeReader) Read(ctx context.Context, call model.CallSpec) (interface{}, error) {
	r.mu.Lock()
	r.calls[call.Method]++
	var res readResult
	if queue := r.results[call.Method]; len(queue) > 0 {
		res = queue[0]
		if len(queue) > 1 {
			r.results[call.Method] = queue[1:]
		}
	} else {
		res = readResult{value: call.Method}
	}
	gate, entered := r.gate, r.entered
	r.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return res.value, res.err
}

func (r *fakeReader) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// rawCaller serves eth_call with a fixed payload.
type rawCaller struct {
	mu    sync.Mutex
	calls int
	resp  []byte
}

func (c *rawCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.resp, nil
}

type fakeSender struct {
	mu       sync.Mutex
	chainID  uint64
	estimate uint64
	gasLimit uint64
	hash     string
	sendErr  error
	sent     int
}

func (s *fakeSender) ChainID(context.Context) (uint64, error) {
	return s.chainID, nil
}

func (s *fakeSender) EstimateGas(context.Context, model.CallSpec) (uint64, error) {
	return s.estimate, nil
}

func (s *fakeSender) Send(_ context.Context, _ model.CallSpec, gasLimit uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	s.gasLimit = gasLimit
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return s.hash, nil
}

// fakeReceipts replays statuses; the last one repeats.
type fakeReceipts struct {
	mu       sync.Mutex
	statuses []*uint64
	err      error
	lookups  int
}

func status(v uint64) *uint64 { return &v }

func (r *fakeReceipts) ReceiptStatus(context.Context, string) (*uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.statuses) == 0 {
		return nil, nil
	}
	s := r.statuses[0]
	if len(r.statuses) > 1 {
		r.statuses = r.statuses[1:]
	}
	return s, nil
}

func testConfig() Config {
	return Config{
		RetryTimeout:  time.Millisecond,
		RetryCount:    3,
		MaxPolls:      3,
		PollDelay:     time.Millisecond,
		DefaultMaxAge: 3 * time.Second,
		GasIncrease:   130,
		ClockInterval: 5 * time.Millisecond,
		ClockTicks:    1,
	}
}

type harness struct {
	engine   *Engine
	store    *store.Store
	registry *contract.Registry
	reader   *fakeReader
	clock    *fakeClock
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	registry, err := contract.NewDefaultRegistry()
	require.NoError(t, err)

	h := &harness{
		store:    store.New(testChain),
		registry: registry,
		reader:   newFakeReader(),
		clock:    newFakeClock(),
	}
	deps := Deps{
		Store:   h.store,
		Encoder: registry,
		Reader:  h.reader,
		Metrics: metrics.New(nil),
		Now:     h.clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.engine, err = New(testConfig(), deps)
	require.NoError(t, err)
	return h
}

func totalSupply() model.CallSpec {
	return model.CallSpec{Address: tokenAddr, ABI: contract.ERC20, Method: "totalSupply"}
}

func decimals() model.CallSpec {
	return model.CallSpec{Address: tokenAddr, ABI: contract.ERC20, Method: "decimals"}
}

var errRPC = errors.New("rpc unavailable")

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
