package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chainstate/internal/metrics"
	"chainstate/internal/model"
	"chainstate/internal/signing"
	"chainstate/internal/store"
)

// Config holds the tunables of the orchestrator, the clock and the tracker.
type Config struct {
	// RetryTimeout is the linear backoff unit between read attempts.
	RetryTimeout time.Duration
	// RetryCount is the total number of attempts of a failing read.
	RetryCount int
	// MaxPolls bounds receipt lookups before a transaction expires.
	MaxPolls int
	// PollDelay is the wait before each receipt lookup.
	PollDelay time.Duration
	// DefaultMaxAge is the freshness window of reads that set none.
	DefaultMaxAge time.Duration
	// GasIncrease is the percentage applied to gas estimates.
	GasIncrease uint64
	// ClockInterval is the wall time between ticks in Run.
	ClockInterval time.Duration
	// ClockTicks is the refresh interval of subscriptions that set none.
	ClockTicks int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		RetryTimeout:  500 * time.Millisecond,
		RetryCount:    10,
		MaxPolls:      300,
		PollDelay:     5 * time.Second,
		DefaultMaxAge: 3 * time.Second,
		GasIncrease:   130,
		ClockInterval: 500 * time.Millisecond,
		ClockTicks:    20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = def.RetryTimeout
	}
	if c.RetryCount <= 0 {
		c.RetryCount = def.RetryCount
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = def.MaxPolls
	}
	if c.PollDelay <= 0 {
		c.PollDelay = def.PollDelay
	}
	if c.DefaultMaxAge <= 0 {
		c.DefaultMaxAge = def.DefaultMaxAge
	}
	if c.GasIncrease == 0 {
		c.GasIncrease = def.GasIncrease
	}
	if c.ClockInterval <= 0 {
		c.ClockInterval = def.ClockInterval
	}
	if c.ClockTicks <= 0 {
		c.ClockTicks = def.ClockTicks
	}
	return c
}

// Encoder packs a call into calldata. It must be deterministic: the result
// is part of the call key.
type Encoder interface {
	EncodeCall(address, abiName, method string, args []interface{}) ([]byte, error)
}

// Reader performs a contract read and returns the decoded value.
type Reader interface {
	Read(ctx context.Context, call model.CallSpec) (interface{}, error)
}

// Sender estimates and broadcasts contract writes for the connected account.
type Sender interface {
	ChainID(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, call model.CallSpec) (uint64, error)
	// Send signs and broadcasts the call with the given gas limit and
	// returns the transaction hash.
	Send(ctx context.Context, call model.CallSpec, gasLimit uint64) (string, error)
}

// ReceiptSource looks up receipt status. A nil status means the transaction
// is not mined yet.
type ReceiptSource interface {
	ReceiptStatus(ctx context.Context, txHash string) (*uint64, error)
}

// Deps bundles the store and the external capabilities. Sender, Receipts
// and Signer are optional; the operations that need them fail as data.
type Deps struct {
	Store    *store.Store
	Encoder  Encoder
	Reader   Reader
	Sender   Sender
	Receipts ReceiptSource
	Signer   signing.Signer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine coordinates reads, subscriptions, transactions and signatures on
// top of a store.
type Engine struct {
	cfg      Config
	store    *store.Store
	encoder  Encoder
	reader   Reader
	sender   Sender
	receipts ReceiptSource
	signing  *signing.Coordinator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	inflight singleflight.Group
	tickMu   sync.Mutex
	requests chan Request
	effects  sync.WaitGroup
}

// New builds an Engine. Zero config fields take their default values.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if deps.Encoder == nil {
		return nil, fmt.Errorf("encoder is nil")
	}
	if deps.Reader == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:      cfg.withDefaults(),
		store:    deps.Store,
		encoder:  deps.Encoder,
		reader:   deps.Reader,
		sender:   deps.Sender,
		receipts: deps.Receipts,
		logger:   logger,
		metrics:  m,
		now:      now,
		requests: make(chan Request, 64),
	}
	if deps.Signer != nil {
		e.signing = signing.NewCoordinator(deps.Store, deps.Signer, logger, m)
	}
	return e, nil
}

// Config returns the effective tunables.
func (e *Engine) Config() Config {
	return e.cfg
}

// Store returns the underlying store for direct selector access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// SelectChain makes chain the current chain. Partitions of other chains
// are kept.
func (e *Engine) SelectChain(chain model.ChainContext) error {
	_, err := e.store.Dispatch(store.ChainSelected{Chain: chain})
	return err
}

func (e *Engine) dispatch(a store.Action) {
	if _, err := e.store.Dispatch(a); err != nil {
		e.logger.Error("dispatch failed", zap.String("action", fmt.Sprintf("%T", a)), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
