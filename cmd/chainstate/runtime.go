package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"chainstate/internal/chain"
	"chainstate/internal/config"
	"chainstate/internal/contract"
	"chainstate/internal/engine"
	"chainstate/internal/metrics"
	"chainstate/internal/model"
	"chainstate/internal/storage"
	"chainstate/internal/storage/postgres"
	"chainstate/internal/store"
)

// runtime is the wiring shared by every command.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *chain.Client
	registry *contract.Registry
	store    *store.Store
	engine   *engine.Engine
	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	journal  *storage.Journal
	acct     *chain.Account
	closers  []func()
}

type runtimeOptions struct {
	withAccount bool
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger, opts runtimeOptions) (*runtime, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	rt := &runtime{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	rt.client = client
	rt.closers = append(rt.closers, client.Close)

	chainCtx := cfg.Chain()
	nodeChainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if chainCtx.ID == 0 {
		chainCtx.ID = nodeChainID
	} else if chainCtx.ID != nodeChainID {
		logger.Warn("rpc serves a different chain",
			zap.Uint64("configured", chainCtx.ID),
			zap.Uint64("node", nodeChainID),
		)
	}

	if rt.registry, err = buildRegistry(cfg); err != nil {
		return nil, err
	}

	rt.promReg = prometheus.NewRegistry()
	rt.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(rt.promReg)
	rt.store = store.New(chainCtx)

	if err := rt.openJournal(ctx); err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Store:    rt.store,
		Encoder:  rt.registry,
		Reader:   contract.NewReader(rt.registry, client),
		Receipts: client,
		Logger:   logger,
		Metrics:  rt.metrics,
	}
	if opts.withAccount {
		if cfg.PrivateKey == "" {
			return nil, fmt.Errorf("private key is required")
		}
		account, err := chain.NewAccount(cfg.PrivateKey, client, rt.registry)
		if err != nil {
			return nil, err
		}
		rt.acct = account
		deps.Sender = account
		deps.Signer = account
	}

	if rt.engine, err = engine.New(cfg.Engine(), deps); err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

func (rt *runtime) openJournal(ctx context.Context) error {
	var sink storage.Storage
	switch {
	case rt.cfg.PGDSN != "":
		pg, err := postgres.NewStore(ctx, rt.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = pg
	case rt.cfg.Journal != "":
		jsonl := storage.NewJsonlStorage(rt.cfg.Journal)
		rt.closers = append(rt.closers, func() {
			if err := jsonl.Close(); err != nil {
				rt.logger.Warn("close journal", zap.Error(err))
			}
		})
		sink = jsonl
	default:
		return nil
	}

	rt.journal = storage.NewJournal(sink, rt.cfg.JournalFlush, rt.logger)
	rt.store.Observe(rt.journal.Observe)
	return nil
}

func (rt *runtime) account() (*chain.Account, error) {
	if rt.acct == nil {
		return nil, fmt.Errorf("no account configured")
	}
	return rt.acct, nil
}

// startJournal runs the journal until the returned stop is called.
func (rt *runtime) startJournal() (stop func()) {
	if rt.journal == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.journal.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func buildRegistry(cfg config.Config) (*contract.Registry, error) {
	registry, err := contract.NewDefaultRegistry()
	if err != nil {
		return nil, err
	}

	for name, path := range cfg.ABIFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read abi %s: %w", name, err)
		}
		if err := registry.RegisterABI(name, string(raw)); err != nil {
			return nil, err
		}
	}

	for address, abiName := range cfg.Contracts {
		if err := registry.RegisterContract(address, abiName); err != nil {
			return nil, err
		}
	}

	for target, raw := range cfg.Scale {
		abiName, method, found := strings.Cut(target, ".")
		if !found || abiName == "" || method == "" {
			return nil, fmt.Errorf("invalid scale target %q, want abi.method", target)
		}
		decimals, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid decimals for %s: %w", target, err)
		}
		registry.RegisterFormatter(abiName, method, contract.ScaleFormatter(uint8(decimals)))
	}

	return registry, nil
}

func parseCalls(registry *contract.Registry, inputs []string) ([]model.CallSpec, error) {
	calls := make([]model.CallSpec, 0, len(inputs))
	for _, input := range inputs {
		call, err := registry.ParseCallSpec(input)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}
