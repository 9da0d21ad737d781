package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainstate/internal/config"
	"chainstate/internal/store"
)

const watchSubscription = "watch"

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Calls) == 0 {
		return fmt.Errorf("at least one call is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	calls, err := parseCalls(rt.registry, cfg.Calls)
	if err != nil {
		return err
	}

	rt.store.Observe(func(change store.Change) {
		switch act := change.Action.(type) {
		case store.CallSucceeded:
			logger.Info("call loaded",
				zap.Uint64("chain_id", act.ChainID),
				zap.String("key", string(act.Key)),
				zap.Any("value", act.Value),
			)
		case store.CallFailed:
			logger.Warn("call failed",
				zap.Uint64("chain_id", act.ChainID),
				zap.String("key", string(act.Key)),
				zap.String("error", act.Error),
			)
		}
	})

	if cfg.MetricsAddr != "" {
		if err := serveMetrics(ctx, rt, cfg.MetricsAddr); err != nil {
			return err
		}
	}

	stopJournal := rt.startJournal()
	defer stopJournal()

	if err := rt.engine.AddSubscription(watchSubscription, calls, cfg.ClockTicks); err != nil {
		return err
	}

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("chain_id", rt.store.CurrentChain().ID),
		zap.Int("calls", len(calls)),
		zap.Duration("clock_interval", rt.engine.Config().ClockInterval),
		zap.Int("clock_ticks", rt.engine.Config().ClockTicks),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	return rt.engine.Run(ctx)
}

func serveMetrics(ctx context.Context, rt *runtime, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.promReg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		rt.logger.Info("serving metrics", zap.String("endpoint", addr))
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			rt.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}
