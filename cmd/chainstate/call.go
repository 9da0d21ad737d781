package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainstate/internal/config"
	"chainstate/internal/engine"
	"chainstate/internal/model"
)

type callResult struct {
	Call   model.CallSpec   `json:"call"`
	Record model.CallRecord `json:"record"`
}

func runCall(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	calls, err := parseCalls(rt.registry, args)
	if err != nil {
		return err
	}

	stopJournal := rt.startJournal()
	defer stopJournal()

	for _, call := range calls {
		if err := rt.engine.IssueRead(ctx, engine.ReadRequest{Call: call, ForceCall: true}); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, call := range calls {
		rec, _ := rt.engine.SelectCall(call)
		if rec.Status == model.CallError {
			logger.Warn("call failed", zap.String("method", call.Method), zap.String("error", rec.Error))
		}
		if err := enc.Encode(callResult{Call: call, Record: rec}); err != nil {
			return err
		}
	}
	return nil
}
