package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainstate/internal/config"
	"chainstate/internal/engine"
	"chainstate/internal/model"
)

func runSend(cmd *cobra.Command, args []string) error {
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

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{withAccount: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	call, err := rt.registry.ParseCallSpec(args[0])
	if err != nil {
		return err
	}

	stopJournal := rt.startJournal()
	defer stopJournal()

	logger.Info("send start",
		zap.String("address", call.Address),
		zap.String("method", call.Method),
		zap.Uint64("gas_increase", rt.engine.Config().GasIncrease),
	)

	ref, err := rt.engine.Transact(ctx, engine.TxRequest{Call: call})
	if err != nil {
		return err
	}
	tx, ok := rt.engine.Transaction(ref)
	if !ok {
		return fmt.Errorf("transaction %d not recorded", ref.ID)
	}

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(tx); err != nil {
		return err
	}
	if tx.Status != model.TxMined {
		return fmt.Errorf("transaction %s: %s", tx.Status, tx.Error)
	}
	return nil
}
