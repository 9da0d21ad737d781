package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"chainstate/internal/config"
	"chainstate/internal/model"
	"chainstate/internal/signing"
)

func runSign(cmd *cobra.Command, _ []string) error {
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

	message, _ := cmd.Flags().GetString("message")
	typedPath, _ := cmd.Flags().GetString("typed-data")
	id, _ := cmd.Flags().GetString("id")
	signIn, _ := cmd.Flags().GetBool("sign-in")
	if (message == "") == (typedPath == "") {
		return fmt.Errorf("exactly one of --message or --typed-data is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, runtimeOptions{withAccount: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	stopJournal := rt.startJournal()
	defer stopJournal()

	coordinator, err := rt.engine.Signing()
	if err != nil {
		return err
	}
	chainID := rt.store.CurrentChain().ID
	enc := json.NewEncoder(cmd.OutOrStdout())

	if typedPath != "" {
		raw, err := os.ReadFile(typedPath)
		if err != nil {
			return fmt.Errorf("read typed data: %w", err)
		}
		var data apitypes.TypedData
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode typed data: %w", err)
		}
		key, err := coordinator.SignTypedData(ctx, data)
		if err != nil {
			return err
		}
		rec, _ := rt.store.TypedSign(chainID, key)
		return emitSign(enc, rec.State, rec.Error, rec)
	}

	user, err := signerAddress(ctx, rt)
	if err != nil {
		return err
	}
	if signIn {
		if err := coordinator.SignIn(ctx, signing.SignInRequest{ID: id, UserAddress: user, Message: message}); err != nil {
			return err
		}
		rec, _ := rt.store.SiweSign(chainID, id, user)
		return emitSign(enc, rec.State, rec.Error, rec)
	}
	if err := coordinator.SignMessage(ctx, id, user, message); err != nil {
		return err
	}
	rec, _ := rt.store.PlainSign(chainID, id, user)
	return emitSign(enc, rec.State, rec.Error, rec)
}

func signerAddress(ctx context.Context, rt *runtime) (string, error) {
	account, err := rt.account()
	if err != nil {
		return "", err
	}
	return account.Address(ctx)
}

func emitSign(enc *json.Encoder, state model.SignState, errMsg string, rec interface{}) error {
	if err := enc.Encode(rec); err != nil {
		return err
	}
	if state != model.SignSigned {
		return fmt.Errorf("signature %s: %s", state, errMsg)
	}
	return nil
}
