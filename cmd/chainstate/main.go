package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "chainstate",
		Short:        "Deduplicated contract reads, transaction tracking and signatures",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "RPC URL")
	root.PersistentFlags().Uint64("chain-id", 0, "expected chain id, 0 means ask the node")
	root.PersistentFlags().String("chain-name", "", "chain name")
	root.PersistentFlags().StringArray("abi-file", nil, "extra ABI as name=path (repeatable)")
	root.PersistentFlags().StringArray("contract", nil, "bind a contract to an ABI as address=abi (repeatable)")
	root.PersistentFlags().StringArray("scale", nil, "scale integer results as abi.method=decimals (repeatable)")
	root.PersistentFlags().String("journal", "", "lifecycle journal JSONL path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN for the lifecycle journal")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a set of reads fresh and log their values",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringArray("call", nil, "read as address:abi:method[:arg,...] (repeatable)")
	watchCmd.Flags().Duration("clock-interval", 500*time.Millisecond, "wall time between clock ticks")
	watchCmd.Flags().Int("clock-ticks", 20, "ticks between refreshes")
	watchCmd.Flags().Duration("default-max-age", 3*time.Second, "freshness window of reads")
	watchCmd.Flags().Int("retry-count", 10, "attempts per failing read")
	watchCmd.Flags().Duration("retry-timeout", 500*time.Millisecond, "linear backoff unit between read attempts")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	root.AddCommand(watchCmd)

	callCmd := &cobra.Command{
		Use:   "call <address:abi:method[:arg,...]>...",
		Short: "Read contract values once",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCall,
	}
	callCmd.Flags().Int("retry-count", 10, "attempts per failing read")
	callCmd.Flags().Duration("retry-timeout", 500*time.Millisecond, "linear backoff unit between read attempts")
	root.AddCommand(callCmd)

	sendCmd := &cobra.Command{
		Use:   "send <address:abi:method[:arg,...]>",
		Short: "Submit a transaction and wait for its receipt",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}
	sendCmd.Flags().String("private-key", "", "hex private key of the sender")
	sendCmd.Flags().Uint64("gas-increase", 130, "percentage applied to the gas estimate")
	sendCmd.Flags().Int("max-polls", 300, "receipt lookups before the transaction expires")
	sendCmd.Flags().Duration("poll-delay", 5*time.Second, "wait before each receipt lookup")
	root.AddCommand(sendCmd)

	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message or EIP-712 typed data",
		RunE:  runSign,
	}
	signCmd.Flags().String("private-key", "", "hex private key of the signer")
	signCmd.Flags().String("message", "", "message to sign")
	signCmd.Flags().String("id", "cli", "request id of a message signature")
	signCmd.Flags().String("typed-data", "", "path to EIP-712 typed data JSON")
	signCmd.Flags().Bool("sign-in", false, "record the message as a sign-in signature")
	root.AddCommand(signCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
