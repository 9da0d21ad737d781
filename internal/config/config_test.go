package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.RetryTimeout)
	assert.Equal(t, 10, cfg.RetryCount)
	assert.Equal(t, 300, cfg.MaxPolls)
	assert.Equal(t, 5*time.Second, cfg.PollDelay)
	assert.Equal(t, 3*time.Second, cfg.DefaultMaxAge)
	assert.Equal(t, uint64(130), cfg.GasIncrease)
	assert.Equal(t, 500*time.Millisecond, cfg.ClockInterval)
	assert.Equal(t, 20, cfg.ClockTicks)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.Calls)

	ec := cfg.Engine()
	assert.Equal(t, cfg.RetryCount, ec.RetryCount)
	assert.Equal(t, cfg.GasIncrease, ec.GasIncrease)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chainstate.yaml")
	content := `
rpc: http://from-file
chain-id: 97
chain-name: bsc-testnet
retry-count: 4
call:
  - 0x1111111111111111111111111111111111111111:ERC20:totalSupply
  - 0x1111111111111111111111111111111111111111:ERC20:balanceOf:0x2222222222222222222222222222222222222222
scale:
  - ERC20.totalSupply=6
contract:
  - 0x1111111111111111111111111111111111111111=ERC20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CHAINSTATE_RETRY_TIMEOUT", "250ms")
	t.Setenv("CHAINSTATE_GAS_INCREASE", "150")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://from-flag", "--log-level", "debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://from-flag", cfg.RPCURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(97), cfg.ChainID)
	assert.Equal(t, 4, cfg.RetryCount)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryTimeout)
	assert.Equal(t, uint64(150), cfg.GasIncrease)
	assert.Len(t, cfg.Calls, 2)
	assert.Equal(t, map[string]string{"ERC20.totalSupply": "6"}, cfg.Scale)
	assert.Equal(t, map[string]string{"0x1111111111111111111111111111111111111111": "ERC20"}, cfg.Contracts)

	chain := cfg.Chain()
	assert.Equal(t, "bsc-testnet", chain.Name)
	assert.Equal(t, uint64(97), chain.ID)
	assert.Equal(t, "http://from-flag", chain.RPC)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestCallsFromEnvAreSemicolonSeparated(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHAINSTATE_CALL", "0x1111111111111111111111111111111111111111:ERC20:allowance:0x2,0x3; 0x1111111111111111111111111111111111111111:ERC20:decimals")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Len(t, cfg.Calls, 2)
	assert.Equal(t, "0x1111111111111111111111111111111111111111:ERC20:allowance:0x2,0x3", cfg.Calls[0])
}

// chdir keeps Load from picking up a config.yaml in the package directory.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
