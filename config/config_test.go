package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localConfig = `{
  "log": {"level": "debug"},
  "database": {"driver": "memory"},
  "relayer": {
    "manager": "manager.testnet",
    "relayer_account": "relayer.testnet",
    "overflow_recipient": "treasury.testnet",
    "initial_gas_pool": "1000000",
    "min_gas_pool": "1000",
    "max_gas_pool": "5000000",
    "base_fee": "100",
    "chunk_size": 3,
    "chain_mpc_mapping": {"ethereum": "mpc.testnet"},
    "retry_interval": "5s"
  }
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o600))
	return dir
}

func TestLoadFrom(t *testing.T) {
	dir := writeConfig(t, "local", localConfig)
	cfg, err := config.LoadFrom(dir, "local")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Relayer.ChunkSize)
	assert.Equal(t, uint64(250), cfg.Relayer.MaxGasTGas)
	assert.Equal(t, 5*time.Second, cfg.Relayer.RetryInterval)
	assert.Equal(t, "mpc.testnet", cfg.Relayer.ChainMpcMapping["ethereum"])
}

func TestLoadFromEnvOverride(t *testing.T) {
	dir := writeConfig(t, "local", localConfig)
	t.Setenv("RELAYER_SERVER_PORT", "9090")
	t.Setenv("RELAYER_RELAYER_BASE_FEE", "250")
	cfg, err := config.LoadFrom(dir, "local")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "250", cfg.Relayer.BaseFee)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing manager", content: `{"relayer": {"relayer_account": "r", "overflow_recipient": "o", "min_gas_pool": "1", "max_gas_pool": "2", "base_fee": "1"}}`},
		{name: "chunk size too large", content: `{"relayer": {"manager": "m", "relayer_account": "r", "overflow_recipient": "o", "min_gas_pool": "1", "max_gas_pool": "2", "base_fee": "1", "chunk_size": 6}}`},
		{name: "postgres without url", content: `{"database": {"driver": "postgres"}, "relayer": {"manager": "m", "relayer_account": "r", "overflow_recipient": "o", "min_gas_pool": "1", "max_gas_pool": "2", "base_fee": "1"}}`},
		{name: "non numeric fee", content: `{"relayer": {"manager": "m", "relayer_account": "r", "overflow_recipient": "o", "min_gas_pool": "1", "max_gas_pool": "2", "base_fee": "ten"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, "test", tt.content)
			_, err := config.LoadFrom(dir, "test")
			require.Error(t, err)
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := config.LoadFrom(t.TempDir(), "nowhere")
	require.Error(t, err)
}
