package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))

	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t, "--env-file", ""))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, int64(1337), cfg.Ledger.ChainID)
	assert.Equal(t, uint64(300000), cfg.Ledger.GasLimit)
	assert.Equal(t, int64(60), cfg.Ledger.MaxFeeGwei)
	assert.Equal(t, int64(2), cfg.Ledger.MaxPriorityFeeGwei)
	assert.Equal(t, 15*time.Second, cfg.Ledger.RequestWait)
	assert.Equal(t, 0.2, cfg.Training.TestSize)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 100, cfg.Training.Trees)
	assert.False(t, cfg.Training.ScalerFitFull)
	assert.Empty(t, cfg.Ledger.PrivateKey)
}

func TestLoadEnvironmentAndFile(t *testing.T) {
	dir := t.TempDir()

	yaml := []byte("server:\n  listen: \":9090\"\ntraining:\n  trees: 25\n")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, yaml, 0o600))

	keyPath := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyPath, []byte("  deadbeef\n"), 0o600))

	t.Setenv("CYBERLEDGER_LEDGER_PRIVATE_KEY_FILE", keyPath)
	t.Setenv("CYBERLEDGER_LEDGER_CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("CYBERLEDGER_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(newFlags(t, "--env-file", "", "--config", cfgPath, "--artifacts-dir", "/tmp/art"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 25, cfg.Training.Trees)
	assert.Equal(t, "deadbeef", cfg.Ledger.PrivateKey)
	assert.Equal(t, "/tmp/art", cfg.Artifacts.Dir)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.LedgerReady())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CYBERLEDGER_AUTH_JWT_SECRET=from-dotenv\n"), 0o600))

	t.Cleanup(func() { os.Unsetenv("CYBERLEDGER_AUTH_JWT_SECRET") })

	cfg, err := Load(newFlags(t, "--env-file", envPath))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidateRejectsBadTestSize(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("training.test_size", 1.5)

	_, err := Decode(v)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLedgerReadyRequiresKey(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.LedgerReady(), ErrMissingPrivateKey)
}
