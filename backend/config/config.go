// Package config loads dashboard, trainer and ledger settings from .env files,
// an optional YAML file, CYBERLEDGER_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CYBERLEDGER_LEDGER_RPC_URL.
const EnvPrefix = "CYBERLEDGER"

var (
	ErrMissingPrivateKey = errors.New("ledger enabled but no private key configured")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

type Server struct {
	Listen      string `mapstructure:"listen"`
	FrontendDir string `mapstructure:"frontend_dir"`
}

type Log struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type Database struct {
	Path string `mapstructure:"path"`
}

type Artifacts struct {
	Dir string `mapstructure:"dir"`
}

type Auth struct {
	Enabled           bool          `mapstructure:"enabled"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	BootstrapUser     string        `mapstructure:"bootstrap_user"`
	BootstrapPassword string        `mapstructure:"bootstrap_password"`
}

// Ledger holds the chain collaborator settings. PrivateKey is never given a
// default; it comes from the environment or PrivateKeyFile.
type Ledger struct {
	Enabled             bool          `mapstructure:"enabled"`
	RPCURL              string        `mapstructure:"rpc_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	ContractAddress     string        `mapstructure:"contract_address"`
	ContractAddressFile string        `mapstructure:"contract_address_file"`
	ABIFile             string        `mapstructure:"abi_file"`
	PrivateKey          string        `mapstructure:"private_key"`
	PrivateKeyFile      string        `mapstructure:"private_key_file"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	MaxFeeGwei          int64         `mapstructure:"max_fee_gwei"`
	MaxPriorityFeeGwei  int64         `mapstructure:"max_priority_fee_gwei"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPoll         time.Duration `mapstructure:"receipt_poll"`
	RequestWait         time.Duration `mapstructure:"request_wait"`
	RetryMaxTries       uint          `mapstructure:"retry_max_tries"`
	RetryInitial        time.Duration `mapstructure:"retry_initial"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
	ReconcileMaxTries   int           `mapstructure:"reconcile_max_tries"`
	HealthInterval      time.Duration `mapstructure:"health_interval"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

type Training struct {
	Dataset       string  `mapstructure:"dataset"`
	TestSize      float64 `mapstructure:"test_size"`
	Seed          int64   `mapstructure:"seed"`
	Trees         int     `mapstructure:"trees"`
	ScalerFitFull bool    `mapstructure:"scaler_fit_full"`
	Synthesize    int     `mapstructure:"synthesize"`
}

type GeoIP struct {
	DatabasePath string `mapstructure:"database_path"`
}

type Webhook struct {
	DiscordURL  string `mapstructure:"discord_url"`
	DailyReport bool   `mapstructure:"daily_report"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Config is the complete settings tree.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Log       Log       `mapstructure:"log"`
	Database  Database  `mapstructure:"database"`
	Artifacts Artifacts `mapstructure:"artifacts"`
	Auth      Auth      `mapstructure:"auth"`
	Ledger    Ledger    `mapstructure:"ledger"`
	Training  Training  `mapstructure:"training"`
	GeoIP     GeoIP     `mapstructure:"geoip"`
	Webhook   Webhook   `mapstructure:"webhook"`
	Kafka     Kafka     `mapstructure:"kafka"`
}

// SetDefaults registers the built-in defaults on v. The ledger defaults target
// a local development chain (Ganache on 127.0.0.1:8545, chain id 1337).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.frontend_dir", "./frontend/dist")

	v.SetDefault("log.dir", "./logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("database.path", "cyberledger.db")
	v.SetDefault("artifacts.dir", "./artifacts")

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bootstrap_user", "admin")

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("ledger.chain_id", 1337)
	v.SetDefault("ledger.contract_address_file", "contract_address.txt")
	v.SetDefault("ledger.gas_limit", 300000)
	v.SetDefault("ledger.max_fee_gwei", 60)
	v.SetDefault("ledger.max_priority_fee_gwei", 2)
	v.SetDefault("ledger.receipt_timeout", 2*time.Minute)
	v.SetDefault("ledger.receipt_poll", time.Second)
	v.SetDefault("ledger.request_wait", 15*time.Second)
	v.SetDefault("ledger.retry_max_tries", 3)
	v.SetDefault("ledger.retry_initial", 500*time.Millisecond)
	v.SetDefault("ledger.reconcile_interval", time.Minute)
	v.SetDefault("ledger.reconcile_max_tries", 5)
	v.SetDefault("ledger.health_interval", 30*time.Second)
	v.SetDefault("ledger.cache_ttl", 5*time.Second)

	v.SetDefault("training.dataset", "cyber_dataset.csv")
	v.SetDefault("training.test_size", 0.2)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.trees", 100)
	v.SetDefault("training.scaler_fit_full", false)
	v.SetDefault("training.synthesize", 0)

	v.SetDefault("kafka.topic", "detections")
}

// RegisterFlags adds the flags shared by the server and the trainer.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("env-file", ".env", "dotenv file loaded before the environment is read")
	fs.String("artifacts-dir", "", "directory holding the trained model artifacts")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// Load resolves the configuration. Precedence, lowest first: defaults, YAML
// file, environment (including the dotenv file), explicitly set flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	envFile, _ := flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	BindEnv(v)

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	bindFlag(v, flags, "artifacts.dir", "artifacts-dir")
	bindFlag(v, flags, "log.level", "log-level")

	return Decode(v)
}

// Decode unmarshals v into a Config, resolves secret files and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Broker lists come in as a comma separated string from the environment.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) resolveSecrets() error {
	if c.Ledger.PrivateKey == "" && c.Ledger.PrivateKeyFile != "" {
		data, err := os.ReadFile(c.Ledger.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to read private key file: %w", err)
		}
		c.Ledger.PrivateKey = strings.TrimSpace(string(data))
	}

	if c.Ledger.ContractAddress == "" && c.Ledger.ContractAddressFile != "" {
		data, err := os.ReadFile(c.Ledger.ContractAddressFile)
		if err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("failed to read contract address file: %w", err)
		}
		c.Ledger.ContractAddress = strings.TrimSpace(string(data))
	}

	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("%w: training.test_size must be in (0,1), got %v", ErrInvalidConfig, c.Training.TestSize)
	}
	if c.Training.Trees <= 0 {
		return fmt.Errorf("%w: training.trees must be positive", ErrInvalidConfig)
	}
	if c.Ledger.Enabled && c.Ledger.ChainID <= 0 {
		return fmt.Errorf("%w: ledger.chain_id must be positive", ErrInvalidConfig)
	}

	return nil
}

// LedgerReady reports whether the ledger section carries everything needed to
// sign transactions. A missing key leaves the dashboard running with the
// ledger disabled.
func (c *Config) LedgerReady() error {
	if c.Ledger.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	if c.Ledger.ContractAddress == "" {
		return fmt.Errorf("%w: ledger.contract_address is empty", ErrInvalidConfig)
	}

	return nil
}

func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, flag string) {
	if f := flags.Lookup(flag); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

// BindEnv enables CYBERLEDGER_* overrides. Keys without a default are bound
// explicitly, otherwise Unmarshal would never see them.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"auth.jwt_secret",
		"auth.bootstrap_password",
		"ledger.private_key",
		"ledger.private_key_file",
		"ledger.contract_address",
		"ledger.abi_file",
		"geoip.database_path",
		"webhook.discord_url",
		"webhook.daily_report",
		"kafka.brokers",
	} {
		_ = v.BindEnv(key)
	}
}
