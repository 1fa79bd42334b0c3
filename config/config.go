package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `mapstructure:"pretty"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"required,oneof=memory postgres"`
	URL             string `mapstructure:"url" validate:"required_if=Driver postgres"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database" validate:"required_with=MongoURI"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	// Bearer token guarding the admin routes; admin routes are disabled when empty
	AdminToken string `mapstructure:"admin_token"`
}

type OpenObserveConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Credential  string `mapstructure:"credential"`
	ServiceName string `mapstructure:"service_name"`
	Env         string `mapstructure:"env"`
}

type EventBusConfig struct {
	BufferSize int `mapstructure:"buffer_size" validate:"min=0"`
}

// HostConfig drives the in-process execution substrate.
type HostConfig struct {
	StartHeight    uint64            `mapstructure:"start_height"`
	BlockInterval  time.Duration     `mapstructure:"block_interval"`
	// Hex encoded secp256k1 root key of the local MPC signer
	MpcRootKey     string            `mapstructure:"mpc_root_key" validate:"omitempty,hexadecimal"`
	// Starting FT balances of the local token contract, keyed by account
	FTBalances     map[string]string `mapstructure:"ft_balances"`
	// Starting native balances, keyed by account
	NativeBalances map[string]string `mapstructure:"native_balances"`
}

// RelayerConfig seeds the relayer state on first start. Amounts are decimal strings,
// gas values are in TGas.
type RelayerConfig struct {
	Manager               string            `mapstructure:"manager" validate:"required"`
	RelayerAccount        string            `mapstructure:"relayer_account" validate:"required"`
	OverflowRecipient     string            `mapstructure:"overflow_recipient" validate:"required"`
	InitialGasPool        string            `mapstructure:"initial_gas_pool" validate:"omitempty,number"`
	MinGasPool            string            `mapstructure:"min_gas_pool" validate:"required,number"`
	MaxGasPool            string            `mapstructure:"max_gas_pool" validate:"required,number"`
	BaseFee               string            `mapstructure:"base_fee" validate:"required,number"`
	MaxGasTGas            uint64            `mapstructure:"max_gas_tgas" validate:"min=1,max=300"`
	DefaultGasTGas        uint64            `mapstructure:"default_gas_tgas" validate:"min=1,max=300"`
	RetryBufferTGas       uint64            `mapstructure:"retry_buffer_tgas"`
	ChunkSize             int               `mapstructure:"chunk_size" validate:"min=1,max=5"`
	AuthContract          string            `mapstructure:"auth_contract"`
	PaymentFTContract     string            `mapstructure:"payment_ft_contract"`
	MinFTDeposit          string            `mapstructure:"min_ft_deposit" validate:"omitempty,number"`
	ChainMpcMapping       map[string]string `mapstructure:"chain_mpc_mapping"`
	Whitelist             []string          `mapstructure:"whitelist"`
	RetryInterval         time.Duration     `mapstructure:"retry_interval"`
	RetryBatchSize        int               `mapstructure:"retry_batch_size" validate:"min=0,max=100"`
	InFlightRetention     time.Duration     `mapstructure:"in_flight_retention"`
}

type Config struct {
	Environment string            `mapstructure:"environment"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Server      ServerConfig      `mapstructure:"server"`
	OpenObserve OpenObserveConfig `mapstructure:"openobserve"`
	EventBus    EventBusConfig    `mapstructure:"event_bus"`
	Host        HostConfig        `mapstructure:"host"`
	Relayer     RelayerConfig     `mapstructure:"relayer"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.mongo_collection", "relayer_events")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("event_bus.buffer_size", 64)
	v.SetDefault("host.block_interval", time.Second)
	v.SetDefault("relayer.max_gas_tgas", 250)
	v.SetDefault("relayer.default_gas_tgas", 100)
	v.SetDefault("relayer.retry_buffer_tgas", 10)
	v.SetDefault("relayer.chunk_size", 5)
	v.SetDefault("relayer.retry_interval", 30*time.Second)
	v.SetDefault("relayer.retry_batch_size", 10)
	v.SetDefault("relayer.in_flight_retention", 10*time.Minute)
}

// Load reads <config_path>/<environment>.json into GlobalConfig. Environment variables
// prefixed with RELAYER_ override file values, e.g. RELAYER_DATABASE_URL.
func Load(environment string) error {
	cfg, err := LoadFrom(viper.GetString("config_path"), environment)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

func LoadFrom(configPath string, environment string) (*Config, error) {
	if configPath == "" {
		configPath = "data/config"
	}
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(environment)
	v.SetConfigType("json")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("RELAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s/%s.json: %w", configPath, environment, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Environment == "" {
		cfg.Environment = environment
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
