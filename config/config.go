package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	ServerPort  int    `mapstructure:"SERVER_PORT"`
	GRPCPort    int    `mapstructure:"GRPC_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	DBUsername     string `mapstructure:"DB_USERNAME"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBName         string `mapstructure:"DB_NAME"`
	SSLMode        string `mapstructure:"SSLMODE"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	JWTSecret           string `mapstructure:"JWT_SECRET"`
	TrustGatewayHeaders bool   `mapstructure:"TRUST_GATEWAY_HEADERS"`

	PolicyPath string `mapstructure:"POLICY_PATH"`
	BTCNetwork string `mapstructure:"BTC_NETWORK"`

	EthRPCURL         string `mapstructure:"ETH_RPC_URL"`
	EthChainID        int64  `mapstructure:"ETH_CHAIN_ID"`
	HotWalletMnemonic string `mapstructure:"HOT_WALLET_MNEMONIC"`
	HotWalletAccounts int    `mapstructure:"HOT_WALLET_ACCOUNTS"`

	RemoteExecutorURL   string `mapstructure:"REMOTE_EXECUTOR_URL"`
	RemoteExecutorToken string `mapstructure:"REMOTE_EXECUTOR_TOKEN"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	ExecutorTimeout   time.Duration `mapstructure:"EXECUTOR_TIMEOUT"`
	VerifierTimeout   time.Duration `mapstructure:"VERIFIER_TIMEOUT"`
	NotifyTimeout     time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	ExecutionLockTTL  time.Duration `mapstructure:"EXECUTION_LOCK_TTL"`
	HotWalletCacheTTL time.Duration `mapstructure:"HOT_WALLET_CACHE_TTL"`
}

var defaults = map[string]interface{}{
	"ENV":                   "development",
	"SERVER_PORT":           8080,
	"GRPC_PORT":             9090,
	"LOG_LEVEL":             "info",
	"STORE_DRIVER":          "postgres",
	"DB_USERNAME":           "",
	"DB_PASSWORD":           "",
	"DB_HOST":               "localhost",
	"DB_PORT":               "5432",
	"DB_NAME":               "custody",
	"SSLMODE":               "disable",
	"MIGRATIONS_PATH":       "db/migrations",
	"REDIS_HOST":            "",
	"REDIS_PORT":            "6379",
	"REDIS_PASSWORD":        "",
	"JWT_SECRET":            "",
	"TRUST_GATEWAY_HEADERS": false,
	"POLICY_PATH":           "",
	"BTC_NETWORK":           "mainnet",
	"ETH_RPC_URL":           "",
	"ETH_CHAIN_ID":          1,
	"HOT_WALLET_MNEMONIC":   "",
	"HOT_WALLET_ACCOUNTS":   1,
	"REMOTE_EXECUTOR_URL":   "",
	"REMOTE_EXECUTOR_TOKEN": "",
	"KAFKA_BROKERS":         "",
	"KAFKA_TOPIC":           "settlement-events",
	"EXECUTOR_TIMEOUT":      "30s",
	"VERIFIER_TIMEOUT":      "10s",
	"NOTIFY_TIMEOUT":        "5s",
	"EXECUTION_LOCK_TTL":    "2m",
	"HOT_WALLET_CACHE_TTL":  "30s",
}

// LoadConfig reads <path>/.env when present and lets the environment override it.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "."
	}

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so register every key.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Unable to read config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	if config.ServerPort == 0 {
		return fmt.Errorf("server port must be specified")
	}
	switch config.StoreDriver {
	case "postgres":
		if config.DBUsername == "" || config.DBPassword == "" {
			return fmt.Errorf("database credentials must be provided")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", config.StoreDriver)
	}
	if config.JWTSecret == "" && !config.TrustGatewayHeaders {
		return fmt.Errorf("either JWT_SECRET or TRUST_GATEWAY_HEADERS must be set")
	}
	if config.ExecutorTimeout <= 0 {
		return fmt.Errorf("executor timeout must be positive, got %s", config.ExecutorTimeout)
	}
	if config.VerifierTimeout <= 0 {
		return fmt.Errorf("verifier timeout must be positive, got %s", config.VerifierTimeout)
	}
	if config.ExecutionLockTTL <= config.ExecutorTimeout {
		return fmt.Errorf("execution lock ttl (%s) must exceed executor timeout (%s)", config.ExecutionLockTTL, config.ExecutorTimeout)
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUsername, c.DBPassword, c.DBName, c.DBPort, c.SSLMode)
}

func (c *Config) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

func (c *Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Redact masks secrets for logging.
func (c *Config) Redact() Config {
	redacted := *c
	redacted.DBPassword = "****"
	redacted.RedisPassword = "****"
	redacted.JWTSecret = "****"
	redacted.HotWalletMnemonic = "****"
	redacted.RemoteExecutorToken = "****"
	return redacted
}
