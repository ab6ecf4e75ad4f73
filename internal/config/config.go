package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "rebate-sync"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

var (
	ErrMissingBackendURL = errors.New("backend base_url is required")
	ErrMissingBackendKey = errors.New("backend admin_api_key is required")
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	TestMode                bool                      `mapstructure:"test_mode"`
	TestLookback            time.Duration             `mapstructure:"test_lookback"`
	TradeDateTimezone       string                    `mapstructure:"trade_date_timezone"`
	DedupTimezone           string                    `mapstructure:"dedup_timezone"`
	Backend                 BackendConfig             `mapstructure:"backend"`
	SyncState               SyncStateConfig           `mapstructure:"sync_state"`
	CycleLock               CycleLockConfig           `mapstructure:"cycle_lock"`
	Exchanges               map[string]ExchangeConfig `mapstructure:"exchanges"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
}

type BackendConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AdminAPIKey string        `mapstructure:"admin_api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SyncStateConfig struct {
	Driver   string `mapstructure:"driver"` // file | redis
	FilePath string `mapstructure:"file_path"`
	RedisKey string `mapstructure:"redis_key"`
}

type CycleLockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type NatsJetstreamConfig struct {
	URL             string        `mapstructure:"url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type ExchangeConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ExchangeID        int64         `mapstructure:"exchange_id"` // id of the exchange in the backend ledger
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	Passphrase        string        `mapstructure:"passphrase"`
	BaseURL           string        `mapstructure:"base_url"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
	CycleTimeout      time.Duration `mapstructure:"cycle_timeout"`
	WindowCap         time.Duration `mapstructure:"window_cap"` // 0 keeps the adapter default
	PageLimit         int           `mapstructure:"page_limit"`
	MaxPages          int           `mapstructure:"max_pages"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "info")
	viper.SetDefault("graceful_shutdown_timeout", 10*time.Second)
	viper.SetDefault("test_mode", false)
	viper.SetDefault("test_lookback", 24*time.Hour)
	viper.SetDefault("trade_date_timezone", "UTC")
	viper.SetDefault("dedup_timezone", "Local")
	viper.SetDefault("backend.timeout", 10*time.Second)
	viper.SetDefault("sync_state.driver", "file")
	viper.SetDefault("sync_state.file_path", "sync_state.json")
	viper.SetDefault("sync_state.redis_key", "rebate-sync:sync-state")
	viper.SetDefault("cycle_lock.ttl", 2*time.Minute)
}

func LoadConfig(configPath string) error {
	viper.Reset()
	setDefaults()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

// Validate checks settings every command needs. Exchange credentials are
// validated per exchange when its worker is built.
func (c *EnvConfig) Validate() error {
	if c.TestMode {
		return nil
	}

	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return ErrMissingBackendURL
	}
	if strings.TrimSpace(c.Backend.AdminAPIKey) == "" {
		return ErrMissingBackendKey
	}

	return nil
}

func (c *EnvConfig) TradeDateLocation() *time.Location {
	return loadLocation(c.TradeDateTimezone, time.UTC)
}

func (c *EnvConfig) DedupLocation() *time.Location {
	return loadLocation(c.DedupTimezone, time.Local)
}

func loadLocation(name string, fallback *time.Location) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}

	return loc
}
