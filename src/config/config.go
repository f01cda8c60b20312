package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Latency     LatencyConfig     `mapstructure:"latency"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Realtime    RealtimeConfig    `mapstructure:"realtime"`
}

type PersistenceConfig struct {
	// Address of a redis-compatible backend. Empty means "boot an embedded
	// miniredis and persist there" — the fully self-contained default.
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LatencyConfig struct {
	Min time.Duration `mapstructure:"min"`
	Max time.Duration `mapstructure:"max"`
}

type AuthConfig struct {
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	OAuthDelay       time.Duration `mapstructure:"oauth_delay"`
	Providers        []string      `mapstructure:"providers"`
	TokenSecret      string        `mapstructure:"token_secret"`
}

type StorageConfig struct {
	PublicURLBase string `mapstructure:"public_url_base"`
	URLSecret     string `mapstructure:"url_secret"`
}

type RealtimeConfig struct {
	SubscribeDelay time.Duration `mapstructure:"subscribe_delay"`
}

// Default returns the configuration the emulator runs with when no config
// file or environment overrides are present. Values mirror the latency and
// lifetime characteristics of the hosted backend being simulated.
func Default() *Config {
	return &Config{
		Persistence: PersistenceConfig{
			KeyPrefix: "localbase",
		},
		Latency: LatencyConfig{
			Min: 100 * time.Millisecond,
			Max: 300 * time.Millisecond,
		},
		Auth: AuthConfig{
			SessionTTL:       time.Hour,
			RefreshThreshold: 5 * time.Minute,
			RefreshInterval:  30 * time.Second,
			OAuthDelay:       1500 * time.Millisecond,
			Providers:        []string{"google", "github", "apple", "facebook"},
			TokenSecret:      "localbase-emulator-secret",
		},
		Storage: StorageConfig{
			PublicURLBase: "https://localbase.mock",
			URLSecret:     "localbase-storage-secret",
		},
		Realtime: RealtimeConfig{
			SubscribeDelay: 10 * time.Millisecond,
		},
	}
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("localbase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Enable environment variable override
	viper.AutomaticEnv()
	viper.BindEnv("persistence.address", "LOCALBASE_REDIS_ADDRESS")
	viper.BindEnv("persistence.password", "LOCALBASE_REDIS_PASSWORD")
	viper.BindEnv("auth.token_secret", "LOCALBASE_TOKEN_SECRET")

	// Read config file (optional if not present)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	config := Default()
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	if addr := os.Getenv("LOCALBASE_REDIS_ADDRESS"); addr != "" {
		config.Persistence.Address = addr
	}
	if pass := os.Getenv("LOCALBASE_REDIS_PASSWORD"); pass != "" {
		config.Persistence.Password = pass
	}
	if db := os.Getenv("LOCALBASE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			config.Persistence.DB = n
		}
	}
	if secret := os.Getenv("LOCALBASE_TOKEN_SECRET"); secret != "" {
		config.Auth.TokenSecret = secret
	}

	return config, nil
}

// Instant returns a configuration with every artificial delay zeroed out.
// Tests use it so assertions do not wait on simulated network time.
func Instant() *Config {
	cfg := Default()
	cfg.Latency = LatencyConfig{}
	cfg.Auth.OAuthDelay = 0
	cfg.Auth.RefreshInterval = 5 * time.Millisecond
	cfg.Realtime.SubscribeDelay = 0
	return cfg
}
