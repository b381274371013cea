package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Matching MatchingConfig `mapstructure:"matching"`
	Export   ExportConfig   `mapstructure:"export"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// RedisConfig holds the optional ingredient-cache backend. When Addr is
// empty the engine runs with an in-process no-op cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MatchingConfig holds the fuzzy-match acceptance thresholds (0-100).
type MatchingConfig struct {
	SuggestThreshold int `mapstructure:"suggest_threshold"`
	SimilarThreshold int `mapstructure:"similar_threshold"`
	SearchThreshold  int `mapstructure:"search_threshold"`
	SearchLimit      int `mapstructure:"search_limit"`
}

// ExportConfig holds compliance export configuration
type ExportConfig struct {
	CompanyName string `mapstructure:"company_name"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/traceflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 5*time.Minute)

	viper.SetDefault("matching.suggest_threshold", 40)
	viper.SetDefault("matching.similar_threshold", 60)
	viper.SetDefault("matching.search_threshold", 50)
	viper.SetDefault("matching.search_limit", 50)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("database.path", "TRACEFLOW_DB_PATH")
	viper.BindEnv("redis.addr", "TRACEFLOW_REDIS_ADDR")
	viper.BindEnv("redis.password", "TRACEFLOW_REDIS_PASSWORD")
	viper.BindEnv("export.company_name", "TRACEFLOW_COMPANY_NAME")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	for _, th := range []struct {
		name  string
		value int
	}{
		{"matching.suggest_threshold", c.Matching.SuggestThreshold},
		{"matching.similar_threshold", c.Matching.SimilarThreshold},
		{"matching.search_threshold", c.Matching.SearchThreshold},
	} {
		if th.value < 0 || th.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", th.name)
		}
	}

	if c.Matching.SearchLimit <= 0 {
		return fmt.Errorf("matching.search_limit must be positive")
	}

	return nil
}
