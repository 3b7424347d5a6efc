package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

const (
	BackendModeHTTP     = "http"
	BackendModePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Layout   LayoutConfig   `mapstructure:"layout"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// BackendConfig selects where schema operations go: a remote schema service over HTTP, or a
// PostgreSQL server reached directly.
type BackendConfig struct {
	Mode          string        `mapstructure:"mode"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	Schema   string `mapstructure:"schema"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SnapshotConfig enables position snapshots when DSN is set.
type SnapshotConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LayoutConfig struct {
	Direction    string        `mapstructure:"direction"`
	Debounce     time.Duration `mapstructure:"debounce"`
	NodeWidth    float64       `mapstructure:"node_width"`
	BaseHeight   float64       `mapstructure:"base_height"`
	ColumnHeight float64       `mapstructure:"column_height"`
	NodeSep      float64       `mapstructure:"node_sep"`
	RankSep      float64       `mapstructure:"rank_sep"`
}

// Load reads config.yaml (optional) and the environment. Environment keys use underscores,
// e.g. BACKEND_BASE_URL for backend.base_url.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case BackendModeHTTP:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("backend.base_url is required in %s mode", BackendModeHTTP)
		}
	case BackendModePostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" {
			return fmt.Errorf("postgres.host and postgres.user are required in %s mode", BackendModePostgres)
		}
	default:
		return fmt.Errorf("unknown backend.mode %q", c.Backend.Mode)
	}
	if c.Layout.Debounce < 0 {
		return fmt.Errorf("layout.debounce must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "1m")

	// Backend defaults
	v.SetDefault("backend.mode", BackendModeHTTP)
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_per_second", 20)
	v.SetDefault("backend.burst", 10)

	// Postgres defaults
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)

	// Snapshots are off unless a DSN is configured
	v.SetDefault("snapshot.dsn", "")

	// Layout defaults
	v.SetDefault("layout.direction", "TB")
	v.SetDefault("layout.debounce", "100ms")
	v.SetDefault("layout.node_width", 250)
	v.SetDefault("layout.base_height", 60)
	v.SetDefault("layout.column_height", 28)
	v.SetDefault("layout.node_sep", 80)
	v.SetDefault("layout.rank_sep", 120)
}
