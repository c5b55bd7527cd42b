package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/propmap/internal/simplify"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Simplify  SimplifyConfig  `yaml:"simplify" mapstructure:"simplify"`
	Aggregate AggregateConfig `yaml:"aggregate" mapstructure:"aggregate"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SimplifyConfig configures boundary simplification.
type SimplifyConfig struct {
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
	Precision int     `yaml:"precision" mapstructure:"precision"`
	KeyField  string  `yaml:"key_field" mapstructure:"key_field"`
	Output    string  `yaml:"output" mapstructure:"output"`
}

// AggregateConfig configures the price-paid median aggregation. Field
// indices are zero-based.
type AggregateConfig struct {
	ValueField  int    `yaml:"value_field" mapstructure:"value_field"`
	DateField   int    `yaml:"date_field" mapstructure:"date_field"`
	KeyField    int    `yaml:"key_field" mapstructure:"key_field"`
	MinFields   int    `yaml:"min_fields" mapstructure:"min_fields"`
	CutoffYears int    `yaml:"cutoff_years" mapstructure:"cutoff_years"`
	Cutoff      string `yaml:"cutoff" mapstructure:"cutoff"` // YYYY-MM-DD, overrides cutoff_years
	Shards      int    `yaml:"shards" mapstructure:"shards"`
	Field       string `yaml:"field" mapstructure:"field"`
}

// StoreConfig configures the summary backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	SummaryPath string `yaml:"summary_path" mapstructure:"summary_path"`
}

// FetchConfig configures source downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"` // connect and response headers; bodies stream until done
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the read-only HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	BoundariesPath string   `yaml:"boundaries_path" mapstructure:"boundaries_path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Store drivers.
const (
	DriverJSON     = "json"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("simplify.tolerance", 0.0001)
	v.SetDefault("simplify.precision", 5)
	v.SetDefault("simplify.key_field", "name")
	v.SetDefault("simplify.output", "out/districts.geojson")
	v.SetDefault("aggregate.value_field", 1)
	v.SetDefault("aggregate.date_field", 2)
	v.SetDefault("aggregate.key_field", 3)
	v.SetDefault("aggregate.min_fields", 4)
	v.SetDefault("aggregate.cutoff_years", 5)
	v.SetDefault("aggregate.cutoff", "")
	v.SetDefault("aggregate.shards", 1)
	v.SetDefault("aggregate.field", "median_price")
	v.SetDefault("store.driver", DriverJSON)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.sqlite_path", "out/propmap.db")
	v.SetDefault("store.summary_path", "out/summary.json")
	v.SetDefault("fetch.user_agent", "propmap/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.temp_dir", "/tmp/propmap")
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.boundaries_path", "out/districts.geojson")
	v.SetDefault("server.allowed_origins", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name:
// simplify, aggregate, fetch, load, migrate, runs or serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "simplify":
		problems = append(problems, c.validateSimplify()...)
	case "aggregate":
		problems = append(problems, c.validateAggregate()...)
		problems = append(problems, c.validateStore()...)
	case "fetch":
		if c.Fetch.Concurrency < 1 {
			problems = append(problems, "fetch.concurrency must be >= 1")
		}
		if c.Fetch.TempDir == "" {
			problems = append(problems, "fetch.temp_dir is required")
		}
	case "load", "migrate", "runs":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateSimplify() []string {
	var p []string
	if c.Simplify.Tolerance < 0 {
		p = append(p, "simplify.tolerance must be >= 0")
	}
	if c.Simplify.Precision < 0 {
		p = append(p, "simplify.precision must be >= 0")
	}
	if c.Simplify.Precision > simplify.MaxPrecision {
		p = append(p, fmt.Sprintf("simplify.precision must be <= %d", simplify.MaxPrecision))
	}
	return p
}

func (c *Config) validateAggregate() []string {
	var p []string
	a := c.Aggregate
	if a.ValueField < 0 || a.DateField < 0 || a.KeyField < 0 {
		p = append(p, "aggregate field indices must be >= 0")
	}
	if a.MinFields <= max(a.ValueField, a.DateField, a.KeyField) {
		p = append(p, "aggregate.min_fields must exceed every field index")
	}
	if a.Cutoff != "" {
		if _, err := time.Parse("2006-01-02", a.Cutoff); err != nil {
			p = append(p, "aggregate.cutoff must be YYYY-MM-DD")
		}
	} else if a.CutoffYears < 0 {
		p = append(p, "aggregate.cutoff_years must be >= 0")
	}
	if a.Shards < 1 || a.Shards > 64 {
		p = append(p, "aggregate.shards must be between 1 and 64")
	}
	if a.Field == "" {
		p = append(p, "aggregate.field is required")
	}
	return p
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case DriverJSON:
		if c.Store.SummaryPath == "" {
			return []string{"store.summary_path is required for the json driver"}
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	default:
		return []string{"store.driver must be one of json, postgres, sqlite"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
