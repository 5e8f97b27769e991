// Package config loads the loader's configuration from defaults, an
// optional YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Sternrassler/yelp-loader/pkg/client"
	"github.com/Sternrassler/yelp-loader/pkg/loader"
	"github.com/Sternrassler/yelp-loader/pkg/logging"
	"github.com/Sternrassler/yelp-loader/pkg/quota"
)

// EnvPrefix prefixes every environment override: YELP_LOADER_DATABASE_HOST → database.host.
const EnvPrefix = "YELP_LOADER"

// Config holds all application configuration.
type Config struct {
	Yelp       YelpConfig       `mapstructure:"yelp"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
}

type YelpConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	SortBy  string        `mapstructure:"sort_by"`
	OpenNow bool          `mapstructure:"open_now"`
	Limit   int           `mapstructure:"limit"`
	Timeout time.Duration `mapstructure:"timeout"`

	// QuotaLowWatermark is the share of the daily quota below which
	// responses are logged as warnings.
	QuotaLowWatermark float64 `mapstructure:"quota_low_watermark"`
}

// ClientConfig converts the section into a client configuration.
func (y YelpConfig) ClientConfig() client.Config {
	return client.Config{
		APIKey:  y.APIKey,
		BaseURL: y.BaseURL,
		Search: client.SearchOptions{
			SortBy:  y.SortBy,
			OpenNow: y.OpenNow,
			Limit:   y.Limit,
		},
		Timeout: y.Timeout,
	}
}

type PaginationConfig struct {
	MaxResults int `mapstructure:"max_results"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Schema   string `mapstructure:"schema"`
	Table    string `mapstructure:"table"`
	IfExists string `mapstructure:"if_exists"`
}

// DSN returns the connection URL. User and password are escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Target returns the load target. IfExists must already be validated.
func (d DatabaseConfig) Target() loader.Target {
	policy, _ := loader.ParseIfExists(d.IfExists)
	return loader.Target{Schema: d.Schema, Table: d.Table, IfExists: policy}
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	RunTTL   time.Duration `mapstructure:"run_ttl"`
	History  int           `mapstructure:"history"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// LoggingConfig converts the section into a logging configuration.
func (l LogConfig) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(l.Level)
	cfg.Pretty = l.Pretty
	return cfg
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("yelp.api_key", "")
	v.SetDefault("yelp.base_url", client.DefaultBaseURL)
	v.SetDefault("yelp.sort_by", "rating")
	v.SetDefault("yelp.open_now", true)
	v.SetDefault("yelp.limit", 30)
	v.SetDefault("yelp.timeout", "30s")
	v.SetDefault("yelp.quota_low_watermark", quota.DefaultLowWatermark)
	v.SetDefault("pagination.max_results", 1000)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "yelp")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "dbo")
	v.SetDefault("database.table", "yelp_restaurants")
	v.SetDefault("database.if_exists", string(loader.IfExistsAppend))
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.run_ttl", "720h")
	v.SetDefault("redis.history", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "yelp-loader")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "5m")
}

// Load reads configuration. configFile, if set, must exist; otherwise
// config.yaml is looked up in . and ./configs and may be missing. A .env
// file in the working directory is loaded into the environment first.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key is conventionally exported without the prefix.
	if err := v.BindEnv("yelp.api_key", EnvPrefix+"_YELP_API_KEY", "YELP_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// needsAPIKey is false for commands that never call the API (migrate).
func (c *Config) Validate(needsAPIKey bool) error {
	var errs []string

	if needsAPIKey && c.Yelp.APIKey == "" {
		errs = append(errs, "yelp.api_key is required (set YELP_API_KEY)")
	}
	if c.Yelp.BaseURL == "" {
		errs = append(errs, "yelp.base_url is required")
	}
	if c.Yelp.Limit < 1 || c.Yelp.Limit > 50 {
		errs = append(errs, fmt.Sprintf("yelp.limit must be 1-50, got %d", c.Yelp.Limit))
	}
	if c.Yelp.Timeout <= 0 {
		errs = append(errs, "yelp.timeout must be positive")
	}
	if c.Yelp.QuotaLowWatermark < 0 || c.Yelp.QuotaLowWatermark >= 1 {
		errs = append(errs, fmt.Sprintf("yelp.quota_low_watermark must be in [0, 1), got %g", c.Yelp.QuotaLowWatermark))
	}
	if c.Pagination.MaxResults < 0 {
		errs = append(errs, fmt.Sprintf("pagination.max_results must not be negative, got %d", c.Pagination.MaxResults))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.Database.Table == "" {
		errs = append(errs, "database.table is required")
	}
	if _, err := loader.ParseIfExists(c.Database.IfExists); err != nil {
		errs = append(errs, "database.if_exists: "+err.Error())
	}
	if c.Redis.Enabled() && c.Redis.History <= 0 {
		errs = append(errs, "redis.history must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, "log.level: "+err.Error())
	}
	if c.Metrics.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(c.Metrics.PushgatewayURL); err != nil {
			errs = append(errs, fmt.Sprintf("metrics.pushgateway_url is invalid: %v", err))
		}
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
