package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"matchvault/internal/pvp"
	"matchvault/internal/queue"

	"github.com/gookit/validate"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MATCHVAULT_REGION
const EnvPrefix = "MATCHVAULT"

type ClientConfig struct {
	Platform string `mapstructure:"platform" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
}

type QueueConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required|min:1"`
	Capacity int           `mapstructure:"capacity" validate:"required|min:1"`
}

type HistoryConfig struct {
	PageSize int `mapstructure:"pageSize" validate:"required|min:1|max:20"`
}

type PathsConfig struct {
	Out    string `mapstructure:"out" validate:"required"`
	Errors string `mapstructure:"errors" validate:"required"`

	// Lockfile overrides the platform default location when set
	Lockfile string `mapstructure:"lockfile"`
}

type CacheConfig struct {
	SizeMB int `mapstructure:"sizeMB" validate:"min:0"`
}

type CatalogConfig struct {
	Driver string `mapstructure:"driver" validate:"required|in:sqlite,postgres,none"`
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error"`
	Format string `mapstructure:"format" validate:"required|in:console,json"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Region  string        `mapstructure:"region" validate:"required|in:na,eu,ap,kr,latam,br"`
	Client  ClientConfig  `mapstructure:"client"`
	Queue   QueueConfig   `mapstructure:"queue"`
	History HistoryConfig `mapstructure:"history"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Path is the config file that was read, empty when none was found
	Path string `mapstructure:"-"`
}

var defaults = map[string]any{
	"region":           "eu",
	"client.platform":  pvp.DefaultClientPlatform,
	"client.version":   pvp.DefaultClientVersion,
	"queue.interval":   queue.DefaultInterval,
	"queue.capacity":   queue.DefaultCapacity,
	"history.pageSize": pvp.DefaultHistoryPageSize,
	"paths.out":        "out",
	"paths.errors":     "errors",
	"paths.lockfile":   "",
	"cache.sizeMB":     32,
	"catalog.driver":   "sqlite",
	"catalog.dsn":      "",
	"log.level":        "info",
	"log.format":       "console",
	"metrics.listen":   "",
}

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"region":         "region",
	"out":            "paths.out",
	"lockfile":       "paths.lockfile",
	"log-level":      "log.level",
	"metrics-listen": "metrics.listen",
	"catalog":        "catalog.driver",
}

// RegisterFlags adds the flags Load understands to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (default ./matchvault.yaml if present)")
	fs.String("region", defaults["region"].(string), "match service region (na, eu, ap, kr, latam, br)")
	fs.String("out", defaults["paths.out"].(string), "archive output directory")
	fs.String("lockfile", "", "riot client lockfile path (default: platform location)")
	fs.String("log-level", defaults["log.level"].(string), "log level")
	fs.String("metrics-listen", "", "address to serve prometheus metrics on, e.g. :9090")
	fs.String("catalog", defaults["catalog.driver"].(string), "archive catalog driver (sqlite, postgres, none)")
}

// Load builds the configuration from defaults, an optional config file,
// .env and MATCHVAULT_* environment variables and flags, in increasing order
// of precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := ""
	if fs != nil {
		configPath, _ = fs.GetString("config")
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("matchvault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Path = v.ConfigFileUsed()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %s", v.Errors.Error())
	}
	if c.Catalog.Driver == "postgres" && c.Catalog.DSN == "" {
		return errors.New("invalid config: catalog.dsn is required for the postgres catalog")
	}
	return nil
}

// loadEnvFiles loads the first .env file found. Variables already set in the
// environment win.
func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}
