// Package config resolves eegrecords settings from defaults, an optional
// config file, an optional .env file and EEGRECORDS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "EEGRECORDS"

// Storage selects the entity store backend.
type Storage struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// S3 parameterizes the S3 blob backend.
type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Blob selects the file storage backend.
type Blob struct {
	Driver string `mapstructure:"driver"`
	FSRoot string `mapstructure:"fs_root"`
	S3     S3     `mapstructure:"s3"`
}

// Log controls the process logger.
type Log struct {
	Debug  bool `mapstructure:"debug"`
	JSON   bool `mapstructure:"json"`
	Pretty bool `mapstructure:"pretty"`
}

// Metrics controls the optional textfile export of Prometheus metrics.
type Metrics struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Cache controls the read-through cache in front of list and summary queries.
type Cache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Config is the fully resolved configuration.
type Config struct {
	Storage Storage `mapstructure:"storage"`
	Blob    Blob    `mapstructure:"blob"`
	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
	Cache   Cache   `mapstructure:"cache"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: Storage{Driver: "sqlite", SQLitePath: "eegrecords.db"},
		Blob:    Blob{Driver: "fs", FSRoot: "./media", S3: S3{Region: "us-east-1"}},
		Log:     Log{Pretty: true},
		Cache:   Cache{TTL: 30 * time.Second},
	}
}

// Options tune where Load looks for settings.
type Options struct {
	// ConfigFile is an explicit config path (yaml, toml or json by extension).
	ConfigFile string
	// ConfigDir is searched for config.{yaml,toml,json} when ConfigFile is empty.
	ConfigDir string
	// EnvFile is a dotenv file loaded into the process environment first.
	EnvFile string
}

// NewViper builds a viper instance with defaults, file and environment bindings.
//
// Precedence (highest to lowest):
//  1. flags bound by the caller
//  2. EEGRECORDS_* environment variables (EEGRECORDS_STORAGE_DRIVER, ...)
//  3. config file values
//  4. Default()
func NewViper(opts Options) (*viper.Viper, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}
	v := viper.New()
	setDefaults(v, Default())

	switch {
	case opts.ConfigFile != "":
		v.SetConfigFile(opts.ConfigFile)
	case opts.ConfigDir != "":
		v.SetConfigName("config")
		v.AddConfigPath(opts.ConfigDir)
	}
	if opts.ConfigFile != "" || opts.ConfigDir != "" {
		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load resolves a Config.
func Load(opts Options) (Config, *viper.Viper, error) {
	v, err := NewViper(opts)
	if err != nil {
		return Config{}, nil, err
	}
	cfg, err := Decode(v)
	return cfg, v, err
}

// Decode materializes and validates the configuration held by v.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete backend settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want memory, sqlite or postgres)", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q (want fs, s3 or memory)", c.Blob.Driver)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.fs_root", d.Blob.FSRoot)
	v.SetDefault("blob.s3.bucket", d.Blob.S3.Bucket)
	v.SetDefault("blob.s3.region", d.Blob.S3.Region)
	v.SetDefault("blob.s3.endpoint", d.Blob.S3.Endpoint)
	v.SetDefault("blob.s3.path_style", d.Blob.S3.PathStyle)
	v.SetDefault("blob.s3.access_key_id", d.Blob.S3.AccessKeyID)
	v.SetDefault("blob.s3.secret_access_key", d.Blob.S3.SecretAccessKey)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("metrics.textfile_path", d.Metrics.TextfilePath)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}
