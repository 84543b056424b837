// Package config loads the notebase configuration from defaults, config
// files, environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/formats/dsd"
	"github.com/ainotebook/notebase/log"
)

// Name is used for the config file, the env prefix and the config dir.
const Name = "notebase"

// Config keys, also used as flag names.
const (
	KeyDataDir        = "data-dir"
	KeyStorage        = "storage"
	KeyFormat         = "format"
	KeyCompression    = "compression"
	KeyLogLevel       = "log-level"
	KeyListen         = "listen"
	KeyBlockedTimeout = "blocked-timeout"
	KeyDatabase       = "database"
	KeyCollection     = "collection"
)

// Errors.
var (
	ErrInvalidValue = errors.New("invalid config value")
)

// Config is the notebase configuration.
type Config struct {
	DataDir        string        `json:"data-dir" mapstructure:"data-dir"`
	Storage        string        `json:"storage" mapstructure:"storage"`
	Format         string        `json:"format" mapstructure:"format"`
	Compression    string        `json:"compression" mapstructure:"compression"`
	LogLevel       string        `json:"log-level" mapstructure:"log-level"`
	Listen         string        `json:"listen" mapstructure:"listen"`
	BlockedTimeout time.Duration `json:"blocked-timeout" mapstructure:"blocked-timeout"`
	Database       string        `json:"database" mapstructure:"database"`
	Collection     string        `json:"collection" mapstructure:"collection"`
}

// Defaults returns the default configuration.
func Defaults() *Config {
	dataDir := filepath.Join(os.TempDir(), Name)
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, "."+Name)
	}

	return &Config{
		DataDir:        dataDir,
		Storage:        "bbolt",
		Format:         "json",
		Compression:    "none",
		LogLevel:       "info",
		Listen:         "127.0.0.1:5000",
		BlockedTimeout: 5 * time.Second,
		Database:       "notebook",
		Collection:     "notes",
	}
}

// RegisterFlags adds the config flags to the given flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String(KeyDataDir, d.DataDir, "directory to store databases in")
	flags.String(KeyStorage, d.Storage, "storage engine: "+strings.Join(storage.Types(), ", "))
	flags.String(KeyFormat, d.Format, "record format: json, cbor or msgpack")
	flags.String(KeyCompression, d.Compression, "record compression: none or gzip")
	flags.String(KeyLogLevel, d.LogLevel, "log level: trace, debug, info, warning, error or critical")
	flags.String(KeyListen, d.Listen, "address of the API server")
	flags.Duration(KeyBlockedTimeout, d.BlockedTimeout, "how long to wait for other connections when deleting a database")
	flags.String(KeyDatabase, d.Database, "database name")
	flags.String(KeyCollection, d.Collection, "collection name")
}

func defaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(configDir, Name, Name+".yaml"), nil
}

// Load loads the configuration. Values are taken from, in order of
// precedence: flags of cmd that were changed, NOTEBASE_* environment
// variables, the config file and the defaults. If file is empty,
// notebase.yaml is searched in the user config dir and the working dir.
func Load(cmd *cobra.Command, file string) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault(KeyDataDir, d.DataDir)
	v.SetDefault(KeyStorage, d.Storage)
	v.SetDefault(KeyFormat, d.Format)
	v.SetDefault(KeyCompression, d.Compression)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyBlockedTimeout, d.BlockedTimeout)
	v.SetDefault(KeyDatabase, d.Database)
	v.SetDefault(KeyCollection, d.Collection)

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(Name)
		if path, err := defaultPath(); err == nil {
			v.AddConfigPath(filepath.Dir(path))
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debugf("config: using config file %s", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: %s must be set", ErrInvalidValue, KeyDataDir)
	}
	if _, err := c.FormatID(); err != nil {
		return err
	}
	if _, err := c.CompressionID(); err != nil {
		return err
	}
	if log.ParseLevel(c.LogLevel) == 0 {
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidValue, KeyLogLevel, c.LogLevel)
	}
	if c.BlockedTimeout < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, KeyBlockedTimeout)
	}
	if err := storage.CheckName(c.Database); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, KeyDatabase, err)
	}
	if err := storage.CheckName(c.Collection); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, KeyCollection, err)
	}
	return nil
}

// FormatID returns the dsd format of the configured record format.
func (c *Config) FormatID() (uint8, error) {
	format, ok := dsd.ParseFormat(c.Format)
	switch {
	case !ok, format == dsd.YAML:
		return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidValue, KeyFormat, c.Format)
	case format == dsd.AUTO:
		return dsd.JSON, nil
	default:
		return format, nil
	}
}

// CompressionID returns the dsd compression of the configured compression.
func (c *Config) CompressionID() (uint8, error) {
	switch c.Compression {
	case "", "none":
		return dsd.NONE, nil
	case "gzip":
		return dsd.GZIP, nil
	default:
		return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidValue, KeyCompression, c.Compression)
	}
}

// Write writes the configuration as YAML to the given file. If path is
// empty, the file is written to the user config dir.
func Write(c *Config, path string) (string, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return "", err
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o0700); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}
