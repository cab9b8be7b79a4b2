package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix scopes environment overrides: HTTPSPY_WAIT_TIMEOUT overrides wait.timeout.
const envPrefix = "HTTPSPY"

// Config holds application-wide configuration.
type Config struct {
	// Debug enables debug logging and additional diagnostics
	Debug bool `mapstructure:"debug"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Intercept InterceptConfig `mapstructure:"intercept"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Log       LogConfig       `mapstructure:"log"`
	Inspect   InspectConfig   `mapstructure:"inspect"`
}

// StorageConfig locates the shared collections.
type StorageConfig struct {
	// Root is the directory holding the collections. Empty falls back to
	// HTTPSPY_SHARED_DIR, then the user cache directory.
	Root string `mapstructure:"root"`
}

// InterceptConfig controls what gets recorded.
type InterceptConfig struct {
	AllowedHosts            []string      `mapstructure:"allowed_hosts"`
	TrustServerCertificates bool          `mapstructure:"trust_server_certificates"`
	RefreshInterval         time.Duration `mapstructure:"refresh_interval"`
}

// WaitConfig sets poll-wait defaults.
type WaitConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SinceWindow  time.Duration `mapstructure:"since_window"`
}

// LogConfig overrides the log sink. File "-" logs to stderr.
type LogConfig struct {
	File string `mapstructure:"file"`
}

// InspectConfig configures the inspection server.
type InspectConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Intercept: InterceptConfig{
			TrustServerCertificates: true,
			RefreshInterval:         2 * time.Second,
		},
		Wait: WaitConfig{
			PollInterval: 100 * time.Millisecond,
			Timeout:      5 * time.Second,
			SinceWindow:  30 * time.Second,
		},
		Inspect: InspectConfig{
			Addr: "127.0.0.1:7878",
		},
	}
}

// LoadConfig merges defaults, an optional config file and HTTPSPY_*
// environment variables. An empty path searches for httpspy.yaml in the
// working directory and $HOME/.config/httpspy; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("httpspy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/httpspy")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("storage.root", d.Storage.Root)
	v.SetDefault("intercept.allowed_hosts", []string{})
	v.SetDefault("intercept.trust_server_certificates", d.Intercept.TrustServerCertificates)
	v.SetDefault("intercept.refresh_interval", d.Intercept.RefreshInterval)
	v.SetDefault("wait.poll_interval", d.Wait.PollInterval)
	v.SetDefault("wait.timeout", d.Wait.Timeout)
	v.SetDefault("wait.since_window", d.Wait.SinceWindow)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("inspect.addr", d.Inspect.Addr)
}
