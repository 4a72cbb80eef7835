// Package config loads the mindseye CLI configuration from flags, MINDSEYE_*
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mindseye/pkg/dreamapi"
)

// Config holds all CLI settings.
type Config struct {
	APIURL         string        `mapstructure:"api_url"`
	StaticPrefixes []string      `mapstructure:"static_prefixes"`
	SessionFile    string        `mapstructure:"session_file"`
	LogLevel       string        `mapstructure:"log_level"`
	RecentLimit    int           `mapstructure:"recent_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Dir is where the config file and the default session file live.
func Dir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "mindseye")
	}
	return ".mindseye"
}

// Load reads configuration into v. An explicit path must exist; otherwise
// config.yaml in Dir() is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix("MINDSEYE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SessionFile = expandHome(strings.TrimSpace(cfg.SessionFile))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", dreamapi.DefaultOrigin)
	v.SetDefault("static_prefixes", []string{dreamapi.DefaultStaticPrefix})
	v.SetDefault("session_file", filepath.Join(Dir(), "session.json"))
	v.SetDefault("log_level", "warn")
	v.SetDefault("recent_limit", dreamapi.DefaultRecentLimit)
	v.SetDefault("timeout", "0s")
}

func validate(cfg *Config) error {
	u, err := url.Parse(strings.TrimSpace(cfg.APIURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api_url must be an absolute http(s) URL, got %q", cfg.APIURL)
	}
	if cfg.SessionFile == "" {
		return errors.New("config: session_file is required")
	}
	if cfg.RecentLimit <= 0 {
		return errors.New("config: recent_limit must be > 0")
	}
	if cfg.Timeout < 0 {
		return errors.New("config: timeout must be >= 0")
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
