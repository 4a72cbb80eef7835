package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with GATEWAY_CONFIG.
var ConfigPath = defaultConfigPath()

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	APIURL                     string   `yaml:"apiURL"`
	StaticPrefixes             []string `yaml:"staticPrefixes"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	SessionSecret              string   `yaml:"sessionSecret"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	SessionCookieName          string   `yaml:"sessionCookieName"`
	SessionCookieSecure        bool     `yaml:"sessionCookieSecure"`
	SessionCookieSameSite      string   `yaml:"sessionCookieSameSite"`
	AllowedOrigins             []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	GenerateRateLimitPerMinute int      `yaml:"generateRateLimitPerMinute"`
	GalleryLimit               int      `yaml:"galleryLimit"`
	RecentLimit                int      `yaml:"recentLimit"`
}

// MinSessionSecretBytes is the shortest accepted session cookie signing key.
const MinSessionSecretBytes = 32

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("GATEWAY_CONFIG")); p != "" {
		return p
	}
	return "config.yaml"
}

// Load reads config from path (defaults to ConfigPath) and applies env overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("GATEWAY_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINDSEYE_API_URL"); v != "" {
		cfg.APIURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("GATEWAY_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_SESSION_COOKIE_NAME"); v != "" {
		cfg.SessionCookieName = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	if v := os.Getenv("GATEWAY_SESSION_COOKIE_SAME_SITE"); v != "" {
		cfg.SessionCookieSameSite = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATEWAY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("GATEWAY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("GATEWAY_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GATEWAY_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GATEWAY_GENERATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerateRateLimitPerMinute = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "mindseye_sid"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "168h"
	}
	if cfg.GalleryLimit == 0 {
		cfg.GalleryLimit = 50
	}
	if cfg.RecentLimit == 0 {
		cfg.RecentLimit = 10
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or GATEWAY_PORT)")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		return errors.New("config: apiURL is required (set in config.yaml or MINDSEYE_API_URL)")
	}
	if u, err := url.Parse(cfg.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: apiURL must be an absolute http(s) URL")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for sessions and rate limiting")
	}
	if len(cfg.SessionSecret) < MinSessionSecretBytes {
		return fmt.Errorf("config: sessionSecret must be at least %d bytes (set in config.yaml or GATEWAY_SESSION_SECRET)", MinSessionSecretBytes)
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseSameSite(cfg.SessionCookieSameSite); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 || cfg.GenerateRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.GalleryLimit < 0 || cfg.RecentLimit < 0 {
		return errors.New("config: galleryLimit and recentLimit must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseSessionTTL parses the idle lifetime of a browser session.
func ParseSessionTTL(raw string) (time.Duration, error) {
	ttl, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if ttl <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return ttl, nil
}

// ParseSameSite maps the cookie SameSite setting; empty means Lax.
func ParseSameSite(raw string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("invalid sessionCookieSameSite %q", raw)
	}
}
