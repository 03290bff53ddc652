package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weatherapp/internal/permission"
	"github.com/kjstillabower/weatherapp/internal/validation"
)

const (
	// BaseURL is the OpenWeatherMap data root; the client appends 2.5/weather.
	BaseURL = "http://api.openweathermap.org/data/"
	// MetricUnit requests Celsius temperatures and m/s wind speeds.
	MetricUnit = "metric"
	// PreferenceName is the store holding the cached payload.
	PreferenceName = "WeatherAppPreference"
	// WeatherResponseDataKey is the key of the serialized last response.
	WeatherResponseDataKey = "weather_response_data"
)

// AppID is the OpenWeatherMap key baked in at build time:
//
//	go build -ldflags "-X github.com/kjstillabower/weatherapp/internal/config.AppID=..."
//
// When empty, the key comes from WEATHER_API_KEY or config/secrets.yaml.
var AppID string

// Config holds application configuration loaded from YAML and env.
type Config struct {
	EnvName string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Units             string

	LocationEnabled  bool
	LocationProvider string // "static", "ip" or "auto"
	Latitude         float64
	Longitude        float64
	IPLookupURL      string
	IPLookupTimeout  time.Duration

	PermissionPolicy permission.Policy

	CacheBackend string // "sqlite", "in_memory" or "memcached"
	SQLitePath   string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	Locale   string
	Timezone string

	RevalidateOnRefresh bool

	StatusAddr     string
	RateLimitRPS   int
	RateLimitBurst int

	LogFile string
}

type fileConfig struct {
	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Units   string `yaml:"units"`
	} `yaml:"weather_api"`

	Location struct {
		Enabled   *bool    `yaml:"enabled"`
		Provider  string   `yaml:"provider"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		IPURL     string   `yaml:"ip_url"`
		IPTimeout string   `yaml:"ip_timeout"`
	} `yaml:"location"`

	Permission struct {
		Policy string `yaml:"policy"`
	} `yaml:"permission"`

	Cache struct {
		Backend string `yaml:"backend"`
		SQLite  struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Display struct {
		Locale   string `yaml:"locale"`
		Timezone string `yaml:"timezone"`
	} `yaml:"display"`

	Refresh struct {
		Revalidate *bool `yaml:"revalidate"`
	} `yaml:"refresh"`

	Status struct {
		Addr           string `yaml:"addr"`
		RateLimitRPS   int    `yaml:"rate_limit_rps"`
		RateLimitBurst int    `yaml:"rate_limit_burst"`
	} `yaml:"status"`

	Log struct {
		File string `yaml:"file"`
	} `yaml:"log"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml under the working directory. A missing env file means
// all defaults.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return load(cwd)
}

func load(root string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{EnvName: env}

	cfg.WeatherAPIKey, err = loadAPIKey(root)
	if err != nil {
		return nil, err
	}
	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = BaseURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.Units = strings.TrimSpace(fc.WeatherAPI.Units)
	if cfg.Units == "" {
		cfg.Units = MetricUnit
	}

	cfg.LocationEnabled = true
	if fc.Location.Enabled != nil {
		cfg.LocationEnabled = *fc.Location.Enabled
	}
	if v, ok := os.LookupEnv("LOCATION_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("LOCATION_ENABLED: %w", err)
		}
		cfg.LocationEnabled = b
	}
	cfg.LocationProvider = strings.ToLower(envOr("LOCATION_PROVIDER", fc.Location.Provider))
	if cfg.LocationProvider == "" {
		cfg.LocationProvider = "static"
	}
	cfg.Latitude, cfg.Longitude = 51.5074, -0.1278
	if fc.Location.Latitude != nil {
		cfg.Latitude = *fc.Location.Latitude
	}
	if fc.Location.Longitude != nil {
		cfg.Longitude = *fc.Location.Longitude
	}
	cfg.IPLookupURL = strings.TrimSpace(fc.Location.IPURL)
	cfg.IPLookupTimeout = parseDuration(fc.Location.IPTimeout, 5*time.Second)

	policy, err := permission.ParsePolicy(envOr("PERMISSION_POLICY", fc.Permission.Policy))
	if err != nil {
		return nil, err
	}
	cfg.PermissionPolicy = policy

	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "sqlite"
	}
	cfg.SQLitePath = strings.TrimSpace(fc.Cache.SQLite.Path)
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = defaultSQLitePath()
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.Locale = strings.TrimSpace(fc.Display.Locale)
	if cfg.Locale == "" {
		cfg.Locale = systemLocale()
	}
	cfg.Timezone = envOr("DISPLAY_TIMEZONE", fc.Display.Timezone)

	cfg.RevalidateOnRefresh = true
	if fc.Refresh.Revalidate != nil {
		cfg.RevalidateOnRefresh = *fc.Refresh.Revalidate
	}

	cfg.StatusAddr = envOr("STATUS_ADDR", fc.Status.Addr)
	cfg.RateLimitRPS = fc.Status.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Status.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	cfg.LogFile = envOr("LOG_FILE", fc.Log.File)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireAPIKey reports a missing API key. Only commands that call the
// weather API need one.
func (c *Config) RequireAPIKey() error {
	if c.WeatherAPIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY required (build with -X config.AppID, set env or config/secrets.yaml weather_api_key)")
	}
	return nil
}

// loadAPIKey resolves the key from AppID, then WEATHER_API_KEY, then the
// secrets file. An absent secrets file is not an error.
func loadAPIKey(root string) (string, error) {
	if AppID != "" {
		return AppID, nil
	}
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(filepath.Join(root, "config", "secrets.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func defaultSQLitePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return PreferenceName + ".db"
	}
	return filepath.Join(dir, "weatherapp", PreferenceName+".db")
}

// systemLocale returns the POSIX locale from the environment, in the usual
// precedence order.
func systemLocale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	switch cfg.LocationProvider {
	case "static", "auto":
		if err := validation.ValidateCoordinates(cfg.Latitude, cfg.Longitude); err != nil {
			return fmt.Errorf("location: %w", err)
		}
	case "ip":
	default:
		return fmt.Errorf("location.provider must be static, ip or auto, got %q", cfg.LocationProvider)
	}
	switch cfg.CacheBackend {
	case "sqlite", "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be sqlite, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.Timezone != "" {
		if err := validation.ValidateTimezone(cfg.Timezone); err != nil {
			return fmt.Errorf("display.timezone: %w", err)
		}
	}
	return nil
}
