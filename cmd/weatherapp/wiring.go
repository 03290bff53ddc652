package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherapp/internal/cache"
	"github.com/kjstillabower/weatherapp/internal/config"
	"github.com/kjstillabower/weatherapp/internal/location"
	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/permission"
	"github.com/kjstillabower/weatherapp/internal/presenter"
)

// openStore opens the configured preference store. ping is nil for backends
// with nothing to probe.
func openStore(cfg *config.Config) (cache.Store, func() error, error) {
	switch cfg.CacheBackend {
	case "in_memory":
		return cache.NewInMemoryStore(), nil, nil
	case "memcached":
		mc, err := cache.NewMemcachedStore(config.PreferenceName, cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached store: %w", err)
		}
		return mc, mc.Ping, nil
	default:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite store dir: %w", err)
			}
		}
		s, err := cache.NewSQLiteStore(cfg.SQLitePath, config.PreferenceName)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, s.Ping, nil
	}
}

func openWeatherCache(cfg *config.Config, logger *zap.Logger) (*cache.WeatherCache, func(), error) {
	store, _, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			logger.Error("preference store close", zap.Error(err))
		}
	}
	return cache.NewWeatherCache(store, config.WeatherResponseDataKey, logger), closeStore, nil
}

func newLocator(cfg *config.Config, perms permission.Checker, checker network.Checker, logger *zap.Logger) location.Provider {
	fix := models.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	static := location.NewStaticProvider(fix, cfg.LocationEnabled, perms)
	switch cfg.LocationProvider {
	case "ip":
		return location.NewIPProvider(cfg.IPLookupURL, cfg.IPLookupTimeout, cfg.LocationEnabled, perms, logger)
	case "auto":
		// IP lookup needs the network; without it the configured fix wins.
		ip := location.NewIPProvider(cfg.IPLookupURL, cfg.IPLookupTimeout, cfg.LocationEnabled && checker.Available(), perms, logger)
		return location.NewMulti(ip, static)
	default:
		return static
	}
}

func newPresenter(cfg *config.Config) (presenter.Presenter, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return presenter.Presenter{}, fmt.Errorf("display.timezone: %w", err)
		}
		loc = l
	}
	return presenter.New(presenter.RegionFromLocale(cfg.Locale), loc), nil
}
