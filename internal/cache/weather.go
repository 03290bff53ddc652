package cache

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/observability"
)

// WeatherCache keeps the most recent successful response as one serialized
// payload under a fixed key. It never holds more than that single entry.
type WeatherCache struct {
	store  Store
	key    string
	logger *zap.Logger
}

// NewWeatherCache wraps store; key is the fixed payload key.
func NewWeatherCache(store Store, key string, logger *zap.Logger) *WeatherCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherCache{store: store, key: key, logger: logger}
}

// Save serializes resp and overwrites the payload. It is best-effort: a
// failed write is logged and reported as false, never as an error.
func (c *WeatherCache) Save(ctx context.Context, resp models.WeatherResponse) bool {
	raw, err := json.Marshal(resp)
	if err != nil {
		observability.RecordCacheOperation("save", "error")
		c.logger.Error("serialize weather response", zap.Error(err))
		return false
	}
	return c.SaveRaw(ctx, string(raw))
}

// SaveRaw stores an already serialized payload.
func (c *WeatherCache) SaveRaw(ctx context.Context, payload string) bool {
	if err := c.store.PutString(ctx, c.key, payload); err != nil {
		observability.RecordCacheOperation("save", "error")
		c.logger.Error("cache save failed", zap.String("key", c.key), zap.Error(err))
		return false
	}
	observability.RecordCacheOperation("save", "success")
	c.logger.Debug("cache saved", zap.String("key", c.key), zap.Int("bytes", len(payload)))
	return true
}

// Load returns the last saved response. Missing, empty, null or corrupt
// payloads all read as "nothing cached".
func (c *WeatherCache) Load(ctx context.Context) (models.WeatherResponse, bool) {
	raw, ok := c.LoadRaw(ctx)
	if !ok {
		return models.WeatherResponse{}, false
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		observability.RecordCacheOperation("load", "miss")
		return models.WeatherResponse{}, false
	}
	var resp models.WeatherResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		observability.RecordCacheOperation("load", "corrupt")
		c.logger.Warn("cached payload could not be deserialized", zap.String("key", c.key), zap.Error(err))
		return models.WeatherResponse{}, false
	}
	observability.RecordCacheOperation("load", "hit")
	return resp, true
}

// LoadRaw returns the stored payload string as-is.
func (c *WeatherCache) LoadRaw(ctx context.Context) (string, bool) {
	raw, ok, err := c.store.GetString(ctx, c.key)
	if err != nil {
		observability.RecordCacheOperation("load", "error")
		c.logger.Warn("cache load failed", zap.String("key", c.key), zap.Error(err))
		return "", false
	}
	if !ok {
		observability.RecordCacheOperation("load", "miss")
		return "", false
	}
	return raw, true
}

// Clear removes the payload.
func (c *WeatherCache) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}
