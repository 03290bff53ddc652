package location

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/permission"
)

// DefaultIPLookupURL returns {status, lat, lon} for the caller's public IP.
const DefaultIPLookupURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPProvider is a network-based provider that geolocates the public IP address.
type IPProvider struct {
	url     string
	enabled bool
	perms   permission.Checker
	client  *resty.Client
	logger  *zap.Logger
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// NewIPProvider creates an IPProvider. timeout bounds the single HTTP lookup
// only; the request as a whole is still never retried.
func NewIPProvider(url string, timeout time.Duration, enabled bool, perms permission.Checker, logger *zap.Logger) *IPProvider {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IPProvider{
		url:     url,
		enabled: enabled,
		perms:   perms,
		client:  resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		logger:  logger,
	}
}

func (p *IPProvider) Name() string { return "ip" }

func (p *IPProvider) Enabled() bool { return p.enabled }

// RequestOnce performs one lookup in the background. A failed lookup is
// logged and the callback is never called.
func (p *IPProvider) RequestOnce(ctx context.Context, priority Priority, cb Callback) (Subscription, error) {
	if err := requireGrant(p.perms); err != nil {
		return nil, err
	}
	if !p.enabled {
		return nil, ErrLocationDisabled
	}
	sub, subCtx := newSubscription(ctx, p.Name())
	go func() {
		fix, err := p.lookup(subCtx)
		if err != nil {
			if subCtx.Err() == nil {
				p.logger.Warn("ip location lookup failed", zap.Error(err), zap.String("priority", priority.String()))
			}
			return
		}
		sub.deliver(cb, fix)
	}()
	return sub, nil
}

func (p *IPProvider) lookup(ctx context.Context) (models.Coordinates, error) {
	var result ipLookupResponse
	resp, err := p.client.R().SetContext(ctx).SetResult(&result).Get(p.url)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("ip lookup request: %w", err)
	}
	if resp.IsError() {
		return models.Coordinates{}, fmt.Errorf("ip lookup: HTTP %d", resp.StatusCode())
	}
	if result.Status != "success" {
		return models.Coordinates{}, fmt.Errorf("ip lookup: status %q: %s", result.Status, result.Message)
	}
	return models.Coordinates{Latitude: result.Lat, Longitude: result.Lon}, nil
}
