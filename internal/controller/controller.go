// Package controller drives the single weather screen: location service and
// permission checks, one location fix, one weather fetch, cache write and
// display refresh.
//
// A Controller is not safe for concurrent use. Every method, and every
// callback it schedules, runs on the event loop it was given.
package controller

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherapp/internal/cache"
	"github.com/kjstillabower/weatherapp/internal/client"
	"github.com/kjstillabower/weatherapp/internal/eventloop"
	"github.com/kjstillabower/weatherapp/internal/location"
	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/observability"
	"github.com/kjstillabower/weatherapp/internal/permission"
	"github.com/kjstillabower/weatherapp/internal/presenter"
	"github.com/kjstillabower/weatherapp/internal/ui"
)

// User-visible messages.
const (
	MsgLocationOff         = "Location is turned off. Please turn it on"
	MsgEnablePermissions   = "You can enable permissions in settings"
	MsgNoInternet          = "no internet connection"
	MsgRefreshed           = "Refreshed"
	MsgPermissionRationale = "It looks like you have turned off permissions required for the app to run. It can be enabled in settings"
	LabelGoToSettings      = "Go to settings"
	LabelCancel            = "Cancel"
)

// Config holds behaviour switches.
type Config struct {
	// RevalidateOnRefresh re-runs the location service and permission checks
	// on manual refresh. When false, refresh goes straight to acquiring a fix.
	RevalidateOnRefresh bool
}

// Dependencies are the collaborators a Controller drives.
type Dependencies struct {
	Screen      ui.Screen
	Locator     location.Provider
	Permissions permission.Requester
	Network     network.Checker
	Client      client.WeatherClient
	Cache       *cache.WeatherCache
	Presenter   presenter.Presenter
	Loop        eventloop.Poster
	Logger      *zap.Logger
}

type Controller struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger

	ctx     context.Context
	state   atomic.Int32
	current presenter.DisplayFields

	// gen invalidates permission results and location fixes from an
	// earlier cycle.
	gen      uint64
	sub      location.Subscription
	fetching bool
	dialog   ui.Dialog
	progress ui.Dialog
	closed   bool

	// OnStateChange, if set, is called on the loop after every transition.
	OnStateChange func(from, to State)
}

func New(deps Dependencies, cfg Config) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{deps: deps, cfg: cfg, logger: logger, ctx: context.Background()}
	c.state.Store(int32(StateInit))
	return c
}

// State returns the current state. Unlike the other methods it may be called
// from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start renders whatever is cached and begins a cycle. ctx bounds every
// request the controller makes until Close.
func (c *Controller) Start(ctx context.Context) {
	if c.closed {
		return
	}
	c.ctx = ctx
	c.renderCached()
	c.checkAndAcquire()
}

// Refresh is the manual refresh action. It is ignored while a fetch is in
// flight.
func (c *Controller) Refresh(ctx context.Context) {
	if c.closed {
		return
	}
	if c.fetching {
		c.logger.Debug("refresh ignored, fetch in flight")
		return
	}
	if ctx != nil {
		c.ctx = ctx
	}
	if c.cfg.RevalidateOnRefresh {
		c.checkAndAcquire()
	} else {
		c.acquire()
	}
	c.deps.Screen.Toast(MsgRefreshed)
}

// Pause dismisses the dialog the controller owns, if any.
func (c *Controller) Pause() {
	if c.dialog != nil {
		c.dialog.Dismiss()
		c.dialog = nil
	}
}

// Close pauses, cancels the outstanding location request and drops any
// result still on its way.
func (c *Controller) Close() {
	c.Pause()
	c.cancelSubscription()
	c.hideProgress()
	c.gen++
	c.closed = true
}

func (c *Controller) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	observability.ControllerState.Set(float64(to))
	c.logger.Debug("state change", zap.Stringer("from", from), zap.Stringer("to", to))
	if c.OnStateChange != nil {
		c.OnStateChange(from, to)
	}
}

func (c *Controller) renderCached() {
	if c.deps.Cache == nil {
		return
	}
	resp, ok := c.deps.Cache.Load(c.ctx)
	if !ok {
		return
	}
	c.show(resp)
}

func (c *Controller) show(resp models.WeatherResponse) {
	c.current = c.deps.Presenter.Render(c.current, resp)
	c.deps.Screen.Show(c.current)
}

func (c *Controller) checkAndAcquire() {
	c.Pause()
	c.gen++
	c.setState(StateCheckingLocationService)
	if !c.deps.Locator.Enabled() {
		c.locationDisabled()
		return
	}
	c.setState(StateCheckingPermissions)
	c.requestPermissions(false)
}

func (c *Controller) locationDisabled() {
	c.deps.Screen.Toast(MsgLocationOff)
	c.deps.Screen.OpenSettings(ui.SettingsLocation)
	c.setState(StateLocationDisabled)
}

// requestPermissions runs the request off the loop since it may wait on the
// user, then continues on the loop.
func (c *Controller) requestPermissions(afterRationale bool) {
	gen := c.gen
	ctx := c.ctx
	perms := c.deps.Permissions
	go func() {
		report, err := perms.Request(ctx, permission.Location...)
		c.deps.Loop.Post(func() {
			if gen != c.gen || c.closed {
				return
			}
			c.onPermissions(report, err, afterRationale)
		})
	}()
}

func (c *Controller) onPermissions(report permission.Report, err error, afterRationale bool) {
	switch {
	case err != nil:
		c.logger.Warn("permission request failed", zap.Error(err))
		c.setState(StatePermissionDenied)
	case report.AllGranted():
		c.acquire()
	case report.AnyPermanentlyDenied():
		c.deps.Screen.Toast(MsgEnablePermissions)
		c.setState(StatePermissionDenied)
	case report.RationaleNeeded && !afterRationale:
		c.setState(StatePermissionDenied)
		c.showRationale()
	default:
		c.logger.Info("location permission denied")
		c.setState(StatePermissionDenied)
	}
}

func (c *Controller) showRationale() {
	c.Pause()
	gen := c.gen
	var d ui.Dialog
	d = c.deps.Screen.ShowDialog(ui.DialogSpec{
		Message: MsgPermissionRationale,
		Positive: ui.Button{Label: LabelGoToSettings, OnClick: func() {
			if !c.releaseDialog(d) || gen != c.gen {
				return
			}
			c.deps.Screen.OpenSettings(ui.SettingsApplication)
			c.deps.Permissions.AcknowledgeRationale(permission.Location...)
			c.setState(StateCheckingPermissions)
			c.requestPermissions(true)
		}},
		Negative: ui.Button{Label: LabelCancel, OnClick: func() {
			c.releaseDialog(d)
		}},
	})
	c.dialog = d
}

// releaseDialog forgets d if it is still the owned dialog.
func (c *Controller) releaseDialog(d ui.Dialog) bool {
	if c.dialog == nil || c.dialog != d {
		return false
	}
	c.dialog.Dismiss()
	c.dialog = nil
	return true
}

func (c *Controller) cancelSubscription() {
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
}

// acquire replaces any outstanding location request with a new one. The fix
// is handed to the loop and dropped if a later cycle has started.
func (c *Controller) acquire() {
	c.Pause()
	c.cancelSubscription()
	c.gen++
	gen := c.gen
	c.setState(StateFetching)

	sub, err := c.deps.Locator.RequestOnce(c.ctx, location.PriorityHighAccuracy, func(fix models.Coordinates) {
		c.deps.Loop.Post(func() {
			if gen != c.gen || c.closed {
				c.logger.Debug("dropping stale location fix")
				return
			}
			c.sub = nil
			c.fetch(fix)
		})
	})
	switch {
	case errors.Is(err, location.ErrLocationDisabled):
		c.locationDisabled()
	case errors.Is(err, location.ErrPermissionDenied):
		c.logger.Info("location request refused", zap.Error(err))
		c.setState(StatePermissionDenied)
	case err != nil:
		c.logger.Error("location request failed", zap.String("provider", c.deps.Locator.Name()), zap.Error(err))
		c.setState(StateError)
	default:
		c.sub = sub
	}
}

func (c *Controller) fetch(fix models.Coordinates) {
	if c.fetching {
		c.logger.Debug("fetch already in flight, dropping fix")
		return
	}
	cycleID := uuid.NewString()
	logger := c.logger.With(zap.String("cycle_id", cycleID))

	if !c.deps.Network.Available() {
		logger.Info(client.Describe(client.ErrorCategoryNoNetwork))
		c.deps.Screen.Toast(MsgNoInternet)
		observability.RecordFetchCycle(string(client.ErrorCategoryNoNetwork))
		c.setState(StateError)
		return
	}

	c.fetching = true
	c.showProgress()
	ctx := client.WithCycleID(c.ctx, cycleID)
	gen := c.gen
	weather := c.deps.Client
	logger.Debug("fetching weather", zap.Float64("lat", fix.Latitude), zap.Float64("lon", fix.Longitude))
	go func() {
		resp, err := weather.Fetch(ctx, fix)
		c.deps.Loop.Post(func() {
			c.fetching = false
			if c.closed {
				return
			}
			c.hideProgress()
			if gen != c.gen {
				logger.Debug("dropping stale weather result")
				return
			}
			c.onFetched(logger, resp, err)
		})
	}()
}

func (c *Controller) onFetched(logger *zap.Logger, resp models.WeatherResponse, err error) {
	if err == nil {
		// A failed write leaves an older payload in the store, so only a
		// successful one is read back.
		if c.deps.Cache != nil && c.deps.Cache.Save(c.ctx, resp) {
			if cached, ok := c.deps.Cache.Load(c.ctx); ok {
				resp = cached
			}
		}
		c.show(resp)
		observability.RecordFetchCycle("success")
		logger.Info("weather updated", zap.String("name", resp.Name))
		c.setState(StateIdle)
		return
	}

	category := client.CategorizeError(err)
	observability.RecordFetchCycle(string(category))
	if errors.Is(err, client.ErrNoData) {
		logger.Warn(client.Describe(category), zap.Error(err))
		c.setState(StateIdle)
		return
	}
	if category == client.ErrorCategoryNoNetwork {
		c.deps.Screen.Toast(MsgNoInternet)
	}
	logger.Error(client.Describe(category), zap.String("category", string(category)), zap.Error(err))
	c.setState(StateError)
}

func (c *Controller) showProgress() {
	c.hideProgress()
	c.progress = c.deps.Screen.ShowProgress()
}

func (c *Controller) hideProgress() {
	if c.progress != nil {
		c.progress.Dismiss()
		c.progress = nil
	}
}
