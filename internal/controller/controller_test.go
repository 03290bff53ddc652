package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weatherapp/internal/cache"
	"github.com/kjstillabower/weatherapp/internal/client"
	"github.com/kjstillabower/weatherapp/internal/eventloop"
	"github.com/kjstillabower/weatherapp/internal/location"
	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/permission"
	"github.com/kjstillabower/weatherapp/internal/presenter"
	"github.com/kjstillabower/weatherapp/internal/ui"
)

var london = models.Coordinates{Latitude: 51.5, Longitude: -0.12}

func sampleResponse(name string) models.WeatherResponse {
	return models.WeatherResponse{
		Weather: []models.Condition{{Main: "Clouds", Description: "broken clouds", Icon: "04d"}},
		Main:    models.Main{Temp: 11.5, TempMin: 9.3, TempMax: 13, Humidity: 81},
		Wind:    models.Wind{Speed: 4.1},
		Sys:     models.Sys{Country: "GB", Sunrise: 1700000000, Sunset: 1700035000},
		Name:    name,
	}
}

type fakeDialog struct {
	mu        sync.Mutex
	dismissed int
}

func (d *fakeDialog) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed++
}

func (d *fakeDialog) isDismissed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dismissed > 0
}

type fakeScreen struct {
	mu       sync.Mutex
	shown    []presenter.DisplayFields
	toasts   []string
	settings []ui.SettingsPage
	specs    []ui.DialogSpec
	dialogs  []*fakeDialog
	progress []*fakeDialog
}

func (s *fakeScreen) Show(f presenter.DisplayFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, f)
}

func (s *fakeScreen) Toast(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = append(s.toasts, msg)
}

func (s *fakeScreen) OpenSettings(page ui.SettingsPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = append(s.settings, page)
}

func (s *fakeScreen) ShowDialog(spec ui.DialogSpec) ui.Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &fakeDialog{}
	s.specs = append(s.specs, spec)
	s.dialogs = append(s.dialogs, d)
	return d
}

func (s *fakeScreen) ShowProgress() ui.Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &fakeDialog{}
	s.progress = append(s.progress, d)
	return d
}

func (s *fakeScreen) shownFields() []presenter.DisplayFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presenter.DisplayFields(nil), s.shown...)
}

func (s *fakeScreen) toastList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.toasts...)
}

func (s *fakeScreen) settingsList() []ui.SettingsPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ui.SettingsPage(nil), s.settings...)
}

func (s *fakeScreen) dialogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dialogs)
}

func (s *fakeScreen) lastDialog() (ui.DialogSpec, *fakeDialog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.dialogs)
	return s.specs[n-1], s.dialogs[n-1]
}

func (s *fakeScreen) openProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := 0
	for _, p := range s.progress {
		if !p.isDismissed() {
			open++
		}
	}
	return open
}

func (s *fakeScreen) hasToast(msg string) bool {
	for _, t := range s.toastList() {
		if t == msg {
			return true
		}
	}
	return false
}

// fakeProvider records callbacks; tests deliver fixes by hand. Cancelled
// subscriptions still deliver so the controller's own guard is exercised.
type fakeProvider struct {
	mu        sync.Mutex
	enabled   bool
	perms     permission.Checker
	cbs       []location.Callback
	cancelled int
}

type fakeSub struct{ p *fakeProvider }

func (s fakeSub) Cancel() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.cancelled++
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

func (p *fakeProvider) setEnabled(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = v
}

func (p *fakeProvider) RequestOnce(ctx context.Context, priority location.Priority, cb location.Callback) (location.Subscription, error) {
	if !p.perms.Granted(permission.FineLocation) && !p.perms.Granted(permission.CoarseLocation) {
		return nil, location.ErrPermissionDenied
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cbs = append(p.cbs, cb)
	return fakeSub{p}, nil
}

func (p *fakeProvider) requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cbs)
}

func (p *fakeProvider) cancels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *fakeProvider) deliver(i int, fix models.Coordinates) {
	p.mu.Lock()
	cb := p.cbs[i]
	p.mu.Unlock()
	cb(fix)
}

type fakeClient struct {
	mu       sync.Mutex
	resp     models.WeatherResponse
	err      error
	calls    int
	cycleIDs []string
	release  chan struct{}
	started  chan struct{}
}

func (c *fakeClient) Fetch(ctx context.Context, coords models.Coordinates) (models.WeatherResponse, error) {
	c.mu.Lock()
	c.calls++
	c.cycleIDs = append(c.cycleIDs, client.CycleIDFromContext(ctx))
	release, started := c.release, c.started
	c.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return c.resp, c.err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type scriptedPrompter struct {
	mu      sync.Mutex
	answers []string
	asked   int
}

func (p *scriptedPrompter) Ask(ctx context.Context, q string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.asked >= len(p.answers) {
		return "", errors.New("no scripted answer")
	}
	a := p.answers[p.asked]
	p.asked++
	return a, nil
}

// flakyStore rejects writes once failPuts is set; reads keep working.
type flakyStore struct {
	*cache.InMemoryStore
	failPuts atomic.Bool
}

func (s *flakyStore) PutString(ctx context.Context, key, value string) error {
	if s.failPuts.Load() {
		return errors.New("disk full")
	}
	return s.InMemoryStore.PutString(ctx, key, value)
}

type setup struct {
	policy      permission.Policy
	prompter    permission.Prompter
	offline     bool
	locationOff bool
	revalidate  bool
	cached      *models.WeatherResponse
	saveFails   bool
	resp        models.WeatherResponse
	err         error
}

type harness struct {
	t        *testing.T
	loop     *eventloop.Loop
	ctrl     *Controller
	screen   *fakeScreen
	provider *fakeProvider
	client   *fakeClient
	cache    *cache.WeatherCache
	logs     *observer.ObservedLogs
	states   chan State
}

func newHarness(t *testing.T, s setup) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	gate := permission.NewGate(s.policy, s.prompter)
	store := &flakyStore{InMemoryStore: cache.NewInMemoryStore()}
	wc := cache.NewWeatherCache(store, "weather_response_data", logger)
	if s.cached != nil {
		wc.Save(context.Background(), *s.cached)
	}
	store.failPuts.Store(s.saveFails)

	h := &harness{
		t:        t,
		loop:     eventloop.New(),
		screen:   &fakeScreen{},
		provider: &fakeProvider{enabled: !s.locationOff, perms: gate},
		client:   &fakeClient{resp: s.resp, err: s.err},
		cache:    wc,
		logs:     logs,
		states:   make(chan State, 64),
	}
	h.ctrl = New(Dependencies{
		Screen:      h.screen,
		Locator:     h.provider,
		Permissions: gate,
		Network:     network.Static(!s.offline),
		Client:      h.client,
		Cache:       wc,
		Presenter:   presenter.New("GB", time.UTC),
		Loop:        h.loop,
		Logger:      logger,
	}, Config{RevalidateOnRefresh: s.revalidate})
	h.ctrl.OnStateChange = func(from, to State) { h.states <- to }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.t.Helper()
	done := make(chan struct{})
	if !h.loop.Post(func() { fn(); close(done) }) {
		h.t.Fatal("loop closed")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("loop did not run callback")
	}
}

func (h *harness) start() {
	h.do(func() { h.ctrl.Start(context.Background()) })
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.states:
			if got == want {
				return
			}
		case <-timeout:
			h.t.Fatalf("state %s not reached, controller is %s", want, h.ctrl.State())
		}
	}
}

func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// deliverFix hands fix to the i-th location request once it exists.
func (h *harness) deliverFix(i int) {
	h.t.Helper()
	h.waitFor(fmt.Sprintf("location request %d", i), func() bool { return h.provider.requests() > i })
	h.provider.deliver(i, london)
}

func TestController_StartFetchesAndRenders(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, resp: sampleResponse("London")})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateIdle)

	shown := h.screen.shownFields()
	if len(shown) != 1 {
		t.Fatalf("Show called %d times, want 1", len(shown))
	}
	got := shown[0]
	if got.Name != "London" || got.Temperature != "11.5°C" || got.Min != "9.3min" || got.Icon != presenter.IconCloud {
		t.Errorf("rendered fields = %+v", got)
	}
	if got.Sunrise != "22:13" {
		t.Errorf("Sunrise = %q, want 22:13", got.Sunrise)
	}

	cached, ok := h.cache.Load(context.Background())
	if !ok || cached.Name != "London" {
		t.Errorf("cache after success = (%+v, %v)", cached, ok)
	}
	if h.client.callCount() != 1 {
		t.Errorf("client calls = %d, want 1", h.client.callCount())
	}
	if id := h.client.cycleIDs[0]; id == "" {
		t.Error("fetch context carried no cycle id")
	}
	if n := h.screen.openProgress(); n != 0 {
		t.Errorf("%d progress dialogs left open", n)
	}
	if len(h.screen.progress) != 1 {
		t.Errorf("progress shown %d times, want 1", len(h.screen.progress))
	}
}

func TestController_FailedSaveRendersFetchedResponse(t *testing.T) {
	stale := sampleResponse("Stale")
	h := newHarness(t, setup{
		policy:    permission.PolicyGranted,
		cached:    &stale,
		saveFails: true,
		resp:      sampleResponse("Fresh"),
	})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateIdle)

	shown := h.screen.shownFields()
	if len(shown) != 2 {
		t.Fatalf("Show called %d times, want 2 (cached then fetched)", len(shown))
	}
	if got := shown[1].Name; got != "Fresh" {
		t.Errorf("rendered %q after a failed save, want Fresh", got)
	}
	if e := h.logs.FilterMessage("cache save failed").All(); len(e) != 1 {
		t.Errorf("cache save failed logs = %d, want 1", len(e))
	}
	if cached, _ := h.cache.Load(context.Background()); cached.Name != "Stale" {
		t.Errorf("store holds %q, want the untouched Stale payload", cached.Name)
	}
}

func TestController_StartRendersCachedFirst(t *testing.T) {
	cached := sampleResponse("Cached Town")
	h := newHarness(t, setup{policy: permission.PolicyDenied, cached: &cached})
	h.start()
	h.waitState(StatePermissionDenied)

	shown := h.screen.shownFields()
	if len(shown) != 1 || shown[0].Name != "Cached Town" {
		t.Fatalf("shown = %+v, want cached payload rendered once", shown)
	}
	if h.provider.requests() != 0 {
		t.Errorf("location requested %d times after denial", h.provider.requests())
	}
}

func TestController_HTTPErrorLeavesFieldsUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{"not found", 404, "not found"},
		{"bad request", 400, "bad connection"},
		{"server error", 503, "generic error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := sampleResponse("Before")
			h := newHarness(t, setup{
				policy: permission.PolicyGranted,
				cached: &cached,
				err:    &client.HTTPError{Code: tt.code},
			})
			h.start()
			h.waitState(StateFetching)
			h.deliverFix(0)
			h.waitState(StateError)

			shown := h.screen.shownFields()
			if len(shown) != 1 || shown[0].Name != "Before" {
				t.Errorf("shown = %+v, want only the cached render", shown)
			}
			entries := h.logs.FilterMessage(tt.message).All()
			if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
				t.Fatalf("want one error log %q, got %v", tt.message, entries)
			}
			if _, ok := entries[0].ContextMap()["cycle_id"]; !ok {
				t.Error("error log has no cycle_id")
			}
			if still, _ := h.cache.Load(context.Background()); still.Name != "Before" {
				t.Errorf("cache overwritten on failure: %q", still.Name)
			}
			if n := h.screen.openProgress(); n != 0 {
				t.Errorf("%d progress dialogs left open", n)
			}
		})
	}
}

func TestController_NoNetworkSkipsFetch(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, offline: true})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateError)

	if h.client.callCount() != 0 {
		t.Errorf("client called %d times while offline", h.client.callCount())
	}
	if !h.screen.hasToast(MsgNoInternet) {
		t.Errorf("toasts = %v, want %q", h.screen.toastList(), MsgNoInternet)
	}
	if len(h.screen.progress) != 0 {
		t.Error("progress shown while offline")
	}
}

func TestController_NoDataEndsIdleWithoutRender(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, err: fmt.Errorf("%w: empty body", client.ErrNoData)})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateIdle)

	if n := len(h.screen.shownFields()); n != 0 {
		t.Errorf("Show called %d times on no data", n)
	}
	if _, ok := h.cache.Load(context.Background()); ok {
		t.Error("cache written on no data")
	}
}

func TestController_LocationDisabled(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, locationOff: true})
	h.start()
	h.waitState(StateLocationDisabled)

	if !h.screen.hasToast(MsgLocationOff) {
		t.Errorf("toasts = %v", h.screen.toastList())
	}
	if got := h.screen.settingsList(); len(got) != 1 || got[0] != ui.SettingsLocation {
		t.Errorf("settings opened = %v, want [location]", got)
	}
	if h.provider.requests() != 0 {
		t.Error("location requested while the service is off")
	}
}

func TestController_PermanentDenial(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyDeniedPermanently})
	h.start()
	h.waitState(StatePermissionDenied)

	if !h.screen.hasToast(MsgEnablePermissions) {
		t.Errorf("toasts = %v, want %q", h.screen.toastList(), MsgEnablePermissions)
	}
	if h.screen.dialogCount() != 0 {
		t.Error("rationale shown for a permanent denial")
	}
}

func TestController_RationaleThenGrant(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"n", "y"}}
	h := newHarness(t, setup{
		policy:     permission.PolicyPrompt,
		prompter:   prompter,
		revalidate: true,
		resp:       sampleResponse("London"),
	})
	h.start()
	h.waitState(StatePermissionDenied)
	if h.screen.dialogCount() != 0 {
		t.Fatal("rationale shown on first denial")
	}

	h.do(func() { h.ctrl.Refresh(context.Background()) })
	h.waitFor("rationale dialog", func() bool { return h.screen.dialogCount() == 1 })
	spec, dlg := h.screen.lastDialog()
	if spec.Message != MsgPermissionRationale || spec.Positive.Label != LabelGoToSettings || spec.Negative.Label != LabelCancel {
		t.Fatalf("dialog = %+v", spec)
	}

	h.do(spec.Positive.OnClick)
	if !dlg.isDismissed() {
		t.Error("dialog not dismissed after click")
	}
	h.waitState(StateFetching)
	if got := h.screen.settingsList(); len(got) != 1 || got[0] != ui.SettingsApplication {
		t.Errorf("settings opened = %v, want [application]", got)
	}
	h.deliverFix(0)
	h.waitState(StateIdle)
	if n := len(h.screen.shownFields()); n != 1 {
		t.Errorf("Show called %d times, want 1", n)
	}
}

func TestController_RationaleCancel(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"no"}}
	h := newHarness(t, setup{policy: permission.PolicyPrompt, prompter: prompter, revalidate: true})
	h.start()
	h.waitState(StatePermissionDenied)
	h.do(func() { h.ctrl.Refresh(context.Background()) })
	h.waitFor("rationale dialog", func() bool { return h.screen.dialogCount() == 1 })

	spec, dlg := h.screen.lastDialog()
	h.do(spec.Negative.OnClick)
	if !dlg.isDismissed() {
		t.Error("dialog not dismissed on cancel")
	}
	if len(h.screen.settingsList()) != 0 {
		t.Error("settings opened on cancel")
	}
	h.do(spec.Positive.OnClick)
	if len(h.screen.settingsList()) != 0 {
		t.Error("button of a released dialog still acted")
	}
	if h.ctrl.State() != StatePermissionDenied {
		t.Errorf("state = %s, want permission_denied", h.ctrl.State())
	}
}

func TestController_PauseDismissesOwnedDialog(t *testing.T) {
	prompter := &scriptedPrompter{answers: []string{"n"}}
	h := newHarness(t, setup{policy: permission.PolicyPrompt, prompter: prompter, revalidate: true})
	h.start()
	h.waitState(StatePermissionDenied)
	h.do(func() { h.ctrl.Refresh(context.Background()) })
	h.waitFor("rationale dialog", func() bool { return h.screen.dialogCount() == 1 })

	_, dlg := h.screen.lastDialog()
	h.do(h.ctrl.Pause)
	h.do(h.ctrl.Pause)
	dlg.mu.Lock()
	dismissed := dlg.dismissed
	dlg.mu.Unlock()
	if dismissed != 1 {
		t.Errorf("dialog dismissed %d times, want 1", dismissed)
	}
}

func TestController_StaleFixIsDropped(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, resp: sampleResponse("London")})
	h.start()
	h.waitState(StateFetching)
	h.waitFor("first request", func() bool { return h.provider.requests() == 1 })

	h.do(func() { h.ctrl.Refresh(context.Background()) })
	if h.provider.requests() != 2 {
		t.Fatalf("requests = %d, want 2", h.provider.requests())
	}
	if h.provider.cancels() != 1 {
		t.Errorf("cancels = %d, want the first request cancelled", h.provider.cancels())
	}

	h.provider.deliver(0, london)
	h.do(func() {})
	if h.client.callCount() != 0 {
		t.Fatal("stale fix started a fetch")
	}

	h.provider.deliver(1, london)
	h.waitState(StateIdle)
	if h.client.callCount() != 1 {
		t.Errorf("client calls = %d, want 1", h.client.callCount())
	}
	if !h.screen.hasToast(MsgRefreshed) {
		t.Errorf("toasts = %v, want %q", h.screen.toastList(), MsgRefreshed)
	}
}

func TestController_RefreshIgnoredWhileFetching(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, resp: sampleResponse("London")})
	h.client.release = make(chan struct{})
	h.client.started = make(chan struct{}, 1)
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	<-h.client.started

	h.do(func() { h.ctrl.Refresh(context.Background()) })
	if h.provider.requests() != 1 {
		t.Errorf("refresh during fetch issued a new location request")
	}
	if h.screen.hasToast(MsgRefreshed) {
		t.Error("ignored refresh still toasted")
	}
	if h.screen.openProgress() != 1 {
		t.Errorf("open progress = %d, want 1 during fetch", h.screen.openProgress())
	}

	close(h.client.release)
	h.waitState(StateIdle)
	if h.screen.openProgress() != 0 {
		t.Error("progress left open after fetch")
	}
}

func TestController_RefreshRevalidates(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, revalidate: true, resp: sampleResponse("London")})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateIdle)

	h.provider.setEnabled(false)
	h.do(func() { h.ctrl.Refresh(context.Background()) })
	h.waitState(StateLocationDisabled)
	if h.provider.requests() != 1 {
		t.Errorf("requests = %d, want no new request", h.provider.requests())
	}
}

func TestController_RefreshWithoutRevalidation(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted, resp: sampleResponse("London")})
	h.start()
	h.waitState(StateFetching)
	h.deliverFix(0)
	h.waitState(StateIdle)

	h.provider.setEnabled(false)
	h.do(func() { h.ctrl.Refresh(context.Background()) })
	h.waitState(StateFetching)
	h.deliverFix(1)
	h.waitState(StateIdle)
	if h.client.callCount() != 2 {
		t.Errorf("client calls = %d, want 2", h.client.callCount())
	}
}

func TestController_CloseDropsPendingFix(t *testing.T) {
	h := newHarness(t, setup{policy: permission.PolicyGranted})
	h.start()
	h.waitState(StateFetching)
	h.waitFor("request", func() bool { return h.provider.requests() == 1 })

	h.do(h.ctrl.Close)
	if h.provider.cancels() != 1 {
		t.Errorf("cancels = %d, want 1", h.provider.cancels())
	}
	h.provider.deliver(0, london)
	h.do(func() {})
	if h.client.callCount() != 0 {
		t.Error("fix delivered after Close started a fetch")
	}
	h.do(func() { h.ctrl.Refresh(context.Background()) })
	if h.provider.requests() != 1 {
		t.Error("Refresh after Close requested a fix")
	}
}

func TestController_WithStaticProvider(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	gate := permission.NewGate(permission.PolicyGranted, nil)
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	screen := &fakeScreen{}
	states := make(chan State, 16)
	ctrl := New(Dependencies{
		Screen:      screen,
		Locator:     location.NewStaticProvider(london, true, gate),
		Permissions: gate,
		Network:     network.Static(true),
		Client:      &fakeClient{resp: sampleResponse("Static")},
		Cache:       cache.NewWeatherCache(cache.NewInMemoryStore(), "k", logger),
		Presenter:   presenter.New("US", time.UTC),
		Loop:        loop,
		Logger:      logger,
	}, Config{})
	ctrl.OnStateChange = func(from, to State) { states <- to }
	loop.Post(func() { ctrl.Start(ctx) })

	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case s := <-states:
			done = s == StateIdle
		case <-timeout:
			t.Fatalf("never reached idle, state %s", ctrl.State())
		}
	}
	shown := screen.shownFields()
	if len(shown) != 1 || shown[0].Temperature != "11.5°F" {
		t.Errorf("shown = %+v, want Fahrenheit label for US", shown)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateInit, "init"},
		{StateCheckingLocationService, "checking_location_service"},
		{StateLocationDisabled, "location_disabled"},
		{StateCheckingPermissions, "checking_permissions"},
		{StatePermissionDenied, "permission_denied"},
		{StateFetching, "fetching"},
		{StateIdle, "idle"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
	if StateFetching.Terminal() || !StateIdle.Terminal() {
		t.Error("Terminal() misclassifies states")
	}
}
