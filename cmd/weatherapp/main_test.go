package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherapp/internal/cache"
	"github.com/kjstillabower/weatherapp/internal/config"
	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/permission"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// workspace creates config/dev.yaml in a temp dir and changes into it.
func workspace(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "dev.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_NAME", "")
	t.Setenv("WEATHER_API_KEY", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("LOCATION_PROVIDER", "")
	t.Setenv("PERMISSION_POLICY", "")
	t.Setenv("STATUS_ADDR", "")
	t.Setenv("DISPLAY_TIMEZONE", "")
	t.Setenv("LOG_FILE", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func execute(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	cmd := newRootCmd(in)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, path string, resp models.WeatherResponse) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := cache.NewSQLiteStore(path, config.PreferenceName)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	cache.NewWeatherCache(store, config.WeatherResponseDataKey, zap.NewNop()).Save(context.Background(), resp)
}

var london = models.WeatherResponse{
	Coord:   models.Coordinates{Latitude: 51.51, Longitude: -0.13},
	Weather: []models.Condition{{Main: "Rain", Description: "light rain", Icon: "10d"}},
	Main:    models.Main{Temp: 8.5, TempMin: 7, TempMax: 10, Humidity: 90},
	Wind:    models.Wind{Speed: 4.1},
	Sys:     models.Sys{Country: "GB", Sunrise: 1700000000, Sunset: 1700030000},
	Name:    "London",
}

func TestCacheCommands_SQLite(t *testing.T) {
	dir := workspace(t, "cache:\n  backend: sqlite\n  sqlite:\n    path: prefs/app.db\ndisplay:\n  locale: en_GB\n  timezone: UTC\n")
	seed(t, filepath.Join(dir, "prefs", "app.db"), london)

	out, err := execute(t, nil, "cache", "show")
	if err != nil {
		t.Fatalf("cache show: %v", err)
	}
	if !strings.Contains(out, `"name":"London"`) {
		t.Errorf("cache show output = %q, want raw payload", out)
	}

	out, err = execute(t, nil, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"London, GB", "8.5°C", "light rain"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, nil, "cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	out, err = execute(t, nil, "cache", "show")
	if err != nil {
		t.Fatalf("cache show after clear: %v", err)
	}
	if !strings.Contains(out, "(empty)") {
		t.Errorf("cache show after clear = %q, want (empty)", out)
	}
}

func TestShow_EmptyCache(t *testing.T) {
	workspace(t, "cache:\n  backend: in_memory\n")
	out, err := execute(t, nil, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "no cached weather yet") {
		t.Errorf("show output = %q", out)
	}
}

func TestRun_RequiresAPIKey(t *testing.T) {
	workspace(t, "cache:\n  backend: in_memory\n")
	_, err := execute(t, strings.NewReader(""), "run")
	if err == nil || !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Fatalf("run without key err = %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	workspace(t, "cache:\n  backend: redis\n")
	_, err := execute(t, nil, "cache", "show")
	if err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Fatalf("err = %v, want cache.backend error", err)
	}
}

func TestRun_OfflineThenQuit(t *testing.T) {
	workspace(t, "cache:\n  backend: in_memory\npermission:\n  policy: granted\n")
	t.Setenv("WEATHER_API_KEY", "0123456789abcdef")

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &syncBuffer{}
	cmd := newRootCmd(pr)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"run", "--offline"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for !strings.Contains(out.String(), "no internet connection") {
		select {
		case err := <-done:
			t.Fatalf("run exited before the offline toast: %v\noutput:\n%s", err, out.String())
		case <-deadline:
			t.Fatalf("no offline toast, output:\n%s", out.String())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, err := io.WriteString(pw, "q\n"); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not exit after q")
	}
}

func TestNewLocator(t *testing.T) {
	gate := permission.NewGate(permission.PolicyGranted, nil)
	tests := []struct {
		name     string
		provider string
		online   bool
		wantName string
	}{
		{"static", "static", true, "static"},
		{"ip", "ip", true, "ip"},
		{"auto online prefers ip", "auto", true, "ip"},
		{"auto offline falls back to static", "auto", false, "static"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{LocationEnabled: true, LocationProvider: tt.provider, Latitude: 1, Longitude: 2}
			got := newLocator(cfg, gate, network.Static(tt.online), zap.NewNop())
			if got.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.wantName)
			}
			if !got.Enabled() {
				t.Error("Enabled() = false")
			}
		})
	}
}

func TestNewPresenter_BadTimezone(t *testing.T) {
	if _, err := newPresenter(&config.Config{Timezone: "Mars/Olympus"}); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if _, err := newPresenter(&config.Config{Timezone: "Europe/London", Locale: "en_US.UTF-8"}); err != nil {
		t.Fatalf("newPresenter: %v", err)
	}
}
