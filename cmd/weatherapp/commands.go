package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weatherapp/internal/cache"
	"github.com/kjstillabower/weatherapp/internal/client"
	"github.com/kjstillabower/weatherapp/internal/config"
	"github.com/kjstillabower/weatherapp/internal/controller"
	"github.com/kjstillabower/weatherapp/internal/eventloop"
	httphandler "github.com/kjstillabower/weatherapp/internal/http"
	"github.com/kjstillabower/weatherapp/internal/network"
	"github.com/kjstillabower/weatherapp/internal/observability"
	"github.com/kjstillabower/weatherapp/internal/permission"
	"github.com/kjstillabower/weatherapp/internal/ui"
)

func newRootCmd(in io.Reader) *cobra.Command {
	var offline bool
	root := &cobra.Command{
		Use:           "weatherapp",
		Short:         "Current weather for where you are",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(cmd, in, offline)
		},
	}
	root.Flags().BoolVar(&offline, "offline", false, "treat the network as unavailable")

	run := &cobra.Command{
		Use:   "run",
		Short: "Show the weather screen and read r (refresh) / q (quit) from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(cmd, in, offline)
		},
	}
	run.Flags().BoolVar(&offline, "offline", false, "treat the network as unavailable")

	root.AddCommand(run, newShowCmd(), newCacheCmd())
	return root
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Render the cached weather once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer flush(logger)

			wc, closeStore, err := openWeatherCache(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			pres, err := newPresenter(cfg)
			if err != nil {
				return err
			}
			resp, ok := wc.Load(cmd.Context())
			if !ok {
				cmd.Println("no cached weather yet; run weatherapp to fetch it")
				return nil
			}
			term := ui.NewTerminal(cmd.OutOrStdout(), eventloop.Inline{}, cfg.EnvName)
			term.Show(pres.Render(term.Current(), resp))
			return nil
		},
	}
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the stored weather payload",
	}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the raw cached payload",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				defer flush(logger)
				wc, closeStore, err := openWeatherCache(cfg, logger)
				if err != nil {
					return err
				}
				defer closeStore()

				raw, ok := wc.LoadRaw(cmd.Context())
				if !ok {
					cmd.Println("(empty)")
					return nil
				}
				cmd.Println(raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the cached payload",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup()
				if err != nil {
					return err
				}
				defer flush(logger)
				wc, closeStore, err := openWeatherCache(cfg, logger)
				if err != nil {
					return err
				}
				defer closeStore()

				if err := wc.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear cache: %w", err)
				}
				cmd.Println("cache cleared")
				return nil
			},
		},
	)
	return cacheCmd
}

// runScreen runs the interactive screen until q, end of context, or a
// signal.
func runScreen(cmd *cobra.Command, in io.Reader, offline bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer flush(logger)

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	var checker network.Checker = network.NewInterfaceChecker()
	if offline {
		checker = network.Static(false)
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.Units, cfg.WeatherAPITimeout, checker)
	if err != nil {
		return err
	}

	store, ping, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("preference store close", zap.Error(err))
		}
	}()
	weatherCache := cache.NewWeatherCache(store, config.WeatherResponseDataKey, logger)

	pres, err := newPresenter(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	loop := eventloop.New()
	term := ui.NewTerminal(cmd.OutOrStdout(), loop, cfg.EnvName)
	gate := permission.NewGate(cfg.PermissionPolicy, term)
	ctrl := controller.New(controller.Dependencies{
		Screen:      term,
		Locator:     newLocator(cfg, gate, checker, logger),
		Permissions: gate,
		Network:     checker,
		Client:      weatherClient,
		Cache:       weatherCache,
		Presenter:   pres,
		Loop:        loop,
		Logger:      logger,
	}, controller.Config{RevalidateOnRefresh: cfg.RevalidateOnRefresh})

	srv, status := startStatusServer(cfg, ctrl, term, ping, logger)

	loop.Post(func() { ctrl.Start(ctx) })
	go func() {
		// End of input leaves the screen up until a signal arrives.
		for c := range term.Listen(ctx, in) {
			switch c {
			case ui.CommandRefresh:
				loop.Post(func() { ctrl.Refresh(ctx) })
			case ui.CommandQuit:
				cancel()
				return
			}
		}
	}()

	logger.Info("weatherapp started",
		zap.String("env", cfg.EnvName),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("location_provider", cfg.LocationProvider),
		zap.Bool("offline", offline))

	runErr := loop.Run(ctx)

	// The loop has stopped, so the controller can be torn down from here.
	ctrl.Close()
	loop.Close()

	if srv != nil {
		status.SetShuttingDown(true)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown", zap.Error(err))
		}
	}
	logger.Info("shutdown complete", zap.Stringer("state", ctrl.State()))

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func startStatusServer(cfg *config.Config, ctrl *controller.Controller, term *ui.Terminal, ping func() error, logger *zap.Logger) (*http.Server, *httphandler.Handler) {
	if cfg.StatusAddr == "" {
		return nil, nil
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(ctrl, term, &httphandler.HealthConfig{
		StartTime: time.Now(),
		CachePing: ping,
	}, logger)
	srv := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      httphandler.NewRouter(handler, logger, limiter),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("status server starting", zap.String("addr", cfg.StatusAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server", zap.Error(err))
		}
	}()
	return srv, handler
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func flush(logger *zap.Logger) {
	_ = observability.FlushTelemetry(context.Background(), logger)
}
