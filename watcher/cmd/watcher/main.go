package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/common/version"

	"github.com/statuswatch/statuswatch/watcher/internal/api"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
	"github.com/statuswatch/statuswatch/watcher/internal/feed"
	"github.com/statuswatch/statuswatch/watcher/internal/logging"
	"github.com/statuswatch/statuswatch/watcher/internal/metrics"
	"github.com/statuswatch/statuswatch/watcher/internal/notify"
	"github.com/statuswatch/statuswatch/watcher/internal/poller"
	"github.com/statuswatch/statuswatch/watcher/internal/store"
)

func main() {
	var (
		configPath string
		logLevel   string
		logFormat  string
		listenAddr string
		listenSet  bool
		o          config.Overrides
	)
	app := kingpin.New(filepath.Base(os.Args[0]), "Polls a bank-connectivity status feed and alerts on new problems.")
	app.HelpFlag.Short('h')
	app.Flag("config", "Path to the YAML config file. Empty uses defaults.").Envar("STATUSWATCH_CONFIG").PlaceHolder("PATH").StringVar(&configPath)
	app.Flag("log.level", "Log level, one of [debug, info, warn, error].").Default("info").EnumVar(&logLevel, "debug", "info", "warn", "error")
	app.Flag("log.format", "Log format, one of [json, text].").Default("json").EnumVar(&logFormat, "json", "text")
	app.Flag("poll.interval", "Time between poll cycles (e.g. 30s).").Envar("STATUSWATCH_POLL_INTERVAL").DurationVar(&o.PollInterval)
	app.Flag("feed.base-url", "Base URL of the status feed.").Envar("STATUSWATCH_FEED_BASE_URL").StringVar(&o.FeedBaseURL)
	app.Flag("notify.type", "Notifier, one of [slack, teams, http, kafka, log].").Envar("STATUSWATCH_NOTIFY_TYPE").StringVar(&o.NotifyType)
	app.Flag("notify.url", "Webhook URL for slack, teams or http notifiers.").Envar("STATUSWATCH_NOTIFY_URL").StringVar(&o.NotifyURL)
	app.Flag("store.backend", "State backend, one of [memory, file, sqlite, redis, postgres].").Envar("STATUSWATCH_STORE_BACKEND").StringVar(&o.StoreBackend)
	app.Flag("store.path", "State file or database path for file and sqlite backends.").Envar("STATUSWATCH_STORE_PATH").StringVar(&o.StorePath)
	app.Flag("http.listen-addr", "Status API listen address. Empty disables it.").Envar("STATUSWATCH_LISTEN_ADDR").IsSetByUser(&listenSet).StringVar(&listenAddr)
	app.Version(version.Print("statuswatch"))

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("failed to parse commandline arguments: %w", err))
		app.Usage(os.Args[1:])
		os.Exit(2)
	}
	if listenSet {
		o.ListenAddr = &listenAddr
	}

	if _, err := logging.New(os.Stdout, logFormat, logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "unable to create logger: %v\n", err)
		os.Exit(2)
	}

	slog.Info("statuswatch starting", "version", version.Version, "config", configPath)

	cfg, err := config.Load(configPath, o)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"uptime_url", cfg.Feed.UptimeURL(),
		"timeline_url", cfg.Feed.TimelineURL(),
		"poll_interval", cfg.Watcher.PollInterval,
		"notify", cfg.Notify.Type,
		"store", cfg.Store.Backend,
	)

	if err := run(cfg, configPath, o); err != nil {
		slog.Error("statuswatch stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, o config.Overrides) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, cfg.Watcher.StoreTimeout)
	st, err := store.Open(openCtx, cfg.Store)
	openCancel()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store: close failed", "err", err)
		}
	}()

	n, err := notify.New(cfg.Notify)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	m := metrics.New()
	p := poller.New(feed.New(cfg.Feed, cfg.Watcher.FetchTimeout), n, st, m, poller.OptionsFrom(cfg.Watcher))
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("notify: close failed", "err", err)
		}
	}()

	// Feed, store and timeout changes need a restart; interval and
	// notifier are swapped live.
	watchDone := make(chan struct{})
	if configPath == "" {
		close(watchDone)
	} else {
		go func() {
			defer close(watchDone)
			err := config.Watch(ctx, configPath, o, func(updated *config.Config) {
				p.SetInterval(updated.Watcher.PollInterval)
				next, err := notify.New(updated.Notify)
				if err != nil {
					slog.Error("notify: rebuild failed, keeping previous notifier", "err", err)
					return
				}
				p.SetNotifier(next)
				slog.Info("config hot-reloaded",
					"poll_interval", updated.Watcher.PollInterval,
					"notify", updated.Notify.Type,
				)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	var httpSrv *http.Server
	if cfg.HTTP.ListenAddr != "" {
		httpSrv = &http.Server{
			Addr:              cfg.HTTP.ListenAddr,
			Handler:           api.New(st, p, m),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.HTTP.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	slog.Info("statuswatch shutting down")
	<-watchDone

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown failed", "err", err)
		}
	}
	return runErr
}
