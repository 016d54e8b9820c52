package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zchee/chromium-vim-sub001/internal/api"
	"github.com/zchee/chromium-vim-sub001/internal/blacklist"
	"github.com/zchee/chromium-vim-sub001/internal/broadcast"
	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/browser/cdp"
	"github.com/zchee/chromium-vim-sub001/internal/config"
	"github.com/zchee/chromium-vim-sub001/internal/dispatch"
	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/fetch"
	"github.com/zchee/chromium-vim-sub001/internal/history"
	"github.com/zchee/chromium-vim-sub001/internal/lifecycle"
	"github.com/zchee/chromium-vim-sub001/internal/netutil"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/settings"
	"github.com/zchee/chromium-vim-sub001/internal/state"
	"github.com/zchee/chromium-vim-sub001/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load coordinator config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("coordinator config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"data_dir", cfg.DataDir,
		"blacklist_file", cfg.BlacklistFile,
		"session_retry_failed", cfg.SessionRetryFailed,
		"version", cfg.Version,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			StartURL:   cfg.StartURL,
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	host := cdp.NewHost(cfg.CDPURL())
	if err := host.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer host.Close()

	recordsDir := filepath.Join(cfg.DataDir, "records")
	records, err := storage.NewRecordStore(recordsDir)
	if err != nil {
		slog.Error("failed to create record store", "dir", recordsDir, "error", err)
		os.Exit(1)
	}

	journal := storage.NewJournal(filepath.Join(cfg.DataDir, "journal"), cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Debug("journal close failed", "error", err)
		}
	}()

	feed := events.NewFeed(journal, slog.Default())

	store, err := state.NewStore(records)
	if err != nil {
		slog.Error("failed to load state store", "error", err)
		os.Exit(1)
	}

	rules := &blacklist.RulesFile{}
	if cfg.BlacklistFile != "" {
		rules, err = blacklist.LoadRules(cfg.BlacklistFile)
		if err != nil {
			slog.Error("failed to load blacklist rules", "file", cfg.BlacklistFile, "error", err)
			os.Exit(1)
		}
	}
	matcher, err := blacklist.NewMatcher(*rules)
	if err != nil {
		slog.Error("failed to compile blacklist rules", "file", cfg.BlacklistFile, "error", err)
		os.Exit(1)
	}

	registry := port.NewRegistry(feed)

	settingsSvc, err := settings.NewService(records, settings.PassthroughParser{}, registry, feed)
	if err != nil {
		slog.Error("failed to init settings service", "error", err)
		os.Exit(1)
	}

	watcher, err := storage.NewRecordWatcher(recordsDir, settingsSvc.OnRecordChanged)
	if err != nil {
		slog.Error("failed to create record watcher", "dir", recordsDir, "error", err)
		os.Exit(1)
	}
	if err := watcher.Start(ctx); err != nil {
		slog.Error("failed to start record watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	fetchSvc := fetch.NewService(&http.Client{Timeout: 30 * time.Second}, feed)
	defer fetchSvc.CancelAll()

	histSvc := history.NewService(host, store, feed, history.Options{
		RetryFailedRestore: cfg.SessionRetryFailed,
	})
	if err := histSvc.Start(ctx); err != nil {
		slog.Error("failed to start session tracking", "mode", histSvc.Mode(), "error", err)
		os.Exit(1)
	}
	defer histSvc.Stop()
	slog.Info("session tracking started", "mode", histSvc.Mode())

	bcast := broadcast.NewController(store, host, registry, matcher, feed)

	var bootstrap string
	if cfg.BootstrapFile != "" {
		data, err := os.ReadFile(cfg.BootstrapFile)
		if err != nil {
			slog.Error("failed to read bootstrap script", "file", cfg.BootstrapFile, "error", err)
			os.Exit(1)
		}
		bootstrap = string(data)
	}

	manager := lifecycle.NewManager(host, records, feed, lifecycle.Options{
		Version:       cfg.Version,
		WelcomeURL:    cfg.WelcomeURL,
		ChangelogURL:  cfg.ChangelogURL,
		OpenChangelog: cfg.OpenChangelog,
		Bootstrap:     bootstrap,
		RefreshSettings: func(context.Context) error {
			settingsSvc.OnRecordChanged(settings.RecordSettings)
			return nil
		},
	})
	if err := manager.Startup(ctx); err != nil {
		slog.Error("lifecycle startup failed", "error", err)
	}

	var editor browser.Editor
	if cfg.EditorCommand != "" {
		editor = browser.CommandEditor{Command: cfg.EditorCommand}
	}

	dispatcher, err := dispatch.NewDispatcher(dispatch.Deps{
		Store:     store,
		Host:      host,
		Ports:     registry,
		History:   histSvc,
		Broadcast: bcast,
		Settings:  settingsSvc,
		Fetch:     fetchSvc,
		Editor:    editor,
		Feed:      feed,
	})
	if err != nil {
		slog.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	h := api.NewServer(api.Deps{
		Store:      store,
		Ports:      registry,
		Dispatcher: dispatcher,
		History:    histSvc,
		Broadcast:  bcast,
		Settings:   settingsSvc,
		Feed:       feed,
	})

	srv := &http.Server{Addr: bindAddr, Handler: h}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("coordinator listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, p := range registry.All() {
			p.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("coordinator exited", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
