package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/rewardrunner/internal/api"
	"github.com/dgnsrekt/rewardrunner/internal/browser"
	"github.com/dgnsrekt/rewardrunner/internal/catalog"
	"github.com/dgnsrekt/rewardrunner/internal/cdp"
	"github.com/dgnsrekt/rewardrunner/internal/cdpcontrol"
	"github.com/dgnsrekt/rewardrunner/internal/config"
	"github.com/dgnsrekt/rewardrunner/internal/controller"
	"github.com/dgnsrekt/rewardrunner/internal/events"
	"github.com/dgnsrekt/rewardrunner/internal/netutil"
	"github.com/dgnsrekt/rewardrunner/internal/notify"
	"github.com/dgnsrekt/rewardrunner/internal/runner"
	"github.com/dgnsrekt/rewardrunner/internal/trigger"
	"github.com/dgnsrekt/rewardrunner/internal/types"
	"gopkg.in/natefinch/lumberjack.v2"
)

// driver is the tab control surface both CDP clients provide.
type driver interface {
	runner.Browser
	types.TabWatcher
	Connect(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"driver", cfg.Driver,
		"search_count", cfg.SearchCount,
		"search_interval_ms", cfg.SearchIntervalMS,
		"trigger_on_new_tab", cfg.TriggerOnNewTab,
		"schedule", cfg.Schedule,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	cat, err := catalog.Load(cfg.TermsFile)
	if err != nil {
		slog.Error("failed to load term catalog", "path", cfg.TermsFile, "error", err)
		os.Exit(1)
	}
	if err := cfg.CheckSearchCount(cat.Len()); err != nil {
		slog.Error("invalid search count", "error", err)
		os.Exit(1)
	}
	if cfg.Schedule != "" {
		if _, err := trigger.ParseSchedule(cfg.Schedule); err != nil {
			slog.Error("invalid schedule", "error", err)
			os.Exit(1)
		}
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind API address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var launcher *browser.Launcher
	launched := false
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			StartURL:    cfg.SearchURL,
			ProfileDir:  cfg.ProfileDir,
			BrowserPath: cfg.BrowserPath,
			Headless:    cfg.Headless,
		})
		launched, err = launcher.Launch(rootCtx)
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			_ = ln.Close()
			os.Exit(1)
		}
	}

	client := newDriver(cfg)
	if err := client.Connect(rootCtx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "driver", cfg.Driver, "error", err)
		if launcher != nil {
			launcher.Stop()
		}
		os.Exit(1)
	}

	broker := events.NewBroker()
	deps := runner.Deps{
		Catalog: cat,
		Browser: client,
		Broker:  broker,
	}
	if cfg.NotifyURL != "" {
		deps.Notifier = notify.NewNotifier(nil, cfg.NotifyURL)
	}
	orch := runner.NewOrchestrator(runner.Settings{
		SearchCount: cfg.SearchCount,
		Search: runner.SearchOptions{
			SearchURL:      cfg.SearchURL,
			SearchHost:     cfg.SearchHost,
			SearchInterval: config.Millis(cfg.SearchIntervalMS),
			SettleDelay:    config.Millis(cfg.SettleDelayMS),
			TypingDelay:    config.Millis(cfg.TypingDelayMS),
		},
		Rewards: runner.RewardOptions{
			RewardsURL:       cfg.RewardsURL,
			RewardSelector:   cfg.RewardSelector,
			RewardsLoadDelay: config.Millis(cfg.RewardsLoadDelayMS),
			ClickDelay:       config.Millis(cfg.ClickDelayMS),
		},
	}, deps)

	dispatcher := trigger.NewDispatcher(rootCtx, orch, trigger.Options{
		StartupDelay: config.Millis(cfg.StartupDelayMS),
		NewTabDelay:  config.Millis(cfg.NewTabDelayMS),
	}, nil, broker)

	stopWatch := func() {}
	if cfg.TriggerOnNewTab {
		stop, err := dispatcher.WatchTabs(rootCtx, client)
		if err != nil {
			slog.Warn("new-tab trigger disabled", "error", err)
		} else {
			stopWatch = stop
		}
	}
	if err := dispatcher.StartSchedule(cfg.Schedule); err != nil {
		slog.Error("failed to start schedule", "error", err)
		os.Exit(1)
	}
	if launched {
		dispatcher.BrowserStarted()
	} else {
		dispatcher.Attached()
	}

	svc := controller.NewService(orch, dispatcher, trigger.SourceRequest, cat)
	srv := &http.Server{
		Addr:        bindAddr,
		Handler:     api.NewServer(svc, broker),
		BaseContext: func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		slog.Info("rewardrunner listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	// Cancelling the root context also ends open event streams, whose
	// request contexts derive from it.
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	stopWatch()
	dispatcher.Stop()
	if err := client.Close(); err != nil {
		slog.Warn("browser client close failed", "error", err)
	}
	if launcher != nil {
		launcher.Stop()
	}
}

func newDriver(cfg *config.Config) driver {
	evalTimeout := config.Millis(cfg.EvalTimeoutMS)
	if cfg.Driver == "chromedp" {
		return cdp.NewClient(cfg.CDPURL(), evalTimeout, cdp.NewTabRegistry())
	}
	return cdpcontrol.NewClient(cfg.CDPURL(), evalTimeout)
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
