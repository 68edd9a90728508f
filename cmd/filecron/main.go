package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"filecron/internal/api"
	"filecron/internal/config"
	"filecron/internal/engine"
	"filecron/internal/event"
	"filecron/internal/executor"
	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/watch"
)

const version = "0.1.0"

type Config struct {
	ConfigRoot  string
	Listen      string
	Shell       string
	LogLevel    logging.Level
	ShowVersion bool
}

func main() {
	cfg := loadConfig()
	if cfg.ShowVersion {
		fmt.Println("filecron " + version)
		return
	}

	logBuffer := logging.NewLogBuffer(logging.DefaultBufferSize)
	logger := logging.NewLogger(logBuffer, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus[event.Event](ctx, event.BusOptions{Name: "engine_events"})
	counters := metrics.Default

	notifier, err := watch.NewOS(logger)
	if err != nil {
		logger.Error("notification backend unavailable", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	runner := executor.NewRunner(executor.Options{
		Shell:   cfg.Shell,
		Logger:  logger,
		Metrics: counters,
		Bus:     bus,
	})

	core, err := engine.New(engine.Options{
		Notifier: notifier,
		Executor: runner,
		Logger:   logger,
		Metrics:  counters,
		Bus:      bus,
	})
	if err != nil {
		logger.Error("engine setup failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	rules := config.LoadAll(cfg.ConfigRoot, logger)
	if err := core.Register(rules); err != nil {
		logger.Error("startup registration failed", map[string]string{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.Info("filecron started", map[string]string{
		"rules":   strconv.Itoa(len(rules)),
		"watches": strconv.Itoa(core.Watches()),
	})

	if cfg.Listen != "" {
		server := &api.Server{
			Addr:    cfg.Listen,
			Bus:     bus,
			Metrics: counters,
			Logger:  logger,
		}
		go func() {
			if err := server.ListenAndServe(ctx); err != nil {
				logger.Error("api server stopped", map[string]string{
					"error": err.Error(),
				})
			}
		}()
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	stopShutdownWatch := watchShutdownSignals(logger, cancel, shutdownCh)
	defer stopShutdownWatch()

	reloadCh := make(chan os.Signal, 1)
	signal.Notify(reloadCh, syscall.SIGHUP, syscall.SIGUSR1)
	stopReloadWatch := watchReloadSignals(logger, reloadCh, func() {
		reloaded := config.LoadAll(cfg.ConfigRoot, logger)
		if err := core.Reload(reloaded); err != nil {
			logger.Error("reload failed", map[string]string{
				"error": err.Error(),
			})
		}
	})
	defer stopReloadWatch()

	if err := core.Run(ctx); err != nil {
		logger.Error("dispatch loop stopped", map[string]string{
			"error": err.Error(),
		})
	}
	if err := core.Close(); err != nil {
		logger.Warn("shutdown incomplete", map[string]string{
			"error": err.Error(),
		})
	}
	logger.Info("filecron stopped", nil)
}

func loadConfig() Config {
	configRoot := os.Getenv("FILECRON_CONFIG_ROOT")
	listen := os.Getenv("FILECRON_LISTEN")
	shell := os.Getenv("FILECRON_SHELL")

	level := logging.LevelInfo
	if raw := os.Getenv("FILECRON_LOG_LEVEL"); raw != "" {
		if parsed, ok := logging.ParseLevel(raw); ok {
			level = parsed
		}
	}

	flagConfigRoot := flag.String("config", configRoot, "config root directory (default: /etc or ~/.config)")
	flagListen := flag.String("listen", listen, "address for the observability API (disabled when empty)")
	flagShell := flag.String("shell", shell, "command interpreter for rule commands")
	flagLogLevel := flag.String("log-level", string(level), "log level: debug, info, warning, error")
	flagVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if parsed, ok := logging.ParseLevel(*flagLogLevel); ok {
		level = parsed
	}

	return Config{
		ConfigRoot:  *flagConfigRoot,
		Listen:      *flagListen,
		Shell:       *flagShell,
		LogLevel:    level,
		ShowVersion: *flagVersion,
	}
}
