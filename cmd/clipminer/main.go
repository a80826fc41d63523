// Command clipminer runs one collection bot against one device or browser
// session.
//
// Usage:
//
//	clipminer [-config clipminer.yaml] [-log-level info] <bot-id>
//
// The positional bot id selects the bot_configs row holding the device and
// locale for this instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazumi-dev/clipminer/collector"
	"github.com/hazumi-dev/clipminer/session"
	"github.com/hazumi-dev/clipminer/session/rodweb"
	"github.com/hazumi-dev/clipminer/session/wire"
	"github.com/hazumi-dev/clipminer/store"
)

func main() {
	configPath := flag.String("config", "", "path to clipminer.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: clipminer [-config <file>] [-log-level <level>] <bot-id>")
		os.Exit(1)
	}
	botID, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "clipminer: bot id must be an integer, got %q\n", flag.Arg(0))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, botID); err != nil {
		logger.Error("clipminer: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, botID int) error {
	cfg, err := collector.LoadConfigFile(configPath)
	if err != nil {
		return err
	}

	runner := collector.NewRunner(cfg, botID, sessionFactory(logger), logger)

	if cfg.Status.Addr != "" {
		go func() {
			if err := collector.ServeStatus(ctx, cfg.Status.Addr, runner, logger); err != nil {
				logger.Error("clipminer: status listener failed", "error", err)
			}
		}()
	}

	return runner.Run(ctx)
}

// sessionFactory picks the automation backend from config, applying the
// bot row's host/port override for device sessions.
func sessionFactory(logger *slog.Logger) collector.SessionFactory {
	return func(ctx context.Context, cfg *collector.Config, bc *store.BotConfig) (session.Session, error) {
		switch cfg.Session.Backend {
		case "rodweb":
			return rodweb.Connect(ctx, rodweb.Config{
				AppURL: cfg.Session.AppID,
			}, logger)
		default:
			serverURL := cfg.Session.ServerURL
			if bc.SessionHost != "" && bc.SessionPort != 0 {
				serverURL = fmt.Sprintf("http://%s:%d", bc.SessionHost, bc.SessionPort)
			}
			udid := cfg.Session.DeviceUDID
			if bc.DeviceUDID != "" {
				udid = bc.DeviceUDID
			}
			return wire.Connect(ctx, wire.Config{
				ServerURL:  serverURL,
				AppID:      cfg.Session.AppID,
				DeviceName: bc.DeviceName,
				DeviceUDID: udid,
			}, logger)
		}
	}
}
