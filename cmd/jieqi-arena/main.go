package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/internal/arena"
	"github.com/park285/jieqi-arena/internal/config"
	"github.com/park285/jieqi-arena/internal/hostproto"
	"github.com/park285/jieqi-arena/internal/msgcat"
	"github.com/park285/jieqi-arena/internal/notation"
	"github.com/park285/jieqi-arena/internal/obslog"
	"github.com/park285/jieqi-arena/internal/relay"
	"github.com/park285/jieqi-arena/internal/resultstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jieqi-arena: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	log := obslog.L()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	obslog.SetVerbose(cfg.Settings.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	recorder := resultstore.NewRecorder(store, log.Named("store"))

	stdout := bufio.NewWriter(os.Stdout)
	out := hostproto.NewOutput(stdout)

	var webhook *relay.Webhook
	if cfg.WebhookURL != "" {
		webhook = relay.NewWebhook(cfg.WebhookURL, relay.WithWebhookLogger(log.Named("webhook")))
	}
	var telemetry *relay.Telemetry
	if cfg.TelemetryWSURL != "" {
		telemetry = relay.NewTelemetry(cfg.TelemetryWSURL,
			relay.WithReconnect(5, time.Second),
			relay.WithTelemetryLogger(log.Named("telemetry")))
		telemetry.Start(ctx)
		out.Tap(telemetry.Line)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Close(closeCtx)
		}()
	}

	factory := func(settings config.Settings) hostproto.Match {
		opts := []arena.Option{
			arena.WithHost(out.Line),
			arena.WithLogger(log),
			arena.WithMessages(msgs),
			arena.WithObserver(recorder),
		}
		if settings.SaveNotation {
			wopts := []notation.WriterOption{
				notation.WithHost(out.Line),
				notation.WithLogger(log),
				notation.WithMessages(msgs),
			}
			if settings.SaveBoardImage {
				wopts = append(wopts, notation.WithImages(notation.NewBoardRenderer()))
			}
			opts = append(opts, arena.WithObserver(notation.NewWriter(settings.SaveNotationDir, wopts...)))
		}
		if webhook != nil {
			opts = append(opts, arena.WithObserver(webhook))
		}
		if telemetry != nil {
			opts = append(opts, arena.WithObserver(telemetry))
		}
		return arena.NewScheduler(settings.ArenaSettings(), opts...)
	}

	controller := hostproto.NewController(out, cfg.Settings, factory,
		hostproto.WithLogger(log),
		hostproto.WithMessages(msgs))

	log.Info("arena_ready",
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("webhook", webhook != nil),
		zap.Bool("telemetry", telemetry != nil))

	err = controller.Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		log.Info("arena_signal_shutdown")
		err = nil
	}
	_ = stdout.Flush()
	return err
}

// openStore picks Redis, then PostgreSQL, then memory.
func openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (resultstore.Store, error) {
	switch {
	case strings.TrimSpace(cfg.RedisURL) != "":
		s, err := resultstore.OpenRedisStore(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		log.Info("result_store", zap.String("kind", "redis"))
		return s, nil
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		s, err := resultstore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		log.Info("result_store", zap.String("kind", "postgres"))
		return s, nil
	default:
		log.Info("result_store", zap.String("kind", "memory"))
		return resultstore.NewMemoryStore(), nil
	}
}
