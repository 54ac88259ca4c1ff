package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/sunrudder/sunrudder/pkg/actuator"
	"github.com/sunrudder/sunrudder/pkg/controller"
	"github.com/sunrudder/sunrudder/pkg/homeassistant"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/loop"
	"github.com/sunrudder/sunrudder/pkg/metrics"
	"github.com/sunrudder/sunrudder/pkg/publish"
	"github.com/sunrudder/sunrudder/pkg/server"
	"github.com/sunrudder/sunrudder/pkg/settings"
	"github.com/sunrudder/sunrudder/pkg/state"
	"github.com/sunrudder/sunrudder/pkg/storage"
)

func main() {
	// secrets like the Home Assistant token may live in .env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// init packages
	db := storage.Configured()
	ha := homeassistant.Configured()
	provider := state.Configured(ha)
	act := actuator.Configured(ha)
	pub := publish.Configured()
	store := settings.Configured(db)

	m := metrics.New()
	exec := actuator.NewExecutor(act, m)
	l := loop.Configured(provider, controller.NewController(), store, exec, pub, m)

	// init server
	srv := server.Configured(l, store, m.Handler())

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
	log.SetDefaultLogLevel(level)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()
	defer func() {
		if err := act.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close actuator", "error", err)
		}
	}()
	defer func() {
		if err := pub.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close publisher", "error", err)
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := l.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "control loop failed", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		cancel()
		<-loopDone
		os.Exit(1)
	}
	<-loopDone
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
