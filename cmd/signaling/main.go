package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mossy-p/webrtc-calling/config"
	"github.com/mossy-p/webrtc-calling/internal/directory"
	"github.com/mossy-p/webrtc-calling/internal/handlers"
	"github.com/mossy-p/webrtc-calling/internal/redis"
	"github.com/mossy-p/webrtc-calling/internal/relay"
	"github.com/mossy-p/webrtc-calling/lib/logger"
	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, os.Stdout)
	log.Info("starting call relay",
		slog.String("env", cfg.Environment),
		slog.String("backend", cfg.Relay.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("relay stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("relay stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := relay.NewHub(cfg.Relay.SubscriberBuffer, log)

	var (
		dir directory.Directory
		fwd relay.Forwarder
	)
	switch cfg.Relay.Backend {
	case config.RelayBackendRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		log.Info("redis connection established", slog.String("addr", cfg.Redis.Addr()))

		bridge, err := relay.NewRedisBridge(ctx, client, hub, log)
		if err != nil {
			return err
		}
		defer bridge.Close()

		dir = directory.NewRedis(client)
		fwd = relay.NewRedisForwarder(client)
		g.Go(func() error { return bridge.Run(ctx) })
	default:
		dir = directory.NewMemory()
	}

	router := handlers.SetupRouter(cfg, relay.New(hub, dir, fwd, log), dir, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
