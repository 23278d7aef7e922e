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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/tripledger/internal/auth"
	"github.com/mmynk/tripledger/internal/cache"
	"github.com/mmynk/tripledger/internal/config"
	"github.com/mmynk/tripledger/internal/events"
	"github.com/mmynk/tripledger/internal/events/kafka"
	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/metrics"
	"github.com/mmynk/tripledger/internal/server"
	"github.com/mmynk/tripledger/internal/storage/postgres"
	"github.com/mmynk/tripledger/internal/storage/sqlite"
	"github.com/mmynk/tripledger/internal/storage/sqlstore"
	"github.com/mmynk/tripledger/pkg/logging"
)

const publishTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			slog.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// issueToken prints a bearer token for a caller: token <caller-id> [name].
func issueToken(cfg *config.Config, args []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(args) == 0 {
		return errors.New("usage: server token <caller-id> [name]")
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}
	token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration).Generate(args[0], name)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []ledger.Option{ledger.WithMetrics(metrics.New(reg))}

	if cfg.RedisAddr != "" {
		balanceCache, err := cache.Dial(ctx, cfg.RedisAddr, cfg.BalanceCacheTTL)
		if err != nil {
			return err
		}
		defer balanceCache.Close()
		opts = append(opts, ledger.WithCache(balanceCache))
		slog.Info("Balance cache enabled", "redis", cfg.RedisAddr, "ttl", cfg.BalanceCacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		dispatcher := events.NewDispatcher(publisher, cfg.EventBuffer, publishTimeout)
		// Runs before publisher.Close so queued events drain first.
		defer dispatcher.Close()
		opts = append(opts, ledger.WithPublisher(dispatcher))
		slog.Info("Ledger events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	} else {
		slog.Warn("JWT_SECRET not set, API is unauthenticated")
	}

	handler := server.NewHandler(server.Options{
		Ledger:   ledger.New(store, opts...),
		JWT:      jwtManager,
		Gatherer: reg,
		Health:   store.DB().PingContext,
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", "postgres")
		return s.Store, nil
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", "sqlite", "database", cfg.DBPath)
		return s.Store, nil
	}
}
