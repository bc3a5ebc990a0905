// Command stubapi runs the in-memory storefront backend double for local
// development of the client.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/stubapi"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration and serves the stub until interrupted.
func main() {
	addr := flag.String("addr", ":8000", "listen address")
	jwtKey := flag.String("jwt-key", "", "HS256 signing key (required)")
	accessTTL := flag.Duration("access-ttl", 15*time.Minute, "access token TTL")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", *addr),
	)

	if *jwtKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key)")
	}

	stub, err := stubapi.NewServer(stubapi.Config{
		JWTKey:    []byte(*jwtKey),
		AccessTTL: *accessTTL,
	}, logger)
	if err != nil {
		logger.Fatal("stubapi.NewServer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: *addr, Handler: stub.Engine()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
	logger.Info("stopped")
}
