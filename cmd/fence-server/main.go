// Command fence-server runs the fence receiver: an HTTP API that accepts
// submitted fence payloads, stores them (PostgreSQL, or in memory when no DSN
// is given), and streams each accepted fence to websocket subscribers.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/internal/observability"
	"github.com/perimetra/fenceline/internal/server"
)

func main() {
	var (
		addr = flag.String("addr", ":8080", "listen address for the fence API")
		dsn  = flag.String("db", os.Getenv("FENCE_DATABASE_URL"), "PostgreSQL DSN (empty runs with an in-memory store)")
	)
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("fence-server"), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}

	var store server.FenceStore
	if *dsn != "" {
		pg, err := server.NewPGFenceStore(ctx, *dsn)
		if err != nil {
			log.Error(ctx, "fence store init failed", logging.String("error", err.Error()))
			os.Exit(1)
		}
		store = pg
	} else {
		log.Warn(ctx, "no database configured; fences held in memory only")
		store = server.NewMemFenceStore()
	}
	defer store.Close()

	hub := server.NewHub(log)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.NewServer(store, hub, log, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info(ctx, "fence server listening", logging.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server failed", logging.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "fence server stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "server shutdown failed", logging.String("error", err.Error()))
	}
}
