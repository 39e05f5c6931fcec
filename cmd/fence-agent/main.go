// Command fence-agent runs the client-side half of the fence tool headless:
// it owns the submission queue, retries pending deliveries against the
// receiver, and exposes editor and queue metrics. Interactive drawing is
// driven by an embedding UI through the core editor; the agent keeps the
// durable side alive.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perimetra/fenceline/core"
	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/internal/observability"
	"github.com/perimetra/fenceline/internal/queue"
	"github.com/perimetra/fenceline/internal/session"
)

func main() {
	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "fence agent failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, log logging.Logger) error {
	var (
		endpoint      = flag.String("endpoint", "http://localhost:8080/api/geofence", "fence receiver POST endpoint")
		queuePath     = flag.String("queue-path", "fence-queue.db", "path to the durable submission queue database")
		metricsAddr   = flag.String("metrics-addr", ":9090", "listen address for the /metrics endpoint (empty disables)")
		retryInterval = flag.Duration("retry-interval", time.Minute, "how often to sweep the queue for pending deliveries")
		drain         = flag.Bool("drain", false, "attempt one delivery sweep of the queue, then exit")
	)
	flag.Parse()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv("fence-agent"), log)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	store, err := queue.OpenBoltStore(*queuePath)
	if err != nil {
		return fmt.Errorf("queue store open: %w", err)
	}

	sender := queue.NewHTTPSender(*endpoint)
	q := queue.New(store, sender, log, queue.WithMetrics(metrics))
	defer q.Close()

	editor := core.NewEditor(sender, log,
		core.WithQueue(q),
		core.WithMetrics(metrics),
	)
	controller := session.NewController(editor, q, log)
	controller.Start(ctx)
	defer controller.Stop()

	if *drain {
		delivered, failed := q.SubmitAll(ctx)
		log.Info(ctx, "drain sweep finished",
			logging.Int("delivered", delivered),
			logging.Int("failed", failed))
		if failed > 0 {
			return fmt.Errorf("%d deliveries still pending", failed)
		}
		return nil
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			log.Info(ctx, "metrics listening", logging.String("addr", *metricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info(ctx, "fence agent started",
		logging.String("endpoint", *endpoint),
		logging.Int("queued", q.Len()))

	ticker := time.NewTicker(*retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info(context.Background(), "fence agent stopping")
			return nil
		case <-ticker.C:
			if q.Len() == 0 {
				continue
			}
			// Backoff-paced drain: repeated sweeps with exponential
			// inter-attempt delay until the queue empties or the retry
			// window elapses.
			if err := q.RetryPending(ctx); err != nil {
				log.Warn(ctx, "retry sweep incomplete",
					logging.Int("queued", q.Len()),
					logging.String("error", err.Error()))
				continue
			}
			log.Info(ctx, "queue drained")
		}
	}
}
