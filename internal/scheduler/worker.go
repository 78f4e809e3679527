package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"norskform_backend/internal/checkout/repository"
	"norskform_backend/internal/directory"
	"norskform_backend/internal/lookup"
	"norskform_backend/platform/apperr"
	"norskform_backend/platform/config"
	"norskform_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker runs the background task server.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	orders    *repository.Repository
	directory *directory.Client
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, dir *directory.Client, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		orders:    repository.New(pool),
		directory: dir,
		log:       log,
	}

	mux.HandleFunc(TaskOrderEnrichment, w.handleOrderEnrichment)

	return w, nil
}

// Run blocks until the server stops.
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

// Shutdown waits for in-flight tasks and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleOrderEnrichment resolves the phone owner for a paid order. A
// degraded directory is retryable; an order that disappeared is not.
func (w *Worker) handleOrderEnrichment(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOrderEnrichmentPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", payload.OrderID, asynq.SkipRetry)
	}

	owners, err := w.directory.Lookup(ctx, payload.Phone)
	if err != nil {
		if errors.Is(err, lookup.ErrUnavailable) {
			return fmt.Errorf("directory degraded, retrying: %w", err)
		}
		w.log.UpstreamError("directory", "order_enrichment", err)
		return err
	}

	if len(owners) == 0 {
		w.log.Info("no directory match for order", "order_id", payload.OrderID)
		return nil
	}

	owner := owners[0]
	address := formatOwnerAddress(owner)
	if err := w.orders.SetEnrichment(ctx, orderID, owner.Name, address); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.log.Info("order enriched", "order_id", payload.OrderID)
	return nil
}

func formatOwnerAddress(owner directory.Owner) string {
	parts := make([]string, 0, 2)
	if owner.Street != "" {
		parts = append(parts, owner.Street)
	}
	if owner.PostalCode != "" || owner.PostalArea != "" {
		parts = append(parts, strings.TrimSpace(owner.PostalCode+" "+owner.PostalArea))
	}
	return strings.Join(parts, ", ")
}
