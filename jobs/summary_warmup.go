package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/stocklane/stocklane/internal/observability"
	"github.com/stocklane/stocklane/internal/stock"
)

// SummaryWarmupJob pre-populates the stock summary cache for every active
// warehouse so the first dashboard hit of the day is warm.
type SummaryWarmupJob struct {
	Stock   *stock.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(stockSvc *stock.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{Stock: stockSvc, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := time.Now()
	logger := j.logger()
	logger.Info("starting summary warmup")

	err := j.warm(ctx)
	j.Metrics.ObserveJob(TaskSummaryWarmup, err)
	if err != nil {
		logger.Error("summary warmup failed", slog.Any("error", err))
		return err
	}

	logger.Info("completed summary warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *SummaryWarmupJob) warm(ctx context.Context) error {
	ids, err := j.warehouseIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		_, err := j.Stock.Summarize(ctx, nil)
		return err
	})
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := j.Stock.Summarize(ctx, &id)
			return err
		})
	}
	return g.Wait()
}

func (j *SummaryWarmupJob) warehouseIDs(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("summary warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM warehouses WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *SummaryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
