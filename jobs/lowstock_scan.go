package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/observability"
)

// LowStockScanJob flags materials whose total remain dropped below their
// reorder threshold.
type LowStockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type lowStockRow struct {
	MaterialID  int64
	Code        string
	Name        string
	MinRemain   int64
	TotalRemain int64
}

// Handle executes the low-stock scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	if payload.WarehouseID > 0 {
		logger = logger.With(slog.Int64("warehouse_id", payload.WarehouseID))
	}
	logger.Info("starting low stock scan")

	rows, err := j.scan(ctx, payload.WarehouseID)
	j.Metrics.ObserveJob(TaskLowStockScan, err)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	for _, row := range rows {
		logger.Warn("material below reorder threshold",
			slog.Int64("material_id", row.MaterialID),
			slog.String("code", row.Code),
			slog.String("name", row.Name),
			slog.Int64("min_remain", row.MinRemain),
			slog.Int64("total_remain", row.TotalRemain),
		)
	}

	logger.Info("completed low stock scan",
		slog.Int("flagged", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) scan(ctx context.Context, warehouseID int64) ([]lowStockRow, error) {
	if j.Pool == nil {
		return nil, errors.New("lowstock scan: pool not configured")
	}
	query := `SELECT m.id, m.code, m.name, m.min_remain, COALESCE(SUM(l.remain), 0) AS total_remain
		FROM materials m
		LEFT JOIN stock_lots l ON l.material_id = m.id`
	args := []any{}
	if warehouseID > 0 {
		query += ` AND l.warehouse_id = $1`
		args = append(args, warehouseID)
	}
	query += ` WHERE m.is_active AND m.min_remain > 0
		GROUP BY m.id, m.code, m.name, m.min_remain
		HAVING COALESCE(SUM(l.remain), 0) < m.min_remain
		ORDER BY m.code`

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lowStockRow
	for rows.Next() {
		var row lowStockRow
		if err := rows.Scan(&row.MaterialID, &row.Code, &row.Name, &row.MinRemain, &row.TotalRemain); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
