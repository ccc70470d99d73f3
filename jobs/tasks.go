package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan checks material remains against reorder thresholds.
	TaskLowStockScan = "stock:lowstock_scan"
	// TaskSummaryWarmup pre-populates the stock summary cache.
	TaskSummaryWarmup = "stock:summary_warmup"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockScanPayload narrows the scan to one warehouse when set.
type LowStockScanPayload struct {
	WarehouseID int64 `json:"warehouse_id,omitempty"`
}

// NewLowStockScanTask builds a low-stock scan task.
func NewLowStockScanTask(warehouseID int64) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{WarehouseID: warehouseID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// SummaryWarmupPayload carries scheduling metadata.
type SummaryWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSummaryWarmupTask builds a summary warmup task.
func NewSummaryWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SummaryWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSummaryWarmup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload controls the retention window.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(olderThanHours int) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThanHours: olderThanHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
