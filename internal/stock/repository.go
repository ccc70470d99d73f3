package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/platform/db"
)

// Repository is the persistence port for the stock ledger.
type Repository interface {
	CreateLot(ctx context.Context, lot Lot) (Lot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
	Consume(ctx context.Context, materialID, warehouseID, quantity int64) ([]Allocation, error)
	ApplyAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)
	Summarize(ctx context.Context, warehouseID *int64) ([]SummaryRow, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const lotColumns = `id, material_id, warehouse_id, receipt_id, lot_code, quantity, remain, created_at`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.MaterialID, &lot.WarehouseID, &lot.ReceiptID, &lot.LotCode, &lot.Quantity, &lot.Remain, &lot.CreatedAt)
	return lot, err
}

// CreateLot inserts a lot with remain equal to quantity.
func (r *PGRepository) CreateLot(ctx context.Context, lot Lot) (Lot, error) {
	var created Lot
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = CreateLotTx(ctx, tx, lot)
		return txErr
	})
	if err != nil {
		return Lot{}, err
	}
	return created, nil
}

// CreateLotTx inserts a lot inside the caller's transaction. Goods
// receipt posting uses this to open every lot of a receipt atomically.
func CreateLotTx(ctx context.Context, tx pgx.Tx, lot Lot) (Lot, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO stock_lots (material_id, warehouse_id, receipt_id, lot_code, quantity, remain)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+lotColumns,
		lot.MaterialID, lot.WarehouseID, lot.ReceiptID, lot.LotCode, lot.Quantity)
	created, err := scanLot(row)
	if err != nil {
		return Lot{}, mapFKError(err)
	}
	return created, nil
}

// ListLots returns lots oldest first so callers observe FIFO order.
func (r *PGRepository) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE 1=1`
	args := []any{}
	if filter.MaterialID != nil {
		args = append(args, *filter.MaterialID)
		query += ` AND material_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		query += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if filter.OnlyInStock {
		query += ` AND remain > 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// Consume runs a FIFO consumption in its own transaction.
func (r *PGRepository) Consume(ctx context.Context, materialID, warehouseID, quantity int64) ([]Allocation, error) {
	var plan []Allocation
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var txErr error
		plan, txErr = ConsumeTx(ctx, tx, materialID, warehouseID, quantity)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ConsumeTx locks the material's lots in FIFO order, plans the allocation
// and applies it inside the caller's transaction. Requisition completion
// uses this to consume every line atomically in one transaction.
func ConsumeTx(ctx context.Context, tx pgx.Tx, materialID, warehouseID, quantity int64) ([]Allocation, error) {
	lots, err := lockLots(ctx, tx, materialID, warehouseID)
	if err != nil {
		return nil, err
	}
	plan, err := Allocate(lots, materialID, warehouseID, quantity)
	if err != nil {
		return nil, err
	}
	for _, alloc := range plan {
		tag, err := tx.Exec(ctx, `UPDATE stock_lots SET remain = remain - $2 WHERE id = $1 AND remain >= $2`,
			alloc.LotID, alloc.Taken)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() != 1 {
			return nil, fmt.Errorf("stock: lot %d changed under lock", alloc.LotID)
		}
	}
	return plan, nil
}

func lockLots(ctx context.Context, tx pgx.Tx, materialID, warehouseID int64) ([]Lot, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+lotColumns+` FROM stock_lots
		WHERE material_id = $1 AND warehouse_id = $2 AND remain > 0
		ORDER BY created_at ASC, id ASC
		FOR UPDATE`, materialID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ApplyAdjustment records a manual correction. A lot scoped negative delta
// draws down that lot, a lot scoped positive delta grows both quantity and
// remain. Without a lot, negative deltas consume FIFO and positive deltas
// open a correction lot.
func (r *PGRepository) ApplyAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if adj.LotID != nil {
			if err := r.adjustLot(ctx, tx, &adj); err != nil {
				return err
			}
		} else if adj.Delta < 0 {
			if _, err := ConsumeTx(ctx, tx, adj.MaterialID, adj.WarehouseID, -adj.Delta); err != nil {
				return err
			}
		} else {
			code := "ADJ-" + time.Now().UTC().Format("20060102150405")
			_, err := tx.Exec(ctx, `
				INSERT INTO stock_lots (material_id, warehouse_id, lot_code, quantity, remain)
				VALUES ($1, $2, $3, $4, $4)`,
				adj.MaterialID, adj.WarehouseID, code, adj.Delta)
			if err != nil {
				return mapFKError(err)
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO stock_adjustments (warehouse_id, material_id, lot_id, delta, reason, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			adj.WarehouseID, adj.MaterialID, adj.LotID, adj.Delta, adj.Reason, adj.CreatedBy).
			Scan(&adj.ID, &adj.CreatedAt)
	})
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

func (r *PGRepository) adjustLot(ctx context.Context, tx pgx.Tx, adj *Adjustment) error {
	row := tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM stock_lots WHERE id = $1 FOR UPDATE`, *adj.LotID)
	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLotNotFound
	}
	if err != nil {
		return err
	}
	adj.MaterialID = lot.MaterialID
	adj.WarehouseID = lot.WarehouseID

	if adj.Delta < 0 {
		if lot.Remain+adj.Delta < 0 {
			return &InsufficientStockError{
				MaterialID:  lot.MaterialID,
				WarehouseID: lot.WarehouseID,
				Requested:   -adj.Delta,
				Available:   lot.Remain,
			}
		}
		_, err = tx.Exec(ctx, `UPDATE stock_lots SET remain = remain + $2 WHERE id = $1`, lot.ID, adj.Delta)
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE stock_lots SET quantity = quantity + $2, remain = remain + $2 WHERE id = $1`, lot.ID, adj.Delta)
	return err
}

// ListAdjustments returns the correction history newest first.
func (r *PGRepository) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	query := `
		SELECT id, warehouse_id, material_id, lot_id, delta, reason, created_by, created_at
		FROM stock_adjustments WHERE 1=1`
	args := []any{}
	if filter.MaterialID != nil {
		args = append(args, *filter.MaterialID)
		query += ` AND material_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != nil {
		args = append(args, *filter.WarehouseID)
		query += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.WarehouseID, &adj.MaterialID, &adj.LotID, &adj.Delta, &adj.Reason, &adj.CreatedBy, &adj.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// Summarize aggregates quantity and remain per material, optionally scoped
// to one warehouse.
func (r *PGRepository) Summarize(ctx context.Context, warehouseID *int64) ([]SummaryRow, error) {
	query := `
		SELECT m.id, m.code, m.name, u.code,
		       COALESCE(SUM(l.quantity), 0), COALESCE(SUM(l.remain), 0)
		FROM materials m
		JOIN units u ON u.id = m.unit_id
		LEFT JOIN stock_lots l ON l.material_id = m.id`
	args := []any{}
	if warehouseID != nil {
		args = append(args, *warehouseID)
		query += ` AND l.warehouse_id = $1`
	}
	query += `
		GROUP BY m.id, m.code, m.name, u.code
		ORDER BY m.code ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summary []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.MaterialID, &row.MaterialCode, &row.MaterialName, &row.Unit, &row.TotalQuantity, &row.TotalRemain); err != nil {
			return nil, err
		}
		row.Issued = row.TotalQuantity - row.TotalRemain
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

func mapFKError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		if strings.Contains(pgErr.ConstraintName, "warehouse") {
			return ErrWarehouseNotFound
		}
		return ErrMaterialNotFound
	}
	return err
}
