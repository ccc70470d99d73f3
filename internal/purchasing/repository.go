package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/stock"
)

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status     *POStatus
	SupplierID *int64
	Page       int
	Limit      int
}

// Repository is the persistence port for purchasing documents.
type Repository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	UpdatePOStatus(ctx context.Context, id int64, from, to POStatus) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, error)
	PostGRN(ctx context.Context, grn GoodsReceipt) ([]stock.Lot, error)
	UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error
	ReceivedTotals(ctx context.Context, poID int64) (map[int64]int64, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const poColumns = `id, number, supplier_id, warehouse_id, status, ref_id, expected_date, note, created_by, created_at`

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var createdBy *int64
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &po.Status, &po.RefID, &po.ExpectedDate, &po.Note, &createdBy, &po.CreatedAt)
	if createdBy != nil {
		po.CreatedBy = *createdBy
	}
	return po, err
}

func (r *PGRepository) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextNumber(ctx, tx, "PO", "purchase_orders")
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO purchase_orders (number, supplier_id, warehouse_id, status, ref_id, expected_date, note, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+poColumns,
			number, po.SupplierID, po.WarehouseID, POStatusDraft, uuid.New(), po.ExpectedDate, po.Note, po.CreatedBy)
		created, err := scanPO(row)
		if err != nil {
			return err
		}
		lines := make([]POLine, 0, len(po.Lines))
		for _, line := range po.Lines {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO purchase_order_lines (po_id, material_id, qty, price, note)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				created.ID, line.MaterialID, line.Qty, line.Price, line.Note).Scan(&id)
			if err != nil {
				return err
			}
			line.ID = id
			lines = append(lines, line)
		}
		created.Lines = lines
		po = created
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func nextNumber(ctx context.Context, tx pgx.Tx, prefix, table string) (string, error) {
	month := time.Now().UTC().Format("200601")
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE number LIKE $1`, prefix+"-"+month+"-%").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, month, count+1), nil
}

func (r *PGRepository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, qty, price, note FROM purchase_order_lines WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.MaterialID, &line.Qty, &line.Price, &line.Note); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, line)
	}
	return po, rows.Err()
}

func (r *PGRepository) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.SupplierID != nil {
		args = append(args, *filter.SupplierID)
		where += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders` + where + ` ORDER BY created_at DESC, id DESC`
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, (page-1)*limit)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, po)
	}
	return list, total, rows.Err()
}

func (r *PGRepository) UpdatePOStatus(ctx context.Context, id int64, from, to POStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}

const grnColumns = `id, number, po_id, warehouse_id, status, received_at, note, created_by`

func scanGRN(row pgx.Row) (GoodsReceipt, error) {
	var grn GoodsReceipt
	var createdBy *int64
	err := row.Scan(&grn.ID, &grn.Number, &grn.POID, &grn.WarehouseID, &grn.Status, &grn.ReceivedAt, &grn.Note, &createdBy)
	if createdBy != nil {
		grn.CreatedBy = *createdBy
	}
	return grn, err
}

func (r *PGRepository) CreateGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextNumber(ctx, tx, "GRN", "goods_receipts")
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO goods_receipts (number, po_id, warehouse_id, status, note, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+grnColumns,
			number, grn.POID, grn.WarehouseID, GRNStatusDraft, grn.Note, grn.CreatedBy)
		created, err := scanGRN(row)
		if err != nil {
			return err
		}
		lines := make([]GRNLine, 0, len(grn.Lines))
		for _, line := range grn.Lines {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO goods_receipt_lines (grn_id, material_id, qty)
				VALUES ($1, $2, $3) RETURNING id`,
				created.ID, line.MaterialID, line.Qty).Scan(&id)
			if err != nil {
				return err
			}
			line.ID = id
			lines = append(lines, line)
		}
		created.Lines = lines
		grn = created
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

func (r *PGRepository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	grn, err := scanGRN(r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, ErrNotFound
	}
	if err != nil {
		return GoodsReceipt{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, qty FROM goods_receipt_lines WHERE grn_id = $1 ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.MaterialID, &line.Qty); err != nil {
			return GoodsReceipt{}, err
		}
		grn.Lines = append(grn.Lines, line)
	}
	return grn, rows.Err()
}

// PostGRN flips the receipt DRAFT to POSTED and opens one stock lot per
// line, all in one transaction. A failing line leaves no lot behind and
// the receipt stays DRAFT.
func (r *PGRepository) PostGRN(ctx context.Context, grn GoodsReceipt) ([]stock.Lot, error) {
	var lots []stock.Lot
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE goods_receipts SET status = $3 WHERE id = $1 AND status = $2`,
			grn.ID, GRNStatusDraft, GRNStatusPosted)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goods_receipts WHERE id = $1)`, grn.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInvalidState
		}
		for _, line := range grn.Lines {
			lot, err := stock.CreateLotTx(ctx, tx, stock.Lot{
				MaterialID:  line.MaterialID,
				WarehouseID: grn.WarehouseID,
				ReceiptID:   &grn.ID,
				LotCode:     fmt.Sprintf("%s-%d", grn.Number, line.MaterialID),
				Quantity:    line.Qty,
			})
			if err != nil {
				return err
			}
			lots = append(lots, lot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// ReceivedTotals sums posted receipt quantities per material for one
// purchase order.
func (r *PGRepository) ReceivedTotals(ctx context.Context, poID int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.material_id, COALESCE(SUM(l.qty), 0)
		FROM goods_receipt_lines l
		JOIN goods_receipts g ON g.id = l.grn_id
		WHERE g.po_id = $1 AND g.status = $2
		GROUP BY l.material_id`, poID, GRNStatusPosted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := map[int64]int64{}
	for rows.Next() {
		var materialID, qty int64
		if err := rows.Scan(&materialID, &qty); err != nil {
			return nil, err
		}
		totals[materialID] = qty
	}
	return totals, rows.Err()
}

func (r *PGRepository) UpdateGRNStatus(ctx context.Context, id int64, from, to GRNStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE goods_receipts SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goods_receipts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidState
}
