package requisition

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

// ListFilter narrows List.
type ListFilter struct {
	Status   *Status
	BranchID *int64
	Page     int
	Limit    int
}

// Repository is the persistence port for requisitions.
type Repository interface {
	Create(ctx context.Context, req Requisition) (Requisition, error)
	Get(ctx context.Context, id int64) (Requisition, error)
	List(ctx context.Context, filter ListFilter) ([]Requisition, int, error)
	Transition(ctx context.Context, id int64, from, to Status) error
	Complete(ctx context.Context, id, warehouseID int64) (Requisition, []LineAllocation, error)
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requisitionColumns = `id, code, ref_id, branch_id, status, requested_by, requested_at, completed_at`

func scanRequisition(row pgx.Row) (Requisition, error) {
	var req Requisition
	err := row.Scan(&req.ID, &req.Code, &req.RefID, &req.BranchID, &req.Status, &req.RequestedBy, &req.RequestedAt, &req.CompletedAt)
	return req, err
}

// Create inserts the header and lines in one transaction, assigning a
// month scoped document code.
func (r *PGRepository) Create(ctx context.Context, req Requisition) (Requisition, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkMaterials(ctx, tx, req.Lines); err != nil {
			return err
		}
		code, err := nextCode(ctx, tx)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO requisitions (code, ref_id, branch_id, status, requested_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+requisitionColumns,
			code, uuid.New(), req.BranchID, StatusPending, req.RequestedBy)
		created, err := scanRequisition(row)
		if err != nil {
			return err
		}
		lines := make([]Line, 0, len(req.Lines))
		for _, line := range req.Lines {
			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO requisition_lines (requisition_id, material_id, qty)
				VALUES ($1, $2, $3) RETURNING id`,
				created.ID, line.MaterialID, line.Qty).Scan(&id)
			if err != nil {
				return err
			}
			lines = append(lines, Line{ID: id, MaterialID: line.MaterialID, Qty: line.Qty})
		}
		created.Lines = lines
		req = created
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	return req, nil
}

// checkMaterials verifies every line references an existing active
// material before anything is inserted.
func checkMaterials(ctx context.Context, tx pgx.Tx, lines []Line) error {
	seen := map[int64]struct{}{}
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.MaterialID]; ok {
			continue
		}
		seen[line.MaterialID] = struct{}{}
		ids = append(ids, line.MaterialID)
	}
	var active int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM materials WHERE id = ANY($1) AND is_active`, ids).Scan(&active)
	if err != nil {
		return err
	}
	if active != len(ids) {
		return ErrUnknownMaterial
	}
	return nil
}

func nextCode(ctx context.Context, tx pgx.Tx) (string, error) {
	month := time.Now().UTC().Format("200601")
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions WHERE code LIKE $1`, "REQ-"+month+"-%").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("REQ-%s-%04d", month, count+1), nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Requisition, error) {
	req, err := scanRequisition(r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, ErrNotFound
	}
	if err != nil {
		return Requisition{}, err
	}
	req.Lines, err = r.loadLines(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	return req, nil
}

func (r *PGRepository) loadLines(ctx context.Context, id int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, qty FROM requisition_lines WHERE requisition_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.MaterialID, &line.Qty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Requisition, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.BranchID != nil {
		args = append(args, *filter.BranchID)
		where += ` AND branch_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions`+where, args...).Scan(&total); err != nil {
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
	query := `SELECT ` + requisitionColumns + ` FROM requisitions` + where + ` ORDER BY requested_at DESC, id DESC`
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, (page-1)*limit)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, req)
	}
	return list, total, rows.Err()
}

// Transition moves the requisition between states with a guarded update.
func (r *PGRepository) Transition(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE requisitions SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return &InvalidStateError{Current: current, Action: "transition"}
}

func (r *PGRepository) currentStatus(ctx context.Context, id int64) (Status, error) {
	var current Status
	err := r.pool.QueryRow(ctx, `SELECT status FROM requisitions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return current, err
}

// Complete consumes every line FIFO and marks the requisition COMPLETED,
// all inside one transaction. Any insufficient line aborts the whole
// completion with no lot mutated.
func (r *PGRepository) Complete(ctx context.Context, id, warehouseID int64) (Requisition, []LineAllocation, error) {
	var (
		completed   Requisition
		allocations []LineAllocation
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id = $1 FOR UPDATE`, id)
		req, err := scanRequisition(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != StatusApproved {
			return &InvalidStateError{Current: req.Status, Action: "complete"}
		}

		lineRows, err := tx.Query(ctx, `SELECT id, material_id, qty FROM requisition_lines WHERE requisition_id = $1 ORDER BY id`, id)
		if err != nil {
			return err
		}
		var lines []Line
		for lineRows.Next() {
			var line Line
			if err := lineRows.Scan(&line.ID, &line.MaterialID, &line.Qty); err != nil {
				lineRows.Close()
				return err
			}
			lines = append(lines, line)
		}
		lineRows.Close()
		if err := lineRows.Err(); err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrNoLines
		}

		for _, line := range lines {
			plan, err := stock.ConsumeTx(ctx, tx, line.MaterialID, warehouseID, line.Qty)
			if err != nil {
				return err
			}
			for _, alloc := range plan {
				var allocID int64
				err := tx.QueryRow(ctx, `
					INSERT INTO requisition_allocations (line_id, lot_id, taken)
					VALUES ($1, $2, $3) RETURNING id`,
					line.ID, alloc.LotID, alloc.Taken).Scan(&allocID)
				if err != nil {
					return err
				}
				allocations = append(allocations, LineAllocation{LineID: line.ID, LotID: alloc.LotID, Taken: alloc.Taken})
			}
		}

		row = tx.QueryRow(ctx, `
			UPDATE requisitions SET status = $2, completed_at = NOW()
			WHERE id = $1
			RETURNING `+requisitionColumns, id, StatusCompleted)
		completed, err = scanRequisition(row)
		if err != nil {
			return err
		}
		completed.Lines = lines
		return nil
	})
	if err != nil {
		return Requisition{}, nil, err
	}
	return completed, allocations, nil
}

// Delete removes a requisition that never reached fulfillment.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requisitions WHERE id = $1 AND status = ANY($2)`,
		id, []string{string(StatusPending), string(StatusRejected)})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.currentStatus(ctx, id); err != nil {
		return err
	}
	return ErrNotDeletable
}
