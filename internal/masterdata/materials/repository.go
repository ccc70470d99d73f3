package materials

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error)
	Get(ctx context.Context, id int64) (Material, error)
	Create(ctx context.Context, material Material) (Material, error)
	Update(ctx context.Context, id int64, material Material) (Material, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const materialColumns = `id, code, name, category_id, unit_id, price, min_remain, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.CategoryID != nil {
		args = append(args, *filters.CategoryID)
		where += ` AND category_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + materialColumns + ` FROM materials` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	args = append(args, filters.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset())
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.CategoryID, &m.UnitID, &m.Price, &m.MinRemain, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id).
		Scan(&m.ID, &m.Code, &m.Name, &m.CategoryID, &m.UnitID, &m.Price, &m.MinRemain, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Material{}, shared.MapPgError(err)
	}
	return m, nil
}

func (r *repository) Create(ctx context.Context, material Material) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `
		INSERT INTO materials (code, name, category_id, unit_id, price, min_remain, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+materialColumns,
		material.Code, material.Name, material.CategoryID, material.UnitID, material.Price, material.MinRemain, material.IsActive).
		Scan(&m.ID, &m.Code, &m.Name, &m.CategoryID, &m.UnitID, &m.Price, &m.MinRemain, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Material{}, shared.MapPgError(err)
	}
	return m, nil
}

func (r *repository) Update(ctx context.Context, id int64, material Material) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `
		UPDATE materials
		SET code = $2, name = $3, category_id = $4, unit_id = $5, price = $6, min_remain = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+materialColumns,
		id, material.Code, material.Name, material.CategoryID, material.UnitID, material.Price, material.MinRemain, material.IsActive).
		Scan(&m.ID, &m.Code, &m.Name, &m.CategoryID, &m.UnitID, &m.Price, &m.MinRemain, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Material{}, shared.MapPgError(err)
	}
	return m, nil
}

// Delete fails with ErrInUse when the material already has stock or
// requisition history, via foreign key constraints.
func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "price":
		return "price " + dir
	default:
		return "name " + dir
	}
}
