package branches

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, id int64) (Branch, error)
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, id int64, branch Branch) (Branch, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const branchColumns = `id, company_id, code, name, address, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.CompanyID != nil {
		args = append(args, *filters.CompanyID)
		where += ` AND company_id = $` + strconv.Itoa(len(args))
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + branchColumns + ` FROM branches` + where + ` ORDER BY name ASC`
	args = append(args, filters.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filters.Offset())
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, b)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id).
		Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, shared.MapPgError(err)
	}
	return b, nil
}

func (r *repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `
		INSERT INTO branches (company_id, code, name, address, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+branchColumns,
		branch.CompanyID, branch.Code, branch.Name, branch.Address, branch.IsActive).
		Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, shared.MapPgError(err)
	}
	return b, nil
}

func (r *repository) Update(ctx context.Context, id int64, branch Branch) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `
		UPDATE branches
		SET company_id = $2, code = $3, name = $4, address = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+branchColumns,
		id, branch.CompanyID, branch.Code, branch.Name, branch.Address, branch.IsActive).
		Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, shared.MapPgError(err)
	}
	return b, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
