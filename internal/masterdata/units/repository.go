package units

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Unit, error)
	Get(ctx context.Context, id int64) (Unit, error)
	Create(ctx context.Context, unit Unit) (Unit, error)
	Update(ctx context.Context, id int64, unit Unit) (Unit, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name FROM units ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM units WHERE id = $1`, id).
		Scan(&u.ID, &u.Code, &u.Name)
	if err != nil {
		return Unit{}, shared.MapPgError(err)
	}
	return u, nil
}

func (r *repository) Create(ctx context.Context, unit Unit) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `INSERT INTO units (code, name) VALUES ($1, $2) RETURNING id, code, name`,
		unit.Code, unit.Name).
		Scan(&u.ID, &u.Code, &u.Name)
	if err != nil {
		return Unit{}, shared.MapPgError(err)
	}
	return u, nil
}

func (r *repository) Update(ctx context.Context, id int64, unit Unit) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `UPDATE units SET code = $2, name = $3 WHERE id = $1 RETURNING id, code, name`,
		id, unit.Code, unit.Name).
		Scan(&u.ID, &u.Code, &u.Name)
	if err != nil {
		return Unit{}, shared.MapPgError(err)
	}
	return u, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
