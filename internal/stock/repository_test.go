package stock

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	_ "github.com/stocklane/stocklane/testing"
)

func TestMapFKErrorNamesTheMissingReference(t *testing.T) {
	material := mapFKError(&pgconn.PgError{Code: "23503", ConstraintName: "stock_lots_material_id_fkey"})
	require.ErrorIs(t, material, ErrMaterialNotFound)

	warehouse := mapFKError(&pgconn.PgError{Code: "23503", ConstraintName: "stock_lots_warehouse_id_fkey"})
	require.ErrorIs(t, warehouse, ErrWarehouseNotFound)
}

func TestMapFKErrorPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	require.Equal(t, boom, mapFKError(boom))

	unique := &pgconn.PgError{Code: "23505", ConstraintName: "stock_lots_pkey"}
	require.Equal(t, error(unique), mapFKError(unique))
}
