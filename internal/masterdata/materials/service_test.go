package materials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
	_ "github.com/stocklane/stocklane/testing"
)

type fakeRepo struct {
	items  map[int64]Material
	nextID int64
	inUse  map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[int64]Material{}, nextID: 1, inUse: map[int64]bool{}}
}

func (f *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Material, int, error) {
	var list []Material
	for _, m := range f.items {
		list = append(list, m)
	}
	return list, len(list), nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Material, error) {
	m, ok := f.items[id]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	return m, nil
}

func (f *fakeRepo) Create(_ context.Context, material Material) (Material, error) {
	for _, m := range f.items {
		if m.Code == material.Code {
			return Material{}, shared.ErrDuplicate
		}
	}
	material.ID = f.nextID
	f.nextID++
	f.items[material.ID] = material
	return material, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, material Material) (Material, error) {
	if _, ok := f.items[id]; !ok {
		return Material{}, shared.ErrNotFound
	}
	material.ID = id
	f.items[id] = material
	return material, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return shared.ErrNotFound
	}
	if f.inUse[id] {
		return shared.ErrInUse
	}
	delete(f.items, id)
	return nil
}

func validMaterial() Material {
	return Material{Code: "MAT-001", Name: "Copper Wire", CategoryID: 1, UnitID: 1, Price: 1500, MinRemain: 10, IsActive: true}
}

func TestCreateMaterial(t *testing.T) {
	svc := NewService(newFakeRepo())

	created, err := svc.Create(context.Background(), validMaterial())
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)
	require.Equal(t, "MAT-001", created.Code)
}

func TestCreateMaterialRejectsBlankCode(t *testing.T) {
	svc := NewService(newFakeRepo())

	m := validMaterial()
	m.Code = "   "
	_, err := svc.Create(context.Background(), m)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateMaterialRejectsNegativeThreshold(t *testing.T) {
	svc := NewService(newFakeRepo())

	m := validMaterial()
	m.MinRemain = -1
	_, err := svc.Create(context.Background(), m)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateMaterialDuplicateCode(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Create(context.Background(), validMaterial())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validMaterial())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestDeleteMaterialInUse(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), validMaterial())
	require.NoError(t, err)
	repo.inUse[created.ID] = true

	err = svc.Delete(context.Background(), created.ID)
	require.ErrorIs(t, err, shared.ErrInUse)
}

func TestGetMaterialInvalidID(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.Get(context.Background(), 0)
	require.ErrorIs(t, err, shared.ErrInvalidID)
}
