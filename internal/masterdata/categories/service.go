package categories

import (
	"context"
	"fmt"
	"strings"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Category, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, name string) (Category, error) {
	if strings.TrimSpace(name) == "" {
		return Category{}, fmt.Errorf("%w: category name is required", shared.ErrValidation)
	}
	return s.repo.Create(ctx, strings.TrimSpace(name))
}

func (s *Service) Update(ctx context.Context, id int64, name string, isActive bool) (Category, error) {
	if id <= 0 {
		return Category{}, shared.ErrInvalidID
	}
	if strings.TrimSpace(name) == "" {
		return Category{}, fmt.Errorf("%w: category name is required", shared.ErrValidation)
	}
	return s.repo.Update(ctx, id, strings.TrimSpace(name), isActive)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
