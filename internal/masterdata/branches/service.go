package branches

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Branch, error) {
	if id <= 0 {
		return Branch{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, branch Branch) (Branch, error) {
	if err := validate(branch); err != nil {
		return Branch{}, err
	}
	return s.repo.Create(ctx, branch)
}

func (s *Service) Update(ctx context.Context, id int64, branch Branch) (Branch, error) {
	if id <= 0 {
		return Branch{}, shared.ErrInvalidID
	}
	if err := validate(branch); err != nil {
		return Branch{}, err
	}
	return s.repo.Update(ctx, id, branch)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}

func validate(b Branch) error {
	if b.CompanyID <= 0 {
		return fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	if strings.TrimSpace(b.Code) == "" {
		return fmt.Errorf("%w: branch code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: branch name is required", shared.ErrValidation)
	}
	return nil
}
