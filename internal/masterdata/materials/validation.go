package materials

import (
	"fmt"
	"strings"

	"github.com/stocklane/stocklane/internal/masterdata/shared"
)

func (s *Service) validate(m Material) error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("%w: material code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: material name is required", shared.ErrValidation)
	}
	if m.CategoryID <= 0 {
		return fmt.Errorf("%w: category is required", shared.ErrValidation)
	}
	if m.UnitID <= 0 {
		return fmt.Errorf("%w: unit is required", shared.ErrValidation)
	}
	if m.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", shared.ErrValidation)
	}
	if m.MinRemain < 0 {
		return fmt.Errorf("%w: minimum remain cannot be negative", shared.ErrValidation)
	}
	return nil
}
