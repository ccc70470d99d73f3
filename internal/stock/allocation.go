package stock

import "sort"

// Allocate plans a FIFO consumption of quantity across the given lots.
// Lots are taken oldest first, ties broken by ascending lot id. The plan
// is all-or-nothing: when the combined remain cannot cover the request,
// no allocation is returned and the caller must not mutate any lot.
//
// The input slice is not modified.
func Allocate(lots []Lot, materialID, warehouseID, quantity int64) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var available int64
	for _, lot := range ordered {
		available += lot.Remain
	}
	if available < quantity {
		return nil, &InsufficientStockError{
			MaterialID:  materialID,
			WarehouseID: warehouseID,
			Requested:   quantity,
			Available:   available,
		}
	}

	var plan []Allocation
	left := quantity
	for _, lot := range ordered {
		if left == 0 {
			break
		}
		if lot.Remain == 0 {
			continue
		}
		take := lot.Remain
		if take > left {
			take = left
		}
		plan = append(plan, Allocation{LotID: lot.ID, Taken: take})
		left -= take
	}
	return plan, nil
}
