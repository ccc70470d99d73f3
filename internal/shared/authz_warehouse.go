package shared

// Warehouse domain permissions. Every state-transition handler guards with
// one of these; services never re-check, they only record the actor.
const (
	PermMasterdataView = "masterdata.view"
	PermMasterdataEdit = "masterdata.edit"

	PermStockView   = "stock.view"
	PermStockAdjust = "stock.adjust"
	PermStockExport = "stock.export"

	PermRequisitionsView     = "requisitions.view"
	PermRequisitionsCreate   = "requisitions.create"
	PermRequisitionsApprove  = "requisitions.approve"
	PermRequisitionsComplete = "requisitions.complete"
	PermRequisitionsDelete   = "requisitions.delete"

	PermPurchasingView    = "purchasing.view"
	PermPurchasingEdit    = "purchasing.edit"
	PermPurchasingApprove = "purchasing.approve"
	PermPurchasingReceive = "purchasing.receive"
)

// WarehouseScopes lists all permissions for the warehouse domain.
func WarehouseScopes() []string {
	return []string{
		PermMasterdataView,
		PermMasterdataEdit,
		PermStockView,
		PermStockAdjust,
		PermStockExport,
		PermRequisitionsView,
		PermRequisitionsCreate,
		PermRequisitionsApprove,
		PermRequisitionsComplete,
		PermRequisitionsDelete,
		PermPurchasingView,
		PermPurchasingEdit,
		PermPurchasingApprove,
		PermPurchasingReceive,
	}
}
