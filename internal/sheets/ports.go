package sheets

import (
	"context"

	"courses/internal/core"
)

// Ports for outbound adapters.
type (
	// PurchaseExporter writes the full purchase history to a spreadsheet,
	// replacing whatever a previous export left there.
	PurchaseExporter interface {
		ExportPurchases(ctx context.Context, purchases []core.Purchase) (rangeRef string, err error)
	}
)
