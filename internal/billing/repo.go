package billing

import (
	"context"

	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

type BillingRepository interface {
	CreateClosingReport(ctx context.Context, r *billing.ClosingReport) error
	FindClosingReport(ctx context.Context, orderID int64) (*billing.ClosingReport, error)
	UpdateClosingReportStatus(ctx context.Context, id int64, status billing.ReportStatus) error
	// CreatePayment records a confirmed payment. A payment whose
	// (order, provider, provider tx id) triple is already known is not
	// inserted again; created reports whether this call stored a new row.
	CreatePayment(ctx context.Context, p *billing.Payment) (created bool, err error)
	CreateSettlements(ctx context.Context, settlements []billing.Settlement) error
}

type OrderStore interface {
	FindOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status order.Status) error
	// SetFinalAmount locks the recomputed total after closing approval.
	SetFinalAmount(ctx context.Context, id int64, final int64) error
}

type AssignmentStore interface {
	FindApplication(ctx context.Context, orderID, helperID int64) (*assignment.Application, error)
	ListActiveAssignments(ctx context.Context, orderID int64) ([]assignment.Application, error)
}
