package assignment

import (
	"context"

	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

type ApplicationRepository interface {
	CreateApplication(ctx context.Context, a *assignment.Application) error
	FindApplication(ctx context.Context, orderID, helperID int64) (*assignment.Application, error)
	// ListApplicationsByStatus returns applications in applied_at order.
	ListApplicationsByStatus(ctx context.Context, orderID int64, status assignment.Status) ([]assignment.Application, error)
	UpdateApplicationStatus(ctx context.Context, id int64, status assignment.Status) error
	// CountActiveAssignments is the source of truth for occupied slots;
	// orders.current_helpers is a read-side mirror refreshed on each commit.
	CountActiveAssignments(ctx context.Context, orderID int64) (int, error)
}

// OrderStore is the slice of order persistence the assignment engine
// needs: loading an order and committing its status/helper-count pair.
type OrderStore interface {
	FindOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	UpdateOrderAssignment(ctx context.Context, id int64, status order.Status, currentHelpers int) error
}
