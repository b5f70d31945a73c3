package order

import (
	"context"
	"time"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	FindOrderByNumber(ctx context.Context, number string) (*order.Order, error)
	ListOrdersByRequester(ctx context.Context, requesterID int64) ([]order.Order, error)
	ListOrdersByStatus(ctx context.Context, statuses ...order.Status) ([]order.Order, error)
	ListOrders(ctx context.Context) ([]order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status order.Status) error
	// ListScheduledDue returns SCHEDULED orders whose start date has passed.
	ListScheduledDue(ctx context.Context, now time.Time) ([]order.Order, error)
	CountActiveAssignments(ctx context.Context, orderID int64) (int, error)
}
