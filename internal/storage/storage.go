package storage

import (
	"context"

	"github.com/jshmir7070-sys/helpme-core/internal/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/pricing"
	"github.com/jshmir7070-sys/helpme-core/internal/user"
)

// Storage joins every repository contract the services depend on. The
// Postgres implementation satisfies all of them with one connection pool.
type Storage interface {
	user.UserRepository
	order.OrderRepository
	assignment.ApplicationRepository
	assignment.OrderStore
	billing.BillingRepository
	billing.OrderStore
	billing.AssignmentStore
	pricing.PolicyRepository

	Ping(ctx context.Context) error
	Close() error
}
