package pricing

import (
	"context"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
)

type PolicyRepository interface {
	// FindPricingPolicy resolves the price book entry for a courier and
	// category, falling back to the category default when the courier has
	// no dedicated row.
	FindPricingPolicy(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error)
	ListPricingPolicies(ctx context.Context) ([]policy.PricingPolicy, error)
	FindRefundPolicy(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error)
	UpdateRefundPolicy(ctx context.Context, p *policy.RefundPolicy) error
}
