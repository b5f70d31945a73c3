package pricing

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
)

type mockPolicyRepo struct {
	findPricingPolicyFn   func(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error)
	listPricingPoliciesFn func(ctx context.Context) ([]policy.PricingPolicy, error)
	findRefundPolicyFn    func(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error)
	updateRefundPolicyFn  func(ctx context.Context, p *policy.RefundPolicy) error
}

func (m *mockPolicyRepo) FindPricingPolicy(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
	return m.findPricingPolicyFn(ctx, courier, category)
}
func (m *mockPolicyRepo) ListPricingPolicies(ctx context.Context) ([]policy.PricingPolicy, error) {
	return m.listPricingPoliciesFn(ctx)
}
func (m *mockPolicyRepo) FindRefundPolicy(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error) {
	return m.findRefundPolicyFn(ctx, stage)
}
func (m *mockPolicyRepo) UpdateRefundPolicy(ctx context.Context, p *policy.RefundPolicy) error {
	return m.updateRefundPolicyFn(ctx, p)
}

func TestQuoteOrderParcel(t *testing.T) {
	repo := &mockPolicyRepo{
		findPricingPolicyFn: func(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
			assert.Equal(t, "cdek", courier)
			return &policy.PricingPolicy{
				Courier: "cdek", Category: category,
				BasePrice: 1200, MinTotal: 150000, UrgentSurchargeRate: 20, CommissionRate: 10,
			}, nil
		},
	}
	svc := NewService(repo)

	q, commission, err := svc.QuoteOrder(context.Background(), QuoteRequest{
		Courier: "cdek", Category: order.CategoryParcel, Quantity: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1500), q.UnitPrice)
	assert.True(t, q.MinApplied)
	assert.Equal(t, int64(10), commission)
}

func TestQuoteOrderFreightFixesQuantity(t *testing.T) {
	repo := &mockPolicyRepo{
		findPricingPolicyFn: func(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
			return &policy.PricingPolicy{Courier: "*", Category: category, BasePrice: 0, UrgentSurchargeRate: 20}, nil
		},
	}
	svc := NewService(repo)

	q, _, err := svc.QuoteOrder(context.Background(), QuoteRequest{
		Courier: "reefer", Category: order.CategoryCold, Quantity: 40, Freight: 90000, Urgent: true,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(108000), q.UnitPrice)
	assert.Equal(t, int64(108000), q.Total)
}

func TestRefundRateBuckets(t *testing.T) {
	repo := &mockPolicyRepo{
		findRefundPolicyFn: func(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error) {
			if stage == policy.StageBeforeMatching {
				return &policy.RefundPolicy{Stage: stage, RefundRate: 100}, nil
			}
			return &policy.RefundPolicy{Stage: stage, RefundRate: 50}, nil
		},
	}
	svc := NewService(repo)

	rate, err := svc.RefundRate(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 100, rate)

	rate, err = svc.RefundRate(context.Background(), 2)
	assert.NoError(t, err)
	assert.Equal(t, 50, rate)
}

func TestUpdateRefundPolicyValidation(t *testing.T) {
	var updated bool
	repo := &mockPolicyRepo{
		updateRefundPolicyFn: func(ctx context.Context, p *policy.RefundPolicy) error {
			updated = true
			return nil
		},
	}
	svc := NewService(repo)

	err := svc.UpdateRefundPolicy(context.Background(), &policy.RefundPolicy{Stage: "mid_flight", RefundRate: 10})
	assert.ErrorIs(t, err, ErrValidation)

	err = svc.UpdateRefundPolicy(context.Background(), &policy.RefundPolicy{Stage: policy.StageAfterMatching, RefundRate: 101})
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, updated)

	err = svc.UpdateRefundPolicy(context.Background(), &policy.RefundPolicy{Stage: policy.StageAfterMatching, RefundRate: 40})
	assert.NoError(t, err)
	assert.True(t, updated)
}

func TestQuoteOrderPolicyMissing(t *testing.T) {
	repo := &mockPolicyRepo{
		findPricingPolicyFn: func(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewService(repo)

	_, _, err := svc.QuoteOrder(context.Background(), QuoteRequest{
		Courier: "nobody", Category: order.CategoryParcel, Quantity: 1,
	})
	assert.Error(t, err)
}
