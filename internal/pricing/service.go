package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
)

var ErrPolicyNotFound = errors.New("pricing policy not found")

type Service struct {
	repo PolicyRepository
}

func NewService(repo PolicyRepository) *Service {
	return &Service{repo: repo}
}

// QuoteRequest carries the commercial inputs of order creation. For
// freight categories Freight replaces the price book base price and the
// quantity is fixed at 1.
type QuoteRequest struct {
	Courier  string
	Category order.Category
	Quantity int64
	Freight  int64
	Urgent   bool
}

// QuoteOrder resolves the courier's price book entry and computes the
// final per-unit price for an order. The returned commission rate is
// snapshotted onto the order for later settlement.
func (s *Service) QuoteOrder(ctx context.Context, req QuoteRequest) (Quote, int64, error) {
	pol, err := s.repo.FindPricingPolicy(ctx, req.Courier, req.Category)
	if err != nil {
		return Quote{}, 0, err
	}

	base := pol.BasePrice
	quantity := req.Quantity
	if req.Category.Freight() {
		base = req.Freight
		quantity = 1
	}

	q, err := ResolveUnitPrice(base, quantity, pol.MinTotal, pol.UrgentSurchargeRate, req.Urgent)
	if err != nil {
		return Quote{}, 0, err
	}
	return q, pol.CommissionRate, nil
}

// RefundRate evaluates the two-bucket refund policy at the moment of
// cancellation: zero active helpers selects before_matching, anything
// else selects after_matching.
func (s *Service) RefundRate(ctx context.Context, activeHelpers int) (int, error) {
	stage := policy.StageBeforeMatching
	if activeHelpers > 0 {
		stage = policy.StageAfterMatching
	}
	p, err := s.repo.FindRefundPolicy(ctx, stage)
	if err != nil {
		return 0, err
	}
	return p.RefundRate, nil
}

func (s *Service) ListRefundPolicies(ctx context.Context) ([]policy.RefundPolicy, error) {
	out := make([]policy.RefundPolicy, 0, 2)
	for _, stage := range []policy.RefundStage{policy.StageBeforeMatching, policy.StageAfterMatching} {
		p, err := s.repo.FindRefundPolicy(ctx, stage)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Service) UpdateRefundPolicy(ctx context.Context, p *policy.RefundPolicy) error {
	if !p.Stage.IsValid() {
		return fmt.Errorf("%w: unknown refund stage %q", ErrValidation, p.Stage)
	}
	if p.RefundRate < 0 || p.RefundRate > 100 {
		return fmt.Errorf("%w: refund rate %d out of range 0-100", ErrValidation, p.RefundRate)
	}
	return s.repo.UpdateRefundPolicy(ctx, p)
}

func (s *Service) ListPricingPolicies(ctx context.Context) ([]policy.PricingPolicy, error) {
	return s.repo.ListPricingPolicies(ctx)
}
