package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/notify"
	"github.com/jshmir7070-sys/helpme-core/internal/pricing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/user"
	"github.com/jshmir7070-sys/helpme-core/internal/util/ordernum"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrValidation = errors.New("invalid order input")
	ErrForbidden  = errors.New("actor may not act on this order")
)

type Service struct {
	repo        OrderRepository
	policies    *pricing.Service
	locks       *lock.Keyed
	lockTimeout time.Duration
	depositRate float64
	notifier    notify.Notifier
}

func NewService(
	repo OrderRepository,
	policies *pricing.Service,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	depositRate float64,
	notifier notify.Notifier,
) *Service {
	if depositRate <= 0 {
		depositRate = pricing.DefaultDepositRate
	}
	return &Service{
		repo:        repo,
		policies:    policies,
		locks:       locks,
		lockTimeout: lockTimeout,
		depositRate: depositRate,
		notifier:    notifier,
	}
}

// withLock serializes fn against every other mutation of the same order.
func (s *Service) withLock(ctx context.Context, number string, fn func(ctx context.Context) error) error {
	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	release, err := s.locks.Acquire(lctx, number)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// emit publishes a notification after the order lock has been released.
func (s *Service) emit(event notify.Event) {
	go s.notifier.Notify(context.Background(), event)
}

type CreateOrderInput struct {
	Category       order.Category `json:"category"`
	Courier        string         `json:"courier"`
	Quantity       int64          `json:"quantity"`
	Freight        int64          `json:"freight"`
	Urgent         bool           `json:"urgent"`
	MaxHelpers     int            `json:"max_helpers"`
	EnterpriseID   *int64         `json:"enterprise_id"`
	ScheduledStart *time.Time     `json:"scheduled_start"`
	ScheduledEnd   *time.Time     `json:"scheduled_end"`
}

// CreateOrder prices the order, derives the deposit split and stores it in
// its initial status: AWAITING_DEPOSIT for the standard flow, OPEN for
// enterprise orders which skip the deposit gate.
func (s *Service) CreateOrder(ctx context.Context, requesterID int64, in CreateOrderInput) (*order.Order, error) {
	if !in.Category.IsValid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, in.Category)
	}
	if in.Courier == "" {
		return nil, fmt.Errorf("%w: courier is required", ErrValidation)
	}
	if in.Category.Freight() {
		if in.Freight <= 0 {
			return nil, fmt.Errorf("%w: freight must be positive", ErrValidation)
		}
	} else if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.ScheduledStart != nil && in.ScheduledEnd != nil && in.ScheduledEnd.Before(*in.ScheduledStart) {
		return nil, fmt.Errorf("%w: scheduled end before start", ErrValidation)
	}
	maxHelpers := in.MaxHelpers
	if maxHelpers == 0 {
		maxHelpers = order.DefaultMaxHelpers
	}
	if maxHelpers < 1 {
		return nil, fmt.Errorf("%w: max helpers must be at least 1", ErrValidation)
	}

	quote, commission, err := s.policies.QuoteOrder(ctx, pricing.QuoteRequest{
		Courier:  in.Courier,
		Category: in.Category,
		Quantity: in.Quantity,
		Freight:  in.Freight,
		Urgent:   in.Urgent,
	})
	if err != nil {
		if errors.Is(err, pricing.ErrValidation) || errors.Is(err, pricing.ErrPolicyNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	quantity := in.Quantity
	if in.Category.Freight() {
		quantity = 1
	}

	now := time.Now().UTC()
	o := &order.Order{
		Number:         ordernum.New(),
		RequesterID:    requesterID,
		EnterpriseID:   in.EnterpriseID,
		Category:       in.Category,
		Courier:        in.Courier,
		Urgent:         in.Urgent,
		Quantity:       quantity,
		UnitPrice:      quote.UnitPrice,
		TotalAmount:    quote.Total,
		DepositAmount:  pricing.Deposit(quote.Total, s.depositRate),
		CommissionRate: commission,
		MinApplied:     quote.MinApplied,
		MaxHelpers:     maxHelpers,
		Status:         order.StatusAwaitingDeposit,
		ScheduledStart: in.ScheduledStart,
		ScheduledEnd:   in.ScheduledEnd,
		BalanceDueAt:   pricing.BalanceDueDate(in.ScheduledEnd, now),
		CreatedAt:      now,
	}
	if in.EnterpriseID != nil {
		// contracted flow: no deposit gate, immediately visible
		o.Status = order.StatusOpen
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	if o.Status == order.StatusOpen {
		s.emit(notify.NewEvent(notify.EventOrderOpened, o.Number, nil))
	}
	return o, nil
}

// ApproveDeposit confirms deposit receipt and makes the order visible to
// helpers.
func (s *Service) ApproveDeposit(ctx context.Context, number string) (*order.Order, error) {
	var o *order.Order
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		var err error
		o, err = s.find(ctx, number)
		if err != nil {
			return err
		}
		if err := Transition(o, order.StatusOpen); err != nil {
			return err
		}
		return s.repo.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventOrderOpened, o.Number, nil))
	return o, nil
}

// RejectDeposit cancels an order whose deposit was never captured; no
// refund obligation arises.
func (s *Service) RejectDeposit(ctx context.Context, number string) (*order.Order, error) {
	var o *order.Order
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		var err error
		o, err = s.find(ctx, number)
		if err != nil {
			return err
		}
		if o.Status != order.StatusAwaitingDeposit {
			return &TransitionError{Number: o.Number, From: o.Status, To: order.StatusCancelled}
		}
		if err := Transition(o, order.StatusCancelled); err != nil {
			return err
		}
		return s.repo.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventOrderCancelled, o.Number, map[string]any{"refund_amount": int64(0)}))
	return o, nil
}

// CancelResult carries the cancelled order and the refund owed, computed
// from the two-bucket refund policy at the moment of cancellation.
type CancelResult struct {
	Order        *order.Order `json:"order"`
	RefundAmount int64        `json:"refund_amount"`
}

// Cancel cancels an unassigned or partially-assigned order. Requesters may
// only cancel their own orders. Once work has been scheduled or a closing
// report exists the request is rejected, not ignored.
func (s *Service) Cancel(ctx context.Context, number string, actor *user.User, reason string) (*CancelResult, error) {
	var res CancelResult
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.find(ctx, number)
		if err != nil {
			return err
		}
		if actor != nil && actor.Role == user.RoleRequester && o.RequesterID != actor.ID {
			return ErrForbidden
		}

		refund := int64(0)
		// a deposit that was never captured (standard flow, pre-approval)
		// cannot be refunded; captured deposits follow the policy table
		if o.Status != order.StatusAwaitingDeposit {
			active, err := s.repo.CountActiveAssignments(ctx, o.ID)
			if err != nil {
				return err
			}
			rate, err := s.policies.RefundRate(ctx, active)
			if err != nil {
				return err
			}
			refund = pricing.RefundAmount(o.DepositAmount, rate)
		}

		if err := Transition(o, order.StatusCancelled); err != nil {
			return err
		}
		if err := s.repo.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
			return err
		}
		res = CancelResult{Order: o, RefundAmount: refund}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventOrderCancelled, number, map[string]any{
		"refund_amount": res.RefundAmount,
		"reason":        reason,
	}))
	return &res, nil
}

func (s *Service) GetOrder(ctx context.Context, number string) (*order.Order, error) {
	return s.find(ctx, number)
}

// ListOrders is role-scoped: requesters see their own orders, helpers see
// orders open for application, admins see everything.
func (s *Service) ListOrders(ctx context.Context, actor *user.User) ([]order.Order, error) {
	switch actor.Role {
	case user.RoleRequester:
		return s.repo.ListOrdersByRequester(ctx, actor.ID)
	case user.RoleHelper:
		return s.repo.ListOrdersByStatus(ctx, order.StatusOpen, order.StatusMatching)
	default:
		return s.repo.ListOrders(ctx)
	}
}

// StartDueOrders moves SCHEDULED orders whose start date has passed into
// IN_PROGRESS. Re-running it on an order already in progress is a no-op,
// so the sweep may fire as often as it likes.
func (s *Service) StartDueOrders(ctx context.Context) (int, error) {
	due, err := s.repo.ListScheduledDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	started := 0
	for i := range due {
		number := due[i].Number
		err := s.withLock(ctx, number, func(ctx context.Context) error {
			o, err := s.find(ctx, number)
			if err != nil {
				return err
			}
			if o.Status != order.StatusScheduled {
				return nil
			}
			if err := Transition(o, order.StatusInProgress); err != nil {
				return err
			}
			if err := s.repo.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
				return err
			}
			started++
			s.emit(notify.NewEvent(notify.EventOrderInProgress, number, nil))
			return nil
		})
		if err != nil {
			return started, err
		}
	}
	return started, nil
}

func (s *Service) find(ctx context.Context, number string) (*order.Order, error) {
	o, err := s.repo.FindOrderByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}
