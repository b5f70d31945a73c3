package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/notify"
	orderpkg "github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

var (
	ErrNotFound    = errors.New("closing report not found")
	ErrNotAssigned = errors.New("helper is not assigned to this order")
	ErrValidation  = errors.New("invalid billing input")
)

type Service struct {
	repo        BillingRepository
	orders      OrderStore
	assignments AssignmentStore
	locks       *lock.Keyed
	lockTimeout time.Duration
	notifier    notify.Notifier
}

func NewService(
	repo BillingRepository,
	orders OrderStore,
	assignments AssignmentStore,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	notifier notify.Notifier,
) *Service {
	return &Service{
		repo:        repo,
		orders:      orders,
		assignments: assignments,
		locks:       locks,
		lockTimeout: lockTimeout,
		notifier:    notifier,
	}
}

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

func (s *Service) emit(event notify.Event) {
	go s.notifier.Notify(context.Background(), event)
}

type ClosingInput struct {
	Delivered   int64               `json:"delivered"`
	Returned    int64               `json:"returned"`
	Misc        int64               `json:"misc"`
	ExtraCosts  []billing.ExtraCost `json:"extra_costs"`
	Attachments []string            `json:"attachments"`
}

// SubmitClosing records the performing helper's closing summary and moves
// the order to CLOSING_SUBMITTED.
func (s *Service) SubmitClosing(ctx context.Context, number string, helperID int64, in ClosingInput) (*billing.ClosingReport, error) {
	if in.Delivered < 0 || in.Returned < 0 || in.Misc < 0 {
		return nil, fmt.Errorf("%w: counts must be non-negative", ErrValidation)
	}
	for _, c := range in.ExtraCosts {
		if c.Name == "" || c.UnitPrice < 0 || c.Quantity <= 0 {
			return nil, fmt.Errorf("%w: malformed extra cost line %q", ErrValidation, c.Name)
		}
	}

	var report *billing.ClosingReport
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.findOrder(ctx, number)
		if err != nil {
			return err
		}

		app, err := s.assignments.FindApplication(ctx, o.ID, helperID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotAssigned
		}
		if err != nil {
			return err
		}
		if !app.Status.Active() {
			return ErrNotAssigned
		}

		if err := orderpkg.Transition(o, order.StatusClosingSubmitted); err != nil {
			return err
		}

		report = &billing.ClosingReport{
			OrderID:     o.ID,
			HelperID:    helperID,
			Delivered:   in.Delivered,
			Returned:    in.Returned,
			Misc:        in.Misc,
			ExtraCosts:  in.ExtraCosts,
			Attachments: in.Attachments,
			Status:      billing.ReportSubmitted,
			SubmittedAt: time.Now().UTC(),
		}
		if err := s.repo.CreateClosingReport(ctx, report); err != nil {
			return err
		}
		return s.orders.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventClosingSubmitted, number, map[string]any{"helper_id": helperID}))
	return report, nil
}

// ApproveClosing recomputes the final total from the reported quantities
// and locks it: delivered boxes at the snapshotted unit price plus the
// reported extra-cost lines. The deposit split is untouched.
func (s *Service) ApproveClosing(ctx context.Context, number string) (*order.Order, error) {
	var o *order.Order
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		var err error
		o, err = s.findOrder(ctx, number)
		if err != nil {
			return err
		}

		report, err := s.repo.FindClosingReport(ctx, o.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := orderpkg.Transition(o, order.StatusFinalConfirmed); err != nil {
			return err
		}

		final := report.Delivered * o.UnitPrice
		for _, c := range report.ExtraCosts {
			final += c.Amount()
		}

		if err := s.repo.UpdateClosingReportStatus(ctx, report.ID, billing.ReportApproved); err != nil {
			return err
		}
		if err := s.orders.SetFinalAmount(ctx, o.ID, final); err != nil {
			return err
		}
		o.FinalAmount = &final
		return s.orders.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventClosingApproved, number, map[string]any{"final_amount": *o.FinalAmount}))
	return o, nil
}

// ConfirmBalancePaid is the manual admin path for balance confirmation.
func (s *Service) ConfirmBalancePaid(ctx context.Context, number string) (*order.Order, error) {
	return s.confirmBalance(ctx, number, "manual", uuid.NewString(), -1)
}

// WebhookPayload is the payment provider's asynchronous confirmation.
type WebhookPayload struct {
	OrderNumber   string `json:"order_number"`
	Amount        int64  `json:"amount"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
}

// HandleWebhook processes a payment-confirmed event idempotently: the
// provider may deliver the same transaction any number of times, only the
// first recording transitions the order.
func (s *Service) HandleWebhook(ctx context.Context, p WebhookPayload) (*order.Order, error) {
	if p.OrderNumber == "" || p.Provider == "" || p.TransactionID == "" {
		return nil, fmt.Errorf("%w: order number, provider and transaction id are required", ErrValidation)
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return s.confirmBalance(ctx, p.OrderNumber, p.Provider, p.TransactionID, p.Amount)
}

// confirmBalance records the payment and moves the order to BALANCE_PAID.
// amount < 0 skips the amount check (manual confirmation).
//
// The provider delivers at least once, in any order. The transition guard
// therefore runs before the payment row is written: an early delivery
// leaves nothing behind and the retry succeeds once the order reaches
// FINAL_AMOUNT_CONFIRMED. A duplicate row on a not-yet-paid order means
// the first delivery died between the payment write and the status
// commit; the retry finishes the pending transition.
func (s *Service) confirmBalance(ctx context.Context, number, provider, txID string, amount int64) (*order.Order, error) {
	var (
		o         *order.Order
		confirmed bool
	)
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		var err error
		o, err = s.findOrder(ctx, number)
		if err != nil {
			return err
		}

		due := o.BalanceAmount()
		if amount >= 0 && amount != due {
			return fmt.Errorf("%w: payment amount %d does not match balance due %d", ErrValidation, amount, due)
		}
		if amount < 0 {
			amount = due
		}

		// redelivery for an order whose balance already settled
		if balanceSettled(o.Status) {
			return nil
		}

		if err := orderpkg.Transition(o, order.StatusBalancePaid); err != nil {
			return err
		}

		if _, err := s.repo.CreatePayment(ctx, &billing.Payment{
			OrderID:      o.ID,
			Amount:       amount,
			Provider:     provider,
			ProviderTxID: txID,
			ReceivedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}

		confirmed = true
		return s.orders.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	if confirmed {
		s.emit(notify.NewEvent(notify.EventBalancePaid, number, map[string]any{"provider": provider}))
	}
	return o, nil
}

// balanceSettled reports whether the order's balance has already been
// confirmed, directly or through a later status.
func balanceSettled(st order.Status) bool {
	switch st {
	case order.StatusBalancePaid, order.StatusSettlementPaid, order.StatusClosed:
		return true
	default:
		return false
	}
}

// Settle pays out the assigned helpers: the locked final total minus the
// snapshotted commission, split evenly. The order then closes.
func (s *Service) Settle(ctx context.Context, number string) (*order.Order, error) {
	var o *order.Order
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		var err error
		o, err = s.findOrder(ctx, number)
		if err != nil {
			return err
		}
		if err := orderpkg.Transition(o, order.StatusSettlementPaid); err != nil {
			return err
		}

		helpers, err := s.assignments.ListActiveAssignments(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(helpers) == 0 {
			return fmt.Errorf("%w: no assigned helpers to settle", ErrValidation)
		}

		total := o.TotalAmount
		if o.FinalAmount != nil {
			total = *o.FinalAmount
		}
		pool := total - total*o.CommissionRate/100
		share := pool / int64(len(helpers))

		now := time.Now().UTC()
		settlements := make([]billing.Settlement, 0, len(helpers))
		for _, h := range helpers {
			settlements = append(settlements, billing.Settlement{
				OrderID:   o.ID,
				HelperID:  h.HelperID,
				Amount:    share,
				CreatedAt: now,
			})
		}
		if err := s.repo.CreateSettlements(ctx, settlements); err != nil {
			return err
		}
		if err := s.orders.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
			return err
		}

		if err := orderpkg.Transition(o, order.StatusClosed); err != nil {
			return err
		}
		return s.orders.UpdateOrderStatus(ctx, o.ID, o.Status)
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventSettlementPaid, number, nil))
	return o, nil
}

func (s *Service) findOrder(ctx context.Context, number string) (*order.Order, error) {
	o, err := s.orders.FindOrderByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderpkg.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}
