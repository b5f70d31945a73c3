package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/notify"
	orderpkg "github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

var (
	ErrCapacityExceeded = errors.New("helper capacity exceeded")
	ErrAlreadyAssigned  = errors.New("helper already assigned to this order")
	ErrNotFound         = errors.New("application not found")
	ErrInvalidState     = errors.New("operation not permitted in current order status")
)

type Service struct {
	repo        ApplicationRepository
	orders      OrderStore
	locks       *lock.Keyed
	lockTimeout time.Duration
	notifier    notify.Notifier
}

func NewService(
	repo ApplicationRepository,
	orders OrderStore,
	locks *lock.Keyed,
	lockTimeout time.Duration,
	notifier notify.Notifier,
) *Service {
	return &Service{
		repo:        repo,
		orders:      orders,
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

// Apply records a helper's claim on an open-application order. The first
// application moves the order from OPEN to MATCHING.
func (s *Service) Apply(ctx context.Context, number string, helperID int64, message string, expectedArrival *time.Time) (*assignment.Application, error) {
	var app *assignment.Application
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.findOrder(ctx, number)
		if err != nil {
			return err
		}
		if o.Mode() != order.ModeOpen {
			return fmt.Errorf("%w: direct-assignment order does not take applications", ErrInvalidState)
		}
		if o.Status != order.StatusOpen && o.Status != order.StatusMatching {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
		}

		active, err := s.repo.CountActiveAssignments(ctx, o.ID)
		if err != nil {
			return err
		}
		if active >= o.MaxHelpers {
			return ErrCapacityExceeded
		}

		existing, err := s.repo.FindApplication(ctx, o.ID, helperID)
		switch {
		case err == nil && existing.Status == assignment.StatusRejected:
			// a removed helper may apply again
			if err := s.repo.UpdateApplicationStatus(ctx, existing.ID, assignment.StatusApplied); err != nil {
				return err
			}
			existing.Status = assignment.StatusApplied
			app = existing
		case err == nil:
			return ErrAlreadyAssigned
		case errors.Is(err, sql.ErrNoRows):
			app = &assignment.Application{
				OrderID:         o.ID,
				HelperID:        helperID,
				Status:          assignment.StatusApplied,
				Message:         message,
				ExpectedArrival: expectedArrival,
				AppliedAt:       time.Now().UTC(),
			}
			if err := s.repo.CreateApplication(ctx, app); err != nil {
				return err
			}
		default:
			return err
		}

		if o.Status == order.StatusOpen {
			if err := orderpkg.Transition(o, order.StatusMatching); err != nil {
				return err
			}
			if err := s.orders.UpdateOrderAssignment(ctx, o.ID, o.Status, o.CurrentHelpers); err != nil {
				return err
			}
			s.emit(notify.NewEvent(notify.EventOrderMatching, number, nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventHelperApplied, number, map[string]any{"helper_id": helperID}))
	return app, nil
}

// BulkAssign approves the currently applied helpers in application order,
// capped at the order's remaining capacity. Open-application mode only.
func (s *Service) BulkAssign(ctx context.Context, number string) (*assignment.AssignResult, error) {
	var res assignment.AssignResult
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.findOrder(ctx, number)
		if err != nil {
			return err
		}
		if o.Mode() != order.ModeOpen {
			return fmt.Errorf("%w: bulk assign applies to open-application orders", ErrInvalidState)
		}
		if o.Status != order.StatusOpen && o.Status != order.StatusMatching {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
		}

		// application rows, not the orders.current_helpers mirror, decide
		// capacity
		active, err := s.repo.CountActiveAssignments(ctx, o.ID)
		if err != nil {
			return err
		}
		capacity := o.MaxHelpers - active
		if capacity <= 0 {
			return ErrCapacityExceeded
		}

		applied, err := s.repo.ListApplicationsByStatus(ctx, o.ID, assignment.StatusApplied)
		if err != nil {
			return err
		}
		if len(applied) > capacity {
			applied = applied[:capacity]
		}
		for i := range applied {
			if err := s.repo.UpdateApplicationStatus(ctx, applied[i].ID, assignment.StatusApproved); err != nil {
				return err
			}
			res.Helpers = append(res.Helpers, applied[i].HelperID)
		}
		res.AssignedCount = len(res.Helpers)

		return s.commitAssignment(ctx, o, active+res.AssignedCount)
	})
	if err != nil {
		return nil, err
	}
	if res.AssignedCount > 0 {
		s.emit(notify.NewEvent(notify.EventHelperAssigned, number, map[string]any{"helpers": res.Helpers}))
	}
	return &res, nil
}

// DirectAssign inserts the selected helpers directly at approved status.
// Enterprise (direct-assignment) mode only; the whole selection is
// rejected when it would exceed capacity.
func (s *Service) DirectAssign(ctx context.Context, number string, helperIDs []int64) (*assignment.AssignResult, error) {
	var res assignment.AssignResult
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.findOrder(ctx, number)
		if err != nil {
			return err
		}
		if o.Mode() != order.ModeDirect {
			return fmt.Errorf("%w: direct assign applies to enterprise orders", ErrInvalidState)
		}
		if o.Status != order.StatusOpen && o.Status != order.StatusMatching {
			return fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
		}

		selected := dedupe(helperIDs)
		if len(selected) == 0 {
			return fmt.Errorf("%w: no helpers selected", ErrInvalidState)
		}
		active, err := s.repo.CountActiveAssignments(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(selected)+active > o.MaxHelpers {
			return fmt.Errorf("%w: %d selected, %d slots left", ErrCapacityExceeded,
				len(selected), o.MaxHelpers-active)
		}

		now := time.Now().UTC()
		for _, helperID := range selected {
			existing, err := s.repo.FindApplication(ctx, o.ID, helperID)
			switch {
			case err == nil && existing.Status.Active():
				// already assigned, skip rather than fail the batch
				continue
			case err == nil:
				if err := s.repo.UpdateApplicationStatus(ctx, existing.ID, assignment.StatusApproved); err != nil {
					return err
				}
			case errors.Is(err, sql.ErrNoRows):
				app := &assignment.Application{
					OrderID:   o.ID,
					HelperID:  helperID,
					Status:    assignment.StatusApproved,
					AppliedAt: now,
				}
				if err := s.repo.CreateApplication(ctx, app); err != nil {
					return err
				}
			default:
				return err
			}
			res.Helpers = append(res.Helpers, helperID)
		}
		res.AssignedCount = len(res.Helpers)

		return s.commitAssignment(ctx, o, active+res.AssignedCount)
	})
	if err != nil {
		return nil, err
	}
	if res.AssignedCount > 0 {
		s.emit(notify.NewEvent(notify.EventHelperAssigned, number, map[string]any{"helpers": res.Helpers}))
	}
	return &res, nil
}

// Remove rejects one active assignment. Dropping below capacity reverts a
// SCHEDULED order to MATCHING; removal after work has started is refused.
func (s *Service) Remove(ctx context.Context, number string, helperID int64) (*assignment.RemoveResult, error) {
	var res assignment.RemoveResult
	err := s.withLock(ctx, number, func(ctx context.Context) error {
		o, err := s.findOrder(ctx, number)
		if err != nil {
			return err
		}
		switch o.Status {
		case order.StatusOpen, order.StatusMatching, order.StatusScheduled:
		default:
			return fmt.Errorf("%w: cannot remove a helper from a %s order", ErrInvalidState, o.Status)
		}

		app, err := s.repo.FindApplication(ctx, o.ID, helperID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !app.Status.Active() {
			return ErrNotFound
		}

		if err := s.repo.UpdateApplicationStatus(ctx, app.ID, assignment.StatusRejected); err != nil {
			return err
		}

		remaining, err := s.repo.CountActiveAssignments(ctx, o.ID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusScheduled && remaining < o.MaxHelpers {
			if err := orderpkg.Transition(o, order.StatusMatching); err != nil {
				return err
			}
		}
		if err := s.orders.UpdateOrderAssignment(ctx, o.ID, o.Status, remaining); err != nil {
			return err
		}
		res = assignment.RemoveResult{RemainingHelpers: remaining, NewStatus: o.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(notify.NewEvent(notify.EventHelperRemoved, number, map[string]any{"helper_id": helperID}))
	return &res, nil
}

func (s *Service) ListApplications(ctx context.Context, number string, status assignment.Status) ([]assignment.Application, error) {
	o, err := s.findOrder(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.repo.ListApplicationsByStatus(ctx, o.ID, status)
}

// commitAssignment settles the order's status/helper-count pair after an
// assignment batch: full capacity with a known date schedules the order,
// anything recorded at OPEN moves it to MATCHING.
func (s *Service) commitAssignment(ctx context.Context, o *order.Order, currentHelpers int) error {
	target := o.Status
	switch {
	case currentHelpers >= o.MaxHelpers && o.ScheduledStart != nil:
		target = order.StatusScheduled
	case o.Status == order.StatusOpen && currentHelpers > 0:
		target = order.StatusMatching
	}
	if target != o.Status {
		if err := orderpkg.Transition(o, target); err != nil {
			return err
		}
	}
	if err := s.orders.UpdateOrderAssignment(ctx, o.ID, o.Status, currentHelpers); err != nil {
		return err
	}
	o.CurrentHelpers = currentHelpers
	if target == order.StatusScheduled {
		s.emit(notify.NewEvent(notify.EventOrderScheduled, o.Number, nil))
	}
	return nil
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

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
