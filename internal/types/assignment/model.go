package assignment

import (
	"time"

	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

type Status string

const (
	StatusApplied    Status = "applied"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusApplied, StatusApproved, StatusRejected, StatusScheduled, StatusInProgress:
		return true
	default:
		return false
	}
}

// Active statuses count against the order's helper capacity.
func (s Status) Active() bool {
	return s == StatusApproved || s == StatusScheduled || s == StatusInProgress
}

type Application struct {
	ID              int64      `db:"id" json:"-"`
	OrderID         int64      `db:"order_id" json:"-"`
	HelperID        int64      `db:"helper_id" json:"helper_id"`
	Status          Status     `db:"status" json:"status"`
	Message         string     `db:"message" json:"message,omitempty"`
	ExpectedArrival *time.Time `db:"expected_arrival" json:"expected_arrival,omitempty"`
	AppliedAt       time.Time  `db:"applied_at" json:"applied_at"`
}

type AssignResult struct {
	AssignedCount int     `json:"assigned_count"`
	Helpers       []int64 `json:"helpers"`
}

type RemoveResult struct {
	RemainingHelpers int          `json:"remaining_helpers"`
	NewStatus        order.Status `json:"new_status"`
}
