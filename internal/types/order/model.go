package order

import "time"

type Status string

const (
	StatusAwaitingDeposit  Status = "AWAITING_DEPOSIT"
	StatusOpen             Status = "OPEN"
	StatusMatching         Status = "MATCHING"
	StatusScheduled        Status = "SCHEDULED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusClosingSubmitted Status = "CLOSING_SUBMITTED"
	StatusFinalConfirmed   Status = "FINAL_AMOUNT_CONFIRMED"
	StatusBalancePaid      Status = "BALANCE_PAID"
	StatusSettlementPaid   Status = "SETTLEMENT_PAID"
	StatusClosed           Status = "CLOSED"
	StatusCancelled        Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusAwaitingDeposit, StatusOpen, StatusMatching, StatusScheduled,
		StatusInProgress, StatusClosingSubmitted, StatusFinalConfirmed,
		StatusBalancePaid, StatusSettlementPaid, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses are immutable: no transition leaves them.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

type Category string

const (
	CategoryParcel Category = "parcel"
	CategoryOther  Category = "other"
	CategoryCold   Category = "cold"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryParcel, CategoryOther, CategoryCold:
		return true
	default:
		return false
	}
}

// Freight reports whether the category is priced per shipment rather than
// per box. Freight orders carry quantity fixed at 1.
func (c Category) Freight() bool { return c == CategoryCold }

type AssignmentMode string

const (
	ModeOpen   AssignmentMode = "open"
	ModeDirect AssignmentMode = "direct"
)

const DefaultMaxHelpers = 3

type Order struct {
	ID             int64      `db:"id" json:"-"`
	Number         string     `db:"number" json:"number"`
	RequesterID    int64      `db:"requester_id" json:"-"`
	EnterpriseID   *int64     `db:"enterprise_id" json:"enterprise_id,omitempty"`
	Category       Category   `db:"category" json:"category"`
	Courier        string     `db:"courier" json:"courier"`
	Urgent         bool       `db:"urgent" json:"urgent"`
	Quantity       int64      `db:"quantity" json:"quantity"`
	UnitPrice      int64      `db:"unit_price" json:"unit_price"`
	TotalAmount    int64      `db:"total_amount" json:"total_amount"`
	DepositAmount  int64      `db:"deposit_amount" json:"deposit_amount"`
	FinalAmount    *int64     `db:"final_amount" json:"final_amount,omitempty"`
	CommissionRate int64      `db:"commission_rate" json:"-"`
	MinApplied     bool       `db:"min_applied" json:"min_applied"`
	MaxHelpers     int        `db:"max_helpers" json:"max_helpers"`
	CurrentHelpers int        `db:"current_helpers" json:"current_helpers"`
	Status         Status     `db:"status" json:"status"`
	ScheduledStart *time.Time `db:"scheduled_start" json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `db:"scheduled_end" json:"scheduled_end,omitempty"`
	BalanceDueAt   time.Time  `db:"balance_due_at" json:"balance_due_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Mode is derived once from the enterprise link and consumed by the
// assignment engine; call sites never re-branch on EnterpriseID.
func (o *Order) Mode() AssignmentMode {
	if o.EnterpriseID != nil {
		return ModeDirect
	}
	return ModeOpen
}

// BalanceAmount is the remainder due after the deposit. Once a closing
// report has been approved the locked final amount takes over.
func (o *Order) BalanceAmount() int64 {
	total := o.TotalAmount
	if o.FinalAmount != nil {
		total = *o.FinalAmount
	}
	return total - o.DepositAmount
}
