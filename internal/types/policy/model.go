package policy

import "github.com/jshmir7070-sys/helpme-core/internal/types/order"

type RefundStage string

const (
	StageBeforeMatching RefundStage = "before_matching"
	StageAfterMatching  RefundStage = "after_matching"
)

func (s RefundStage) IsValid() bool {
	return s == StageBeforeMatching || s == StageAfterMatching
}

// RefundPolicy holds the refund percentage for one matching stage.
// Exactly two records exist; administrators edit the rates independently.
type RefundPolicy struct {
	Stage       RefundStage `db:"stage" json:"stage"`
	RefundRate  int         `db:"refund_rate" json:"refund_rate"`
	Description string      `db:"description" json:"description"`
}

// PricingPolicy is a per-courier/category price book entry. It is read at
// order creation and snapshotted onto the order; later edits never change
// amounts already stored.
type PricingPolicy struct {
	ID                  int64          `db:"id" json:"-"`
	Courier             string         `db:"courier" json:"courier"`
	Category            order.Category `db:"category" json:"category"`
	BasePrice           int64          `db:"base_price" json:"base_price"`
	MinTotal            int64          `db:"min_total" json:"min_total"`
	UrgentSurchargeRate int64          `db:"urgent_rate" json:"urgent_surcharge_rate"`
	CommissionRate      int64          `db:"commission_rate" json:"commission_rate"`
}
