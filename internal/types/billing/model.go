package billing

import "time"

type ReportStatus string

const (
	ReportSubmitted ReportStatus = "submitted"
	ReportApproved  ReportStatus = "approved"
)

// ExtraCost is a free-form chargeable line item reported at closing.
type ExtraCost struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

func (c ExtraCost) Amount() int64 { return c.UnitPrice * c.Quantity }

type ClosingReport struct {
	ID          int64        `db:"id" json:"-"`
	OrderID     int64        `db:"order_id" json:"-"`
	HelperID    int64        `db:"helper_id" json:"helper_id"`
	Delivered   int64        `db:"delivered" json:"delivered"`
	Returned    int64        `db:"returned" json:"returned"`
	Misc        int64        `db:"misc" json:"misc"`
	ExtraCosts  []ExtraCost  `db:"extra_costs" json:"extra_costs,omitempty"`
	Attachments []string     `db:"attachments" json:"attachments,omitempty"`
	Status      ReportStatus `db:"status" json:"status"`
	SubmittedAt time.Time    `db:"submitted_at" json:"submitted_at"`
}

// Payment is one confirmed inbound payment. The (order, provider,
// provider tx id) triple is unique so a provider retrying its callback
// cannot record the same payment twice; a tx id reused for a different
// order still records a new payment.
type Payment struct {
	ID           int64     `db:"id" json:"-"`
	OrderID      int64     `db:"order_id" json:"-"`
	Amount       int64     `db:"amount" json:"amount"`
	Provider     string    `db:"provider" json:"provider"`
	ProviderTxID string    `db:"provider_tx_id" json:"provider_tx_id"`
	ReceivedAt   time.Time `db:"received_at" json:"received_at"`
}

// Settlement is one helper payout produced by a settlement run.
type Settlement struct {
	ID        int64     `db:"id" json:"-"`
	OrderID   int64     `db:"order_id" json:"-"`
	HelperID  int64     `db:"helper_id" json:"helper_id"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
