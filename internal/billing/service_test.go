package billing

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jshmir7070-sys/helpme-core/internal/lock"
	"github.com/jshmir7070-sys/helpme-core/internal/notify"
	orderpkg "github.com/jshmir7070-sys/helpme-core/internal/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/assignment"
	"github.com/jshmir7070-sys/helpme-core/internal/types/billing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
)

type paymentKey struct {
	orderID  int64
	provider string
	txID     string
}

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	orders      map[string]*order.Order
	apps        []*assignment.Application
	reports     map[int64]*billing.ClosingReport
	payments    map[paymentKey]*billing.Payment
	settlements []billing.Settlement
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]*order.Order{},
		reports:  map[int64]*billing.ClosingReport{},
		payments: map[paymentKey]*billing.Payment{},
	}
}

func (m *memStore) putOrder(o *order.Order) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.orders[o.Number] = &cp
	return o
}

func (m *memStore) putApp(a *assignment.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.apps = append(m.apps, &cp)
}

func (m *memStore) CreateClosingReport(ctx context.Context, r *billing.ClosingReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) FindClosingReport(ctx context.Context, orderID int64) (*billing.ClosingReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *billing.ClosingReport
	for _, r := range m.reports {
		if r.OrderID != orderID {
			continue
		}
		if latest == nil || r.SubmittedAt.After(latest.SubmittedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) UpdateClosingReportStatus(ctx context.Context, id int64, status billing.ReportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	return nil
}

func (m *memStore) CreatePayment(ctx context.Context, p *billing.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := paymentKey{orderID: p.OrderID, provider: p.Provider, txID: p.ProviderTxID}
	if _, ok := m.payments[key]; ok {
		return false, nil
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.payments[key] = &cp
	return true, nil
}

func (m *memStore) CreateSettlements(ctx context.Context, settlements []billing.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements = append(m.settlements, settlements...)
	return nil
}

func (m *memStore) FindOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			o.Status = status
		}
	}
	return nil
}

func (m *memStore) SetFinalAmount(ctx context.Context, id int64, final int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			f := final
			o.FinalAmount = &f
		}
	}
	return nil
}

func (m *memStore) FindApplication(ctx context.Context, orderID, helperID int64) (*assignment.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.OrderID == orderID && a.HelperID == helperID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) ListActiveAssignments(ctx context.Context, orderID int64) ([]assignment.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []assignment.Application
	for _, a := range m.apps {
		if a.OrderID == orderID && a.Status.Active() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func newTestService(store *memStore) *Service {
	return NewService(store, store, store, lock.NewKeyed(), time.Second, notify.Nop{})
}

func TestSubmitClosing(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	o := store.putOrder(&order.Order{Number: "1111", Status: order.StatusInProgress, UnitPrice: 1500})
	store.putApp(&assignment.Application{OrderID: o.ID, HelperID: 9, Status: assignment.StatusInProgress})

	report, err := svc.SubmitClosing(context.Background(), "1111", 9, ClosingInput{
		Delivered: 95, Returned: 4, Misc: 1,
		ExtraCosts: []billing.ExtraCost{{Name: "parking", UnitPrice: 500, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, billing.ReportSubmitted, report.Status)

	got, err := store.FindOrderByNumber(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, order.StatusClosingSubmitted, got.Status)
}

func TestSubmitClosingRequiresAssignment(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{Number: "1111", Status: order.StatusInProgress})

	_, err := svc.SubmitClosing(context.Background(), "1111", 9, ClosingInput{Delivered: 1})
	assert.ErrorIs(t, err, ErrNotAssigned)
}

func TestSubmitClosingValidation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.SubmitClosing(context.Background(), "1111", 9, ClosingInput{Delivered: -1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SubmitClosing(context.Background(), "1111", 9, ClosingInput{
		ExtraCosts: []billing.ExtraCost{{Name: "", UnitPrice: 100, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitClosingWrongState(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	o := store.putOrder(&order.Order{Number: "1111", Status: order.StatusMatching})
	store.putApp(&assignment.Application{OrderID: o.ID, HelperID: 9, Status: assignment.StatusApproved})

	_, err := svc.SubmitClosing(context.Background(), "1111", 9, ClosingInput{Delivered: 1})
	assert.ErrorIs(t, err, orderpkg.ErrInvalidTransition)
}

func TestApproveClosingRecomputesFinal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	o := store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusClosingSubmitted,
		UnitPrice: 1500, Quantity: 100, TotalAmount: 150000, DepositAmount: 15000,
	})
	store.mu.Lock()
	store.nextID++
	store.reports[store.nextID] = &billing.ClosingReport{
		ID: store.nextID, OrderID: o.ID, HelperID: 9,
		Delivered: 95,
		ExtraCosts: []billing.ExtraCost{
			{Name: "parking", UnitPrice: 500, Quantity: 2},
		},
		Status:      billing.ReportSubmitted,
		SubmittedAt: time.Now(),
	}
	store.mu.Unlock()

	got, err := svc.ApproveClosing(context.Background(), "1111")
	require.NoError(t, err)
	require.NotNil(t, got.FinalAmount)
	// 95 * 1500 + 1000
	assert.Equal(t, int64(143500), *got.FinalAmount)
	assert.Equal(t, order.StatusFinalConfirmed, got.Status)
	assert.Equal(t, int64(128500), got.BalanceAmount())
}

func TestApproveClosingWithoutReport(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{Number: "1111", Status: order.StatusClosingSubmitted})

	_, err := svc.ApproveClosing(context.Background(), "1111")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleWebhookConfirmsBalance(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	final := int64(143500)
	store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 150000, DepositAmount: 15000, FinalAmount: &final,
	})

	got, err := svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "1111", Amount: 128500, Provider: "psp", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)
}

func TestHandleWebhookDuplicateSingleTransition(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 100000, DepositAmount: 10000,
	})
	payload := WebhookPayload{
		OrderNumber: "1111", Amount: 90000, Provider: "psp", TransactionID: "tx-1",
	}

	got, err := svc.HandleWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	// redelivery: no error, no second transition, no second payment row
	got, err = svc.HandleWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	store.mu.Lock()
	assert.Len(t, store.payments, 1)
	store.mu.Unlock()
}

func TestHandleWebhookBeforeApprovalRetriedAfter(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	o := store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusClosingSubmitted,
		UnitPrice: 1000, Quantity: 100, TotalAmount: 100000, DepositAmount: 10000,
	})
	store.mu.Lock()
	store.nextID++
	store.reports[store.nextID] = &billing.ClosingReport{
		ID: store.nextID, OrderID: o.ID, HelperID: 9,
		Delivered: 100, Status: billing.ReportSubmitted, SubmittedAt: time.Now(),
	}
	store.mu.Unlock()
	payload := WebhookPayload{
		OrderNumber: "1111", Amount: 90000, Provider: "psp", TransactionID: "tx-1",
	}

	// the provider delivers before the closing is approved: the call
	// fails and must leave nothing behind, so the retry can succeed
	_, err := svc.HandleWebhook(context.Background(), payload)
	assert.ErrorIs(t, err, orderpkg.ErrInvalidTransition)
	store.mu.Lock()
	assert.Len(t, store.payments, 0)
	store.mu.Unlock()

	_, err = svc.ApproveClosing(context.Background(), "1111")
	require.NoError(t, err)

	got, err := svc.HandleWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	store.mu.Lock()
	assert.Len(t, store.payments, 1)
	store.mu.Unlock()
}

func TestHandleWebhookRetryCompletesInterruptedConfirm(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	o := store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 100000, DepositAmount: 10000,
	})
	// the first delivery recorded the payment but died before the
	// status commit
	_, err := store.CreatePayment(context.Background(), &billing.Payment{
		OrderID: o.ID, Amount: 90000, Provider: "psp", ProviderTxID: "tx-1",
		ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	got, err := svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "1111", Amount: 90000, Provider: "psp", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	store.mu.Lock()
	assert.Len(t, store.payments, 1)
	store.mu.Unlock()
}

func TestHandleWebhookSameTxIDAcrossOrders(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 100000, DepositAmount: 10000,
	})
	store.putOrder(&order.Order{
		Number: "2222", Status: order.StatusFinalConfirmed,
		TotalAmount: 50000, DepositAmount: 5000,
	})

	// a provider reusing a tx id for a different order is a new payment,
	// not a swallowed duplicate
	got, err := svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "1111", Amount: 90000, Provider: "psp", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	got, err = svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "2222", Amount: 45000, Provider: "psp", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	store.mu.Lock()
	assert.Len(t, store.payments, 2)
	store.mu.Unlock()
}

func TestHandleWebhookAmountMismatch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 100000, DepositAmount: 10000,
	})

	_, err := svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "1111", Amount: 1, Provider: "psp", TransactionID: "tx-1",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHandleWebhookValidation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.HandleWebhook(context.Background(), WebhookPayload{Amount: 10})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.HandleWebhook(context.Background(), WebhookPayload{
		OrderNumber: "1111", Provider: "psp", TransactionID: "tx", Amount: 0,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirmBalancePaidManual(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusFinalConfirmed,
		TotalAmount: 100000, DepositAmount: 10000,
	})

	got, err := svc.ConfirmBalancePaid(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, order.StatusBalancePaid, got.Status)

	store.mu.Lock()
	require.Len(t, store.payments, 1)
	for _, p := range store.payments {
		assert.Equal(t, int64(90000), p.Amount)
		assert.Equal(t, "manual", p.Provider)
	}
	store.mu.Unlock()
}

func TestSettleSplitsCommissionedTotal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	final := int64(143500)
	o := store.putOrder(&order.Order{
		Number: "1111", Status: order.StatusBalancePaid,
		TotalAmount: 150000, FinalAmount: &final, CommissionRate: 10,
	})
	store.putApp(&assignment.Application{OrderID: o.ID, HelperID: 1, Status: assignment.StatusInProgress})
	store.putApp(&assignment.Application{OrderID: o.ID, HelperID: 2, Status: assignment.StatusInProgress})

	got, err := svc.Settle(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, order.StatusClosed, got.Status)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.settlements, 2)
	// pool = 143500 - 14350 = 129150, split two ways
	for _, s := range store.settlements {
		assert.Equal(t, int64(64575), s.Amount)
	}
}

func TestSettleWithoutHelpers(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{Number: "1111", Status: order.StatusBalancePaid})

	_, err := svc.Settle(context.Background(), "1111")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSettleWrongState(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.putOrder(&order.Order{Number: "1111", Status: order.StatusInProgress})

	_, err := svc.Settle(context.Background(), "1111")
	assert.ErrorIs(t, err, orderpkg.ErrInvalidTransition)
}
