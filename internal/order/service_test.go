package order

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
	"github.com/jshmir7070-sys/helpme-core/internal/pricing"
	"github.com/jshmir7070-sys/helpme-core/internal/types/order"
	"github.com/jshmir7070-sys/helpme-core/internal/types/policy"
	"github.com/jshmir7070-sys/helpme-core/internal/types/user"
)

type mockRepo struct {
	mu      sync.Mutex
	nextID  int64
	byNum   map[string]*order.Order
	active  map[int64]int
	listDue []order.Order
}

func newMockRepo() *mockRepo {
	return &mockRepo{byNum: map[string]*order.Order{}, active: map[int64]int{}}
}

func (m *mockRepo) put(o *order.Order) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.byNum[o.Number] = &cp
	return o
}

func (m *mockRepo) CreateOrder(ctx context.Context, o *order.Order) error {
	m.put(o)
	return nil
}

func (m *mockRepo) FindOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byNum[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) ListOrdersByRequester(ctx context.Context, requesterID int64) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byNum {
		if o.RequesterID == requesterID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockRepo) ListOrdersByStatus(ctx context.Context, statuses ...order.Status) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byNum {
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, *o)
			}
		}
	}
	return out, nil
}

func (m *mockRepo) ListOrders(ctx context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.byNum {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockRepo) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNum {
		if o.ID == id {
			o.Status = status
		}
	}
	return nil
}

func (m *mockRepo) ListScheduledDue(ctx context.Context, now time.Time) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDue, nil
}

func (m *mockRepo) CountActiveAssignments(ctx context.Context, orderID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[orderID], nil
}

func stubPolicies() *pricing.Service {
	return pricing.NewService(&stubPolicyRepo{})
}

type stubPolicyRepo struct{}

func (stubPolicyRepo) FindPricingPolicy(ctx context.Context, courier string, category order.Category) (*policy.PricingPolicy, error) {
	return &policy.PricingPolicy{
		Courier: courier, Category: category,
		BasePrice: 1000, MinTotal: 0, UrgentSurchargeRate: 20, CommissionRate: 10,
	}, nil
}

func (stubPolicyRepo) ListPricingPolicies(ctx context.Context) ([]policy.PricingPolicy, error) {
	return nil, nil
}

func (stubPolicyRepo) FindRefundPolicy(ctx context.Context, stage policy.RefundStage) (*policy.RefundPolicy, error) {
	if stage == policy.StageBeforeMatching {
		return &policy.RefundPolicy{Stage: stage, RefundRate: 100}, nil
	}
	return &policy.RefundPolicy{Stage: stage, RefundRate: 50}, nil
}

func (stubPolicyRepo) UpdateRefundPolicy(ctx context.Context, p *policy.RefundPolicy) error {
	return nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, stubPolicies(), lock.NewKeyed(), time.Second, 0.10, notify.Nop{})
}

func TestCreateOrderStandardFlow(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	o, err := svc.CreateOrder(context.Background(), 7, CreateOrderInput{
		Category: order.CategoryParcel,
		Courier:  "cdek",
		Quantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingDeposit, o.Status)
	assert.Equal(t, int64(10000), o.TotalAmount)
	assert.Equal(t, int64(1000), o.DepositAmount)
	assert.Equal(t, order.DefaultMaxHelpers, o.MaxHelpers)
	assert.Equal(t, order.ModeOpen, o.Mode())
	assert.NotEmpty(t, o.Number)
}

func TestCreateOrderEnterpriseStartsOpen(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	enterprise := int64(42)
	o, err := svc.CreateOrder(context.Background(), 7, CreateOrderInput{
		Category:     order.CategoryParcel,
		Courier:      "cdek",
		Quantity:     10,
		EnterpriseID: &enterprise,
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, o.Status)
	assert.Equal(t, order.ModeDirect, o.Mode())
	// deposit is still computed and stored for enterprise invoicing
	assert.Equal(t, int64(1000), o.DepositAmount)
}

func TestCreateOrderValidation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, 1, CreateOrderInput{Category: "warm", Courier: "c", Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateOrder(ctx, 1, CreateOrderInput{Category: order.CategoryParcel, Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateOrder(ctx, 1, CreateOrderInput{Category: order.CategoryParcel, Courier: "c", Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateOrder(ctx, 1, CreateOrderInput{Category: order.CategoryCold, Courier: "c"})
	assert.ErrorIs(t, err, ErrValidation)

	start := time.Now()
	end := start.Add(-time.Hour)
	_, err = svc.CreateOrder(ctx, 1, CreateOrderInput{
		Category: order.CategoryParcel, Courier: "c", Quantity: 1,
		ScheduledStart: &start, ScheduledEnd: &end,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApproveDeposit(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.put(&order.Order{Number: "1111", Status: order.StatusAwaitingDeposit})

	o, err := svc.ApproveDeposit(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, order.StatusOpen, o.Status)

	// second approval hits the transition table
	_, err = svc.ApproveDeposit(context.Background(), "1111")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectDepositOnlyBeforeApproval(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.put(&order.Order{Number: "1111", Status: order.StatusAwaitingDeposit})
	repo.put(&order.Order{Number: "2222", Status: order.StatusOpen})

	o, err := svc.RejectDeposit(context.Background(), "1111")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)

	_, err = svc.RejectDeposit(context.Background(), "2222")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRefundBeforeMatching(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	o := repo.put(&order.Order{Number: "1111", RequesterID: 5, Status: order.StatusOpen, DepositAmount: 15000})
	repo.active[o.ID] = 0

	res, err := svc.Cancel(context.Background(), "1111", &user.User{ID: 5, Role: user.RoleRequester}, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
	assert.Equal(t, int64(15000), res.RefundAmount)
}

func TestCancelRefundAfterMatching(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	o := repo.put(&order.Order{Number: "1111", RequesterID: 5, Status: order.StatusMatching, DepositAmount: 15000})
	repo.active[o.ID] = 2

	res, err := svc.Cancel(context.Background(), "1111", &user.User{ID: 5, Role: user.RoleRequester}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7500), res.RefundAmount)
}

func TestCancelAwaitingDepositNoRefund(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.put(&order.Order{Number: "1111", RequesterID: 5, Status: order.StatusAwaitingDeposit, DepositAmount: 15000})

	res, err := svc.Cancel(context.Background(), "1111", &user.User{ID: 5, Role: user.RoleRequester}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RefundAmount)
}

func TestCancelRejectedOnceScheduled(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	for _, st := range []order.Status{
		order.StatusScheduled, order.StatusInProgress, order.StatusClosingSubmitted,
		order.StatusFinalConfirmed, order.StatusBalancePaid, order.StatusSettlementPaid,
		order.StatusClosed,
	} {
		repo.put(&order.Order{Number: "n-" + string(st), RequesterID: 5, Status: st})
		_, err := svc.Cancel(context.Background(), "n-"+string(st), &user.User{ID: 5, Role: user.RoleRequester}, "")
		assert.ErrorIs(t, err, ErrInvalidTransition, "status %s", st)
	}
}

func TestCancelForeignOrderForbidden(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.put(&order.Order{Number: "1111", RequesterID: 5, Status: order.StatusOpen})

	_, err := svc.Cancel(context.Background(), "1111", &user.User{ID: 6, Role: user.RoleRequester}, "")
	assert.ErrorIs(t, err, ErrForbidden)

	// admins cancel anything cancellable
	res, err := svc.Cancel(context.Background(), "1111", &user.User{ID: 6, Role: user.RoleAdmin}, "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
}

func TestCancelNotFound(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	_, err := svc.Cancel(context.Background(), "9999", &user.User{ID: 1, Role: user.RoleAdmin}, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersRoleScoped(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	repo.put(&order.Order{Number: "1", RequesterID: 5, Status: order.StatusOpen})
	repo.put(&order.Order{Number: "2", RequesterID: 6, Status: order.StatusScheduled})
	repo.put(&order.Order{Number: "3", RequesterID: 6, Status: order.StatusMatching})

	mine, err := svc.ListOrders(context.Background(), &user.User{ID: 5, Role: user.RoleRequester})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	open, err := svc.ListOrders(context.Background(), &user.User{ID: 9, Role: user.RoleHelper})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	all, err := svc.ListOrders(context.Background(), &user.User{ID: 1, Role: user.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
