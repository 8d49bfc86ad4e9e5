package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/payment"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *payment.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*payment.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

func (m *MockRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to payment.Status, transactionID string, paymentDate *time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, transactionID, paymentDate)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateRefund(ctx context.Context, r *payment.Refund) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type MockOrderReader struct {
	mock.Mock
}

func (m *MockOrderReader) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockWorkflow struct {
	mock.Mock
}

func (m *MockWorkflow) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockWorkflow) FailPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockWorkflow) MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockCarts struct {
	mock.Mock
}

func (m *MockCarts) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockStatsReader struct {
	mock.Mock
}

func (m *MockStatsReader) UserStats(ctx context.Context, userID uuid.UUID) (*payment.Stats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Stats), args.Error(1)
}

// recordingTx runs fn directly and remembers whether it failed, which is
// what a real transaction would roll back.
type recordingTx struct {
	calls      int
	rolledBack bool
}

func (tx *recordingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.calls++
	err := fn(ctx)
	if err != nil {
		tx.rolledBack = true
	}
	return err
}

type mocks struct {
	repo     *MockRepository
	orders   *MockOrderReader
	workflow *MockWorkflow
	carts    *MockCarts
	stats    *MockStatsReader
	tx       *recordingTx
}

func newService() (payment.Service, *mocks) {
	m := &mocks{
		repo:     new(MockRepository),
		orders:   new(MockOrderReader),
		workflow: new(MockWorkflow),
		carts:    new(MockCarts),
		stats:    new(MockStatsReader),
		tx:       &recordingTx{},
	}
	svc := payment.NewService(payment.Dependencies{
		Repo:     m.repo,
		Stats:    m.stats,
		Orders:   m.orders,
		Workflow: m.workflow,
		Carts:    m.carts,
		Tx:       m.tx,
	})
	return svc, m
}

func buyer() auth.Principal {
	return auth.Principal{UserID: uuid.Must(uuid.NewV4()), Role: auth.RoleBuyer}
}

func pendingOrder(owner auth.Principal, total string) *order.Order {
	return &order.Order{
		ID:            uuid.Must(uuid.NewV4()),
		UserID:        owner.UserID,
		TotalAmount:   decimal.RequireFromString(total),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
	}
}

func TestPaymentService_CreatePayment(t *testing.T) {
	owner := buyer()

	tests := []struct {
		name    string
		caller  auth.Principal
		amount  string
		status  order.OrderStatus
		exists  bool
		wantErr error
	}{
		{name: "success", caller: owner, amount: "40.00", status: order.StatusPending},
		{name: "exact_decimal_equality", caller: owner, amount: "40", status: order.StatusPending},
		{name: "not_owner", caller: buyer(), amount: "40.00", status: order.StatusPending, wantErr: payment.ErrNotPaymentOwner},
		{name: "already_paid", caller: owner, amount: "40.00", status: order.StatusPending, exists: true, wantErr: payment.ErrPaymentExists},
		{name: "amount_mismatch", caller: owner, amount: "39.99", status: order.StatusPending, wantErr: payment.ErrAmountMismatch},
		{name: "order_cancelled", caller: owner, amount: "40.00", status: order.StatusCancelled, wantErr: payment.ErrOrderNotPayable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService()
			o := pendingOrder(owner, "40.00")
			o.Status = tt.status

			m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
			m.repo.On("ExistsForOrder", mock.Anything, o.ID).Return(tt.exists, nil).Maybe()
			if tt.wantErr == nil {
				m.repo.On("Create", mock.Anything, mock.AnythingOfType("*payment.Payment")).Return(nil).Once()
			}

			p, err := svc.CreatePayment(context.Background(), tt.caller, payment.CreatePaymentInput{
				OrderID:       o.ID,
				Amount:        decimal.RequireFromString(tt.amount),
				Method:        "card",
				TransactionID: "tx-1",
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, p)
				m.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			require.Equal(t, payment.StatusPending, p.Status)
			require.Equal(t, o.ID, p.OrderID)
			require.Equal(t, "tx-1", p.TransactionID)
			m.repo.AssertExpectations(t)
		})
	}
}

func TestPaymentService_CreatePayment_OrderNotFound(t *testing.T) {
	svc, m := newService()
	orderID := uuid.Must(uuid.NewV4())
	m.orders.On("GetByID", mock.Anything, orderID).Return(nil, order.ErrOrderNotFound).Once()

	_, err := svc.CreatePayment(context.Background(), buyer(), payment.CreatePaymentInput{OrderID: orderID, Amount: decimal.NewFromInt(1)})

	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPaymentService_CreatePayment_RejectsNonPositiveAmount(t *testing.T) {
	svc, m := newService()

	_, err := svc.CreatePayment(context.Background(), buyer(), payment.CreatePaymentInput{OrderID: uuid.Must(uuid.NewV4()), Amount: decimal.Zero})

	require.ErrorIs(t, err, payment.ErrInvalidAmount)
	m.orders.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestPaymentService_UpdatePaymentStatus_SuccessConfirmsOrderAndClearsCart(t *testing.T) {
	svc, m := newService()
	owner := buyer()
	o := pendingOrder(owner, "40.00")
	p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Amount: o.TotalAmount, Status: payment.StatusPending}

	m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
	m.repo.On("CompareAndSetStatus", mock.Anything, p.ID, payment.StatusPending, payment.StatusSuccess, "gw-42", mock.AnythingOfType("*time.Time")).
		Return(true, nil).Once()
	m.workflow.On("ConfirmPayment", mock.Anything, o.ID).Return(o, nil).Once()
	m.carts.On("DeleteByUserID", mock.Anything, owner.UserID).Return(nil).Once()

	got, err := svc.UpdatePaymentStatus(context.Background(), owner, p.ID, payment.StatusSuccess, " gw-42 ")

	require.NoError(t, err)
	require.Equal(t, payment.StatusSuccess, got.Status)
	require.Equal(t, "gw-42", got.TransactionID)
	require.NotNil(t, got.PaymentDate)
	require.Equal(t, payment.StatusPending, p.Status, "loaded payment must not be mutated")
	require.Equal(t, 1, m.tx.calls)
	m.workflow.AssertExpectations(t)
	m.carts.AssertExpectations(t)
}

func TestPaymentService_UpdatePaymentStatus_FailureCancelsOrder(t *testing.T) {
	svc, m := newService()
	owner := buyer()
	o := pendingOrder(owner, "40.00")
	p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Amount: o.TotalAmount, Status: payment.StatusPending}

	m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
	m.repo.On("CompareAndSetStatus", mock.Anything, p.ID, payment.StatusPending, payment.StatusFailed, "", (*time.Time)(nil)).
		Return(true, nil).Once()
	m.workflow.On("FailPayment", mock.Anything, o.ID).Return(o, nil).Once()

	got, err := svc.UpdatePaymentStatus(context.Background(), owner, p.ID, payment.StatusFailed, "")

	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, got.Status)
	m.workflow.AssertExpectations(t)
	m.carts.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)
}

func TestPaymentService_UpdatePaymentStatus_OrderRejectsOutcome(t *testing.T) {
	svc, m := newService()
	owner := buyer()
	o := pendingOrder(owner, "40.00")
	o.Status = order.StatusCancelled
	p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Status: payment.StatusPending}

	m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
	m.repo.On("CompareAndSetStatus", mock.Anything, p.ID, payment.StatusPending, payment.StatusSuccess, "", mock.Anything).
		Return(true, nil).Once()
	m.workflow.On("ConfirmPayment", mock.Anything, o.ID).Return(nil, order.ErrInvalidTransition).Once()

	_, err := svc.UpdatePaymentStatus(context.Background(), owner, p.ID, payment.StatusSuccess, "")

	require.ErrorIs(t, err, apperror.ErrInvalidState)
	require.True(t, m.tx.rolledBack)
	m.carts.AssertNotCalled(t, "DeleteByUserID", mock.Anything, mock.Anything)
}

func TestPaymentService_UpdatePaymentStatus_Transitions(t *testing.T) {
	owner := buyer()

	tests := []struct {
		name    string
		current payment.Status
		target  payment.Status
		wantErr error
	}{
		{"same_status_is_noop", payment.StatusSuccess, payment.StatusSuccess, nil},
		{"failed_is_final", payment.StatusFailed, payment.StatusSuccess, payment.ErrInvalidPaymentTransition},
		{"no_way_back_to_pending", payment.StatusSuccess, payment.StatusPending, payment.ErrInvalidPaymentTransition},
		{"unknown_status", payment.StatusPending, payment.Status("refunded"), payment.ErrInvalidPaymentStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService()
			o := pendingOrder(owner, "10.00")
			p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Status: tt.current}
			m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Maybe()
			m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Maybe()

			got, err := svc.UpdatePaymentStatus(context.Background(), owner, p.ID, tt.target, "")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.current, got.Status)
			}
			require.Zero(t, m.tx.calls)
		})
	}
}

func TestPaymentService_UpdatePaymentStatus_LostRace(t *testing.T) {
	svc, m := newService()
	owner := buyer()
	o := pendingOrder(owner, "10.00")
	p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Status: payment.StatusPending}
	settled := &payment.Payment{ID: p.ID, OrderID: o.ID, Status: payment.StatusFailed}

	m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
	m.repo.On("CompareAndSetStatus", mock.Anything, p.ID, payment.StatusPending, payment.StatusFailed, "", mock.Anything).
		Return(false, nil).Once()
	m.repo.On("GetByID", mock.Anything, p.ID).Return(settled, nil).Once()

	got, err := svc.UpdatePaymentStatus(context.Background(), owner, p.ID, payment.StatusFailed, "")

	require.NoError(t, err)
	require.Same(t, settled, got)
	m.workflow.AssertNotCalled(t, "FailPayment", mock.Anything, mock.Anything)
}

func TestPaymentService_UpdatePaymentStatus_Forbidden(t *testing.T) {
	svc, m := newService()
	o := pendingOrder(buyer(), "10.00")
	p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Status: payment.StatusPending}

	m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

	_, err := svc.UpdatePaymentStatus(context.Background(), buyer(), p.ID, payment.StatusSuccess, "")

	require.ErrorIs(t, err, payment.ErrNotPaymentOwner)
	require.Zero(t, m.tx.calls)
}

func TestPaymentService_VerifyPayment(t *testing.T) {
	owner := buyer()

	t.Run("mismatch", func(t *testing.T) {
		svc, m := newService()
		o := pendingOrder(owner, "10.00")
		p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, TransactionID: "tx-1", Status: payment.StatusPending}
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

		_, err := svc.VerifyPayment(context.Background(), owner, p.ID, "tx-2")

		require.ErrorIs(t, err, payment.ErrVerificationFailed)
		require.Zero(t, m.tx.calls)
	})

	t.Run("match", func(t *testing.T) {
		svc, m := newService()
		o := pendingOrder(owner, "10.00")
		p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, TransactionID: "tx-1", Status: payment.StatusPending}
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
		m.repo.On("CompareAndSetStatus", mock.Anything, p.ID, payment.StatusPending, payment.StatusSuccess, "", mock.Anything).Return(true, nil).Once()
		m.workflow.On("ConfirmPayment", mock.Anything, o.ID).Return(o, nil).Once()
		m.carts.On("DeleteByUserID", mock.Anything, owner.UserID).Return(nil).Once()

		got, err := svc.VerifyPayment(context.Background(), owner, p.ID, "tx-1")

		require.NoError(t, err)
		require.Equal(t, payment.StatusSuccess, got.Status)
		require.Equal(t, "tx-1", got.TransactionID)
	})
}

func TestPaymentService_ProcessRefund(t *testing.T) {
	owner := buyer()

	newFixture := func(status payment.Status) (*order.Order, *payment.Payment) {
		o := pendingOrder(owner, "50.00")
		o.Status = order.StatusDelivered
		p := &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Amount: o.TotalAmount, Status: status}
		return o, p
	}

	t.Run("full_amount_when_zero", func(t *testing.T) {
		svc, m := newService()
		o, p := newFixture(payment.StatusSuccess)
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
		m.repo.On("CreateRefund", mock.Anything, mock.AnythingOfType("*payment.Refund")).Return(nil).Once()
		m.workflow.On("MarkRefundRequested", mock.Anything, o.ID).Return(o, nil).Once()

		refund, err := svc.ProcessRefund(context.Background(), owner, p.ID, payment.RefundInput{Reason: " broken "})

		require.NoError(t, err)
		require.True(t, refund.Amount.Equal(decimal.RequireFromString("50.00")))
		require.Equal(t, payment.RefundPending, refund.Status)
		require.Equal(t, "broken", refund.Reason)
		m.workflow.AssertExpectations(t)
	})

	t.Run("exceeds_amount", func(t *testing.T) {
		svc, m := newService()
		o, p := newFixture(payment.StatusSuccess)
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

		_, err := svc.ProcessRefund(context.Background(), owner, p.ID, payment.RefundInput{Amount: decimal.RequireFromString("50.01")})

		require.ErrorIs(t, err, payment.ErrRefundExceedsAmount)
		m.repo.AssertNotCalled(t, "CreateRefund", mock.Anything, mock.Anything)
	})

	t.Run("payment_not_successful", func(t *testing.T) {
		svc, m := newService()
		o, p := newFixture(payment.StatusPending)
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

		_, err := svc.ProcessRefund(context.Background(), owner, p.ID, payment.RefundInput{})

		require.ErrorIs(t, err, payment.ErrPaymentNotSuccessful)
	})

	t.Run("admin_is_not_owner", func(t *testing.T) {
		svc, m := newService()
		o, p := newFixture(payment.StatusSuccess)
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()

		admin := auth.Principal{UserID: uuid.Must(uuid.NewV4()), Role: auth.RoleAdmin}
		_, err := svc.ProcessRefund(context.Background(), admin, p.ID, payment.RefundInput{})

		require.ErrorIs(t, err, payment.ErrNotPaymentOwner)
	})

	t.Run("duplicate_refund", func(t *testing.T) {
		svc, m := newService()
		o, p := newFixture(payment.StatusSuccess)
		m.repo.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		m.orders.On("GetByID", mock.Anything, o.ID).Return(o, nil).Once()
		m.repo.On("CreateRefund", mock.Anything, mock.Anything).Return(payment.ErrRefundExists).Once()

		_, err := svc.ProcessRefund(context.Background(), owner, p.ID, payment.RefundInput{})

		require.ErrorIs(t, err, apperror.ErrConflict)
		m.workflow.AssertNotCalled(t, "MarkRefundRequested", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_GetStats_InfrastructureError(t *testing.T) {
	svc, m := newService()
	user := buyer()
	dbErr := errors.New("timeout")
	m.stats.On("UserStats", mock.Anything, user.UserID).Return(nil, dbErr).Once()

	_, err := svc.GetStats(context.Background(), user)

	require.ErrorIs(t, err, dbErr)
	require.Nil(t, apperror.Kind(err))
}
