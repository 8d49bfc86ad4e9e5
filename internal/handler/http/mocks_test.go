package http_test

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/payment"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) CreateProduct(ctx context.Context, p auth.Principal, input catalog.CreateProductInput) (*catalog.Product, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalogService) Restock(ctx context.Context, p auth.Principal, productID uuid.UUID, qty int) (*catalog.Product, error) {
	args := m.Called(ctx, p, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) cartResult(args mock.Arguments) (*cart.Cart, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) GetCart(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, userID))
}

func (m *MockCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, userID, productID, qty))
}

func (m *MockCartService) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, userID, productID, qty))
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*cart.Cart, error) {
	return m.cartResult(m.Called(ctx, userID, productID))
}

func (m *MockCartService) ClearCart(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCartService) AddItems(ctx context.Context, userID uuid.UUID, lines []cart.Line) (*cart.Cart, []uuid.UUID, error) {
	args := m.Called(ctx, userID, lines)
	var c *cart.Cart
	if args.Get(0) != nil {
		c = args.Get(0).(*cart.Cart)
	}
	var skipped []uuid.UUID
	if args.Get(1) != nil {
		skipped = args.Get(1).([]uuid.UUID)
	}
	return c, skipped, args.Error(2)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) orderResult(args mock.Arguments) (*order.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, p auth.Principal, input order.CreateOrderInput) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, p, input))
}

func (m *MockOrderService) GetOrder(ctx context.Context, p auth.Principal, id uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, p, id))
}

func (m *MockOrderService) GetOrderByNumber(ctx context.Context, p auth.Principal, number string) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, p, number))
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status order.OrderStatus) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, p, id, status))
}

func (m *MockOrderService) AdvanceOrderStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status order.OrderStatus) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, p, id, status))
}

func (m *MockOrderService) Reorder(ctx context.Context, p auth.Principal, id uuid.UUID) (*cart.Cart, []uuid.UUID, error) {
	args := m.Called(ctx, p, id)
	var c *cart.Cart
	if args.Get(0) != nil {
		c = args.Get(0).(*cart.Cart)
	}
	var skipped []uuid.UUID
	if args.Get(1) != nil {
		skipped = args.Get(1).([]uuid.UUID)
	}
	return c, skipped, args.Error(2)
}

func (m *MockOrderService) GetStats(ctx context.Context, p auth.Principal) (*order.Stats, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Stats), args.Error(1)
}

func (m *MockOrderService) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, orderID))
}

func (m *MockOrderService) FailPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, orderID))
}

func (m *MockOrderService) MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, orderID))
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) paymentResult(args mock.Arguments) (*payment.Payment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) CreatePayment(ctx context.Context, p auth.Principal, input payment.CreatePaymentInput) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, p, input))
}

func (m *MockPaymentService) UpdatePaymentStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status payment.Status, transactionID string) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, p, id, status, transactionID))
}

func (m *MockPaymentService) VerifyPayment(ctx context.Context, p auth.Principal, id uuid.UUID, transactionID string) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, p, id, transactionID))
}

func (m *MockPaymentService) GetPayment(ctx context.Context, p auth.Principal, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, p, id))
}

func (m *MockPaymentService) ListOrderPayments(ctx context.Context, p auth.Principal, orderID uuid.UUID) ([]*payment.Payment, error) {
	args := m.Called(ctx, p, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

func (m *MockPaymentService) ProcessRefund(ctx context.Context, p auth.Principal, id uuid.UUID, input payment.RefundInput) (*payment.Refund, error) {
	args := m.Called(ctx, p, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Refund), args.Error(1)
}

func (m *MockPaymentService) GetStats(ctx context.Context, p auth.Principal) (*payment.Stats, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Stats), args.Error(1)
}
