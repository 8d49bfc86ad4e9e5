package cart_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
)

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) ReplaceItems(ctx context.Context, c *cart.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCartRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockProductReader struct {
	mock.Mock
}

func (m *MockProductReader) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func product(stock int, regular string, sale string) *catalog.Product {
	p := &catalog.Product{
		ID:     uuid.Must(uuid.NewV4()),
		Name:   "Product",
		Price:  catalog.Price{Regular: decimal.RequireFromString(regular)},
		Stock:  stock,
		Status: catalog.DeriveStatus(stock),
	}
	if sale != "" {
		p.Price.Sale = decimal.NewNullDecimal(decimal.RequireFromString(sale))
	}
	return p
}

func TestCartService_GetCart_EmptyWhenMissing(t *testing.T) {
	mockRepo := new(MockCartRepository)
	svc := cart.NewService(mockRepo, new(MockProductReader), passthroughTx{})

	userID := uuid.Must(uuid.NewV4())
	mockRepo.On("GetByUserID", mock.Anything, userID).Return(nil, cart.ErrCartNotFound).Once()

	c, err := svc.GetCart(context.Background(), userID)

	require.NoError(t, err)
	require.True(t, c.IsEmpty())
	require.Equal(t, userID, c.UserID)
	mockRepo.AssertExpectations(t)
}

func TestCartService_AddItem_UsesSalePriceAndMerges(t *testing.T) {
	mockRepo := new(MockCartRepository)
	mockProducts := new(MockProductReader)
	svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

	userID := uuid.Must(uuid.NewV4())
	p := product(5, "10.00", "8.00")
	existing := &cart.Cart{ID: uuid.Must(uuid.NewV4()), UserID: userID, Items: []cart.Item{
		{ProductID: p.ID, Quantity: 1, Price: decimal.RequireFromString("10.00")},
	}}

	mockProducts.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
	mockRepo.On("GetOrCreate", mock.Anything, userID).Return(existing, nil).Once()
	mockRepo.On("ReplaceItems", mock.Anything, mock.MatchedBy(func(c *cart.Cart) bool {
		return len(c.Items) == 1 && c.Items[0].Quantity == 3 && c.TotalAmount.Equal(decimal.RequireFromString("24.00"))
	})).Return(nil).Once()

	c, err := svc.AddItem(context.Background(), userID, p.ID, 2)

	require.NoError(t, err)
	require.True(t, c.Items[0].Price.Equal(decimal.RequireFromString("8.00")))
	mockRepo.AssertExpectations(t)
	mockProducts.AssertExpectations(t)
}

func TestCartService_AddItem_Rejects(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())

	t.Run("zero_quantity", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		svc := cart.NewService(mockRepo, new(MockProductReader), passthroughTx{})

		_, err := svc.AddItem(context.Background(), userID, uuid.Must(uuid.NewV4()), 0)

		require.ErrorIs(t, err, apperror.ErrValidation)
		mockRepo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
	})

	t.Run("product_missing", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		mockProducts := new(MockProductReader)
		svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

		productID := uuid.Must(uuid.NewV4())
		mockProducts.On("GetByID", mock.Anything, productID).Return(nil, catalog.ErrProductNotFound).Once()

		_, err := svc.AddItem(context.Background(), userID, productID, 1)

		require.ErrorIs(t, err, apperror.ErrNotFound)
		mockRepo.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
	})

	t.Run("merged_quantity_over_stock", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		mockProducts := new(MockProductReader)
		svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

		p := product(3, "5.00", "")
		existing := &cart.Cart{ID: uuid.Must(uuid.NewV4()), UserID: userID, Items: []cart.Item{
			{ProductID: p.ID, Quantity: 2, Price: decimal.RequireFromString("5.00")},
		}}
		mockProducts.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		mockRepo.On("GetOrCreate", mock.Anything, userID).Return(existing, nil).Once()

		_, err := svc.AddItem(context.Background(), userID, p.ID, 2)

		require.ErrorIs(t, err, catalog.ErrInsufficientStock)
		mockRepo.AssertNotCalled(t, "ReplaceItems", mock.Anything, mock.Anything)
	})
}

func TestCartService_UpdateItemQuantity(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	p := product(10, "2.50", "")

	t.Run("success", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		mockProducts := new(MockProductReader)
		svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

		existing := &cart.Cart{ID: uuid.Must(uuid.NewV4()), UserID: userID, Items: []cart.Item{
			{ProductID: p.ID, Quantity: 1, Price: decimal.RequireFromString("3.00")},
		}}
		mockRepo.On("GetByUserID", mock.Anything, userID).Return(existing, nil).Once()
		mockProducts.On("GetByID", mock.Anything, p.ID).Return(p, nil).Once()
		mockRepo.On("ReplaceItems", mock.Anything, mock.Anything).Return(nil).Once()

		c, err := svc.UpdateItemQuantity(context.Background(), userID, p.ID, 4)

		require.NoError(t, err)
		require.True(t, c.TotalAmount.Equal(decimal.RequireFromString("10.00")))
		mockRepo.AssertExpectations(t)
	})

	t.Run("item_not_in_cart", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		mockProducts := new(MockProductReader)
		svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

		mockRepo.On("GetByUserID", mock.Anything, userID).Return(&cart.Cart{UserID: userID}, nil).Once()

		_, err := svc.UpdateItemQuantity(context.Background(), userID, p.ID, 4)

		require.ErrorIs(t, err, cart.ErrItemNotFound)
		mockProducts.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("no_cart", func(t *testing.T) {
		mockRepo := new(MockCartRepository)
		svc := cart.NewService(mockRepo, new(MockProductReader), passthroughTx{})

		mockRepo.On("GetByUserID", mock.Anything, userID).Return(nil, cart.ErrCartNotFound).Once()

		_, err := svc.UpdateItemQuantity(context.Background(), userID, p.ID, 4)

		require.ErrorIs(t, err, cart.ErrCartNotFound)
	})
}

func TestCartService_AddItems_SkipsUnavailable(t *testing.T) {
	mockRepo := new(MockCartRepository)
	mockProducts := new(MockProductReader)
	svc := cart.NewService(mockRepo, mockProducts, passthroughTx{})

	userID := uuid.Must(uuid.NewV4())
	inStock := product(5, "4.00", "")
	soldOut := product(0, "4.00", "")
	gone := uuid.Must(uuid.NewV4())

	mockRepo.On("GetOrCreate", mock.Anything, userID).Return(cart.Empty(userID), nil).Once()
	mockProducts.On("GetByID", mock.Anything, inStock.ID).Return(inStock, nil).Once()
	mockProducts.On("GetByID", mock.Anything, soldOut.ID).Return(soldOut, nil).Once()
	mockProducts.On("GetByID", mock.Anything, gone).Return(nil, catalog.ErrProductNotFound).Once()
	mockRepo.On("ReplaceItems", mock.Anything, mock.Anything).Return(nil).Once()

	c, skipped, err := svc.AddItems(context.Background(), userID, []cart.Line{
		{ProductID: inStock.ID, Quantity: 2},
		{ProductID: soldOut.ID, Quantity: 1},
		{ProductID: gone, Quantity: 1},
	})

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.ElementsMatch(t, []uuid.UUID{soldOut.ID, gone}, skipped)
	require.True(t, c.TotalAmount.Equal(decimal.RequireFromString("8.00")))
	mockRepo.AssertExpectations(t)
	mockProducts.AssertExpectations(t)
}
