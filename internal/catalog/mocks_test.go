package catalog_test

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *catalog.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*catalog.Product), args.Error(1)
}

func (m *MockRepository) Decrement(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	args := m.Called(ctx, productID, qty)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) Increment(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	args := m.Called(ctx, productID, qty)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) InsertMovement(ctx context.Context, mv *catalog.Movement) error {
	args := m.Called(ctx, mv)
	return args.Error(0)
}

type passthroughTx struct {
	calls int
}

func (p *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}
