package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
)

type CreateProductInput struct {
	Name         string
	RegularPrice decimal.Decimal
	SalePrice    decimal.NullDecimal
	Stock        int
}

type Service interface {
	CreateProduct(ctx context.Context, principal auth.Principal, input CreateProductInput) (*Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	Restock(ctx context.Context, principal auth.Principal, productID uuid.UUID, qty int) (*Product, error)
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type service struct {
	repo   Repository
	ledger *Ledger
	tx     Transactor
}

func NewService(repo Repository, ledger *Ledger, tx Transactor) Service {
	return &service{repo: repo, ledger: ledger, tx: tx}
}

func (s *service) CreateProduct(ctx context.Context, principal auth.Principal, input CreateProductInput) (*Product, error) {
	if principal.Role != auth.RoleSeller && !principal.IsAdmin() {
		return nil, ErrNotProductOwner
	}

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case input.RegularPrice.IsNegative():
		return nil, fmt.Errorf("%w: regular price must not be negative", ErrInvalidProduct)
	case input.SalePrice.Valid && (input.SalePrice.Decimal.IsNegative() || input.SalePrice.Decimal.GreaterThan(input.RegularPrice)):
		return nil, fmt.Errorf("%w: sale price must be between 0 and the regular price", ErrInvalidProduct)
	case input.Stock < 0:
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate product id: %w", err)
	}

	sale := input.SalePrice
	if sale.Valid {
		sale.Decimal = sale.Decimal.Round(2)
	}
	product := &Product{
		ID:       id,
		SellerID: principal.UserID,
		Name:     name,
		Price:    Price{Regular: input.RegularPrice.Round(2), Sale: sale},
		Stock:    input.Stock,
		Status:   DeriveStatus(input.Stock),
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", product.ID).Stringer("seller_id", product.SellerID).Msg("service: product created")
	return product, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to get product %s: %w", id, err)
	}
	return product, nil
}

func (s *service) Restock(ctx context.Context, principal auth.Principal, productID uuid.UUID, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && !principal.Owns(product.SellerID) {
		return nil, ErrNotProductOwner
	}

	var stock int
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		stock, err = s.ledger.Restock(ctx, productID, qty, principal.UserID)
		return err
	})
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to restock product")
	}

	product.Stock = stock
	product.Status = DeriveStatus(stock)
	log.Info().Stringer("product_id", productID).Int("quantity", qty).Int("stock", stock).Msg("service: product restocked")
	return product, nil
}
