package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
)

type ProductStatus string

const (
	StatusInStock    ProductStatus = "in_stock"
	StatusOutOfStock ProductStatus = "out_of_stock"
)

var (
	ErrProductNotFound   = apperror.New(apperror.ErrNotFound, "product not found")
	ErrInsufficientStock = apperror.New(apperror.ErrInsufficientStock, "insufficient stock")
	ErrInvalidProduct    = apperror.New(apperror.ErrValidation, "invalid product")
	ErrInvalidQuantity   = apperror.New(apperror.ErrValidation, "quantity must be positive")
	ErrNotProductOwner   = apperror.New(apperror.ErrForbidden, "not allowed to manage this product")
)

type Price struct {
	Regular decimal.Decimal     `json:"regular"`
	Sale    decimal.NullDecimal `json:"sale"`
}

// Current is the price a buyer pays right now.
func (p Price) Current() decimal.Decimal {
	if p.Sale.Valid {
		return p.Sale.Decimal
	}
	return p.Regular
}

// DiscountPercent is the sale discount rounded to whole percent.
func (p Price) DiscountPercent() int64 {
	if !p.Sale.Valid || !p.Regular.IsPositive() || p.Sale.Decimal.GreaterThanOrEqual(p.Regular) {
		return 0
	}
	hundred := decimal.NewFromInt(100)
	return p.Regular.Sub(p.Sale.Decimal).Mul(hundred).Div(p.Regular).Round(0).IntPart()
}

type Product struct {
	ID        uuid.UUID     `json:"id"`
	SellerID  uuid.UUID     `json:"seller_id"`
	Name      string        `json:"name"`
	Price     Price         `json:"price"`
	Stock     int           `json:"stock"`
	Status    ProductStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Available reports whether qty units can be sold right now.
func (p *Product) Available(qty int) bool {
	return p.Status == StatusInStock && p.Stock >= qty
}

func DeriveStatus(stock int) ProductStatus {
	if stock > 0 {
		return StatusInStock
	}
	return StatusOutOfStock
}

type MovementReason string

const (
	ReasonSale    MovementReason = "sale"
	ReasonRelease MovementReason = "release"
	ReasonRestock MovementReason = "restock"
)

// Movement is one row of the stock audit trail.
type Movement struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Delta      int
	Reason     MovementReason
	OrderID    uuid.NullUUID
	ActorID    uuid.NullUUID
	StockAfter int
	CreatedAt  time.Time
}

// StockLine is a quantity of one product moving in or out of stock.
type StockLine struct {
	ProductID uuid.UUID
	Quantity  int
}
