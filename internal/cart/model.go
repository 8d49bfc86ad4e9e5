package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
)

var (
	ErrCartNotFound    = apperror.New(apperror.ErrNotFound, "cart not found")
	ErrItemNotFound    = apperror.New(apperror.ErrNotFound, "item not found in cart")
	ErrInvalidQuantity = apperror.New(apperror.ErrValidation, "quantity must be at least 1")
)

type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Cart struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Items       []Item          `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Total is the sum of quantity * price over items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Recalculate recomputes TotalAmount from the items. Call after every
// mutation of Items.
func (c *Cart) Recalculate() {
	c.TotalAmount = Total(c.Items)
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

func (c *Cart) indexOf(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add merges qty units of a product into the cart at the given price.
func (c *Cart) Add(productID uuid.UUID, qty int, price decimal.Decimal) {
	if i := c.indexOf(productID); i >= 0 {
		c.Items[i].Quantity += qty
		c.Items[i].Price = price
	} else {
		c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty, Price: price})
	}
	c.Recalculate()
}

func (c *Cart) QuantityOf(productID uuid.UUID) int {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

func (c *Cart) SetQuantity(productID uuid.UUID, qty int, price decimal.Decimal) error {
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items[i].Quantity = qty
	c.Items[i].Price = price
	c.Recalculate()
	return nil
}

// Remove drops a product from the cart; absent products are ignored.
func (c *Cart) Remove(productID uuid.UUID) {
	if i := c.indexOf(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	c.Recalculate()
}

// Empty returns the view of a user's cart before anything was added.
func Empty(userID uuid.UUID) *Cart {
	return &Cart{UserID: userID, Items: []Item{}, TotalAmount: decimal.Zero}
}
