package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
)

type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusConfirmed       OrderStatus = "confirmed"
	StatusShipped         OrderStatus = "shipped"
	StatusDelivered       OrderStatus = "delivered"
	StatusCancelled       OrderStatus = "cancelled"
	StatusReturned        OrderStatus = "returned"
	StatusRefundRequested OrderStatus = "refund_requested"
)

func (os OrderStatus) String() string {
	return string(os)
}

func (os OrderStatus) Valid() bool {
	_, ok := allowedTransitions[os]
	return ok
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusShipped:         true,
		StatusCancelled:       true,
		StatusReturned:        true,
		StatusRefundRequested: true,
	},
	StatusShipped: {
		StatusDelivered:       true,
		StatusReturned:        true,
		StatusRefundRequested: true,
	},
	StatusDelivered: {
		StatusReturned:        true,
		StatusRefundRequested: true,
	},
	StatusRefundRequested: {
		StatusReturned: true,
	},
	StatusCancelled: {},
	StatusReturned:  {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	return allowedTransitions[from][to]
}

var (
	ErrOrderNotFound           = apperror.New(apperror.ErrNotFound, "order not found")
	ErrShippingAddressRequired = apperror.New(apperror.ErrValidation, "shipping address is required")
	ErrCartEmpty               = apperror.New(apperror.ErrValidation, "cart is empty")
	ErrInvalidStatus           = apperror.New(apperror.ErrValidation, "invalid order status")
	ErrNotOrderOwner           = apperror.New(apperror.ErrForbidden, "not allowed to access this order")
	ErrOnlyCancellation        = apperror.New(apperror.ErrForbidden, "you can only cancel your orders")
	ErrCannotCancel            = apperror.New(apperror.ErrInvalidState, "cannot cancel an order that has been shipped or delivered")
	ErrInvalidTransition       = apperror.New(apperror.ErrInvalidState, "invalid order status transition")
	ErrOrderNumberTaken        = apperror.New(apperror.ErrConflict, "order number already taken")
	ErrOrderNumberExhausted    = apperror.New(apperror.ErrConflict, "could not allocate a unique order number")
	ErrNothingToReorder        = apperror.New(apperror.ErrValidation, "none of the ordered products are available")
)

type Item struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          uuid.UUID       `json:"user_id"`
	CartID          uuid.UUID       `json:"cart_id"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Items           []Item          `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StockLines is the stock the order holds while it is live.
func (o *Order) StockLines() []catalog.StockLine {
	lines := make([]catalog.StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, catalog.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

type Stats struct {
	TotalOrders      int                 `json:"total_orders"`
	TotalAmountSpent decimal.Decimal     `json:"total_amount_spent"`
	ByStatus         map[OrderStatus]int `json:"by_status"`
}
