package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type eventItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type orderEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PreviousState OrderStatus     `json:"previous_status,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []eventItem     `json:"items,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func newOrderEvent(o *Order, previous OrderStatus, reason string) orderEvent {
	ev := orderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PreviousState: previous,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
	for _, item := range o.Items {
		ev.Items = append(ev.Items, eventItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return ev
}
