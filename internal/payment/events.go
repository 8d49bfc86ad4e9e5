package payment

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type paymentEvent struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	PreviousState Status          `json:"previous_status,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func newPaymentEvent(p *Payment, previous Status) paymentEvent {
	return paymentEvent{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		Status:        p.Status,
		PreviousState: previous,
		TransactionID: p.TransactionID,
		OccurredAt:    time.Now().UTC(),
	}
}

type refundEvent struct {
	RefundID   uuid.UUID       `json:"refund_id"`
	PaymentID  uuid.UUID       `json:"payment_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	Amount     decimal.Decimal `json:"refund_amount"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
