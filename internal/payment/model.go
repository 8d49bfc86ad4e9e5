package payment

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// success -> failed is a gateway reversal.
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusSuccess, StatusFailed},
	StatusSuccess: {StatusFailed},
	StatusFailed:  {},
}

func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type RefundStatus string

const RefundPending RefundStatus = "pending"

var (
	ErrPaymentNotFound          = apperror.New(apperror.ErrNotFound, "payment not found")
	ErrPaymentExists            = apperror.New(apperror.ErrConflict, "payment already exists for this order")
	ErrAmountMismatch           = apperror.New(apperror.ErrValidation, "payment amount must match order total")
	ErrInvalidAmount            = apperror.New(apperror.ErrValidation, "amount must be positive")
	ErrInvalidPaymentStatus     = apperror.New(apperror.ErrValidation, "invalid payment status")
	ErrInvalidPaymentTransition = apperror.New(apperror.ErrInvalidState, "invalid payment status transition")
	ErrOrderNotPayable          = apperror.New(apperror.ErrInvalidState, "order is not awaiting payment")
	ErrPaymentNotSuccessful     = apperror.New(apperror.ErrInvalidState, "can only refund successful payments")
	ErrRefundExceedsAmount      = apperror.New(apperror.ErrValidation, "refund amount cannot exceed payment amount")
	ErrRefundExists             = apperror.New(apperror.ErrConflict, "refund already requested for this payment")
	ErrVerificationFailed       = apperror.New(apperror.ErrValidation, "payment verification failed")
	ErrNotPaymentOwner          = apperror.New(apperror.ErrForbidden, "not allowed to access this payment")
)

type Payment struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        Status          `json:"status"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Refund struct {
	ID          uuid.UUID       `json:"id"`
	PaymentID   uuid.UUID       `json:"payment_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	Amount      decimal.Decimal `json:"refund_amount"`
	Reason      string          `json:"reason"`
	Status      RefundStatus    `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
}

type Stats struct {
	TotalPayments    int             `json:"total_payments"`
	TotalAmountSpent decimal.Decimal `json:"total_amount_spent"`
	ByStatus         map[Status]int  `json:"payments_by_status"`
}
