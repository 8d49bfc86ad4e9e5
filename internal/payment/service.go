package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/outbox"
)

var errStatusChanged = errors.New("payment status changed concurrently")

type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// OrderWorkflow is the part of the order service driven by payment outcomes.
type OrderWorkflow interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	FailPayment(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
}

type CartRemover interface {
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventRecorder interface {
	Record(ctx context.Context, eventType, key string, payload any) error
}

type Dependencies struct {
	Repo     Repository
	Stats    StatsReader
	Orders   OrderReader
	Workflow OrderWorkflow
	Carts    CartRemover
	Tx       Transactor
	Events   EventRecorder
	Metrics  *metrics.Metrics
}

type CreatePaymentInput struct {
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Method        string
	TransactionID string
}

type RefundInput struct {
	// Amount zero means the full payment amount.
	Amount decimal.Decimal
	Reason string
}

type Service interface {
	CreatePayment(ctx context.Context, principal auth.Principal, input CreatePaymentInput) (*Payment, error)
	// UpdatePaymentStatus applies a gateway outcome. Success confirms the
	// order and clears the owner's cart; failure cancels the order and
	// releases its stock. Both commit together with the payment change.
	UpdatePaymentStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, status Status, transactionID string) (*Payment, error)
	VerifyPayment(ctx context.Context, principal auth.Principal, id uuid.UUID, transactionID string) (*Payment, error)
	GetPayment(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Payment, error)
	ListOrderPayments(ctx context.Context, principal auth.Principal, orderID uuid.UUID) ([]*Payment, error)
	ProcessRefund(ctx context.Context, principal auth.Principal, id uuid.UUID, input RefundInput) (*Refund, error)
	GetStats(ctx context.Context, principal auth.Principal) (*Stats, error)
}

type service struct {
	repo     Repository
	stats    StatsReader
	orders   OrderReader
	workflow OrderWorkflow
	carts    CartRemover
	tx       Transactor
	events   EventRecorder
	metrics  *metrics.Metrics
}

func NewService(deps Dependencies) Service {
	events := deps.Events
	if events == nil {
		events = outbox.Noop()
	}
	return &service{
		repo:     deps.Repo,
		stats:    deps.Stats,
		orders:   deps.Orders,
		workflow: deps.Workflow,
		carts:    deps.Carts,
		tx:       deps.Tx,
		events:   events,
		metrics:  deps.Metrics,
	}
}

func (s *service) loadOrder(ctx context.Context, principal auth.Principal, orderID uuid.UUID, allowAdmin bool) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order for payment")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	if principal.Owns(o.UserID) || (allowAdmin && principal.IsAdmin()) {
		return o, nil
	}
	return nil, ErrNotPaymentOwner
}

func (s *service) loadPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warn().Stringer("payment_id", id).Msg("service: payment not found by id")
			return nil, ErrPaymentNotFound
		}
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to fetch payment")
		return nil, fmt.Errorf("service: failed to fetch payment: %w", err)
	}
	return p, nil
}

func (s *service) CreatePayment(ctx context.Context, principal auth.Principal, input CreatePaymentInput) (*Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	o, err := s.loadOrder(ctx, principal, input.OrderID, false)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsForOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to check existing payment: %w", err)
	}
	if exists {
		return nil, ErrPaymentExists
	}
	if !input.Amount.Equal(o.TotalAmount) {
		log.Warn().Stringer("order_id", o.ID).Str("amount", input.Amount.String()).Str("total", o.TotalAmount.String()).Msg("service: payment amount mismatch")
		return nil, fmt.Errorf("%w: expected %s", ErrAmountMismatch, o.TotalAmount.StringFixed(2))
	}
	if o.Status != order.StatusPending {
		return nil, ErrOrderNotPayable
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}
	p := &Payment{
		ID:            id,
		OrderID:       o.ID,
		Amount:        input.Amount,
		Method:        strings.TrimSpace(input.Method),
		TransactionID: strings.TrimSpace(input.TransactionID),
		Status:        StatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrPaymentExists) {
			return nil, ErrPaymentExists
		}
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to create payment")
		return nil, fmt.Errorf("service: failed to create payment: %w", err)
	}

	s.metrics.Payment(StatusPending.String())
	log.Info().Stringer("payment_id", p.ID).Stringer("order_id", o.ID).Msg("service: payment created")
	return p, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, status Status, transactionID string) (*Payment, error) {
	if !status.Valid() {
		return nil, ErrInvalidPaymentStatus
	}

	p, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := s.loadOrder(ctx, principal, p.OrderID, true)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, p, o, status, strings.TrimSpace(transactionID))
}

func (s *service) VerifyPayment(ctx context.Context, principal auth.Principal, id uuid.UUID, transactionID string) (*Payment, error) {
	p, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := s.loadOrder(ctx, principal, p.OrderID, true)
	if err != nil {
		return nil, err
	}

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" || p.TransactionID != transactionID {
		log.Warn().Stringer("payment_id", p.ID).Msg("service: payment verification failed")
		return nil, ErrVerificationFailed
	}

	return s.apply(ctx, p, o, StatusSuccess, "")
}

// apply moves the payment to status and runs the matching order workflow
// step in the same transaction.
func (s *service) apply(ctx context.Context, p *Payment, o *order.Order, status Status, transactionID string) (*Payment, error) {
	if p.Status == status {
		return p, nil
	}
	if !CanTransition(p.Status, status) {
		log.Warn().Stringer("payment_id", p.ID).Stringer("current_status", p.Status).Stringer("new_status", status).Msg("service: invalid payment transition attempt")
		return nil, ErrInvalidPaymentTransition
	}

	var paymentDate *time.Time
	if status == StatusSuccess {
		now := time.Now().UTC()
		paymentDate = &now
	}

	previous := p.Status
	updated := *p
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.CompareAndSetStatus(ctx, p.ID, previous, status, transactionID, paymentDate)
		if err != nil {
			return err
		}
		if !ok {
			return errStatusChanged
		}

		updated.Status = status
		if transactionID != "" {
			updated.TransactionID = transactionID
		}
		if paymentDate != nil {
			updated.PaymentDate = paymentDate
		}

		eventType := outbox.EventPaymentFailed
		switch status {
		case StatusSuccess:
			eventType = outbox.EventPaymentSucceeded
			if _, err := s.workflow.ConfirmPayment(ctx, o.ID); err != nil {
				return err
			}
			if err := s.carts.DeleteByUserID(ctx, o.UserID); err != nil {
				return err
			}
		case StatusFailed:
			if _, err := s.workflow.FailPayment(ctx, o.ID); err != nil {
				return err
			}
		}
		return s.events.Record(ctx, eventType, p.ID.String(), newPaymentEvent(&updated, previous))
	})
	if errors.Is(err, errStatusChanged) {
		current, loadErr := s.loadPayment(ctx, p.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == status {
			return current, nil
		}
		log.Warn().Stringer("payment_id", p.ID).Stringer("observed", previous).Stringer("current", current.Status).Msg("service: payment update lost status race")
		return nil, ErrInvalidPaymentTransition
	}
	if err != nil {
		if apperror.Kind(err) != nil {
			log.Warn().Err(err).Stringer("payment_id", p.ID).Stringer("order_id", o.ID).Msg("service: order rejected payment outcome")
			return nil, err
		}
		log.Error().Err(err).Stringer("payment_id", p.ID).Msg("service: failed to update payment status")
		return nil, fmt.Errorf("service: failed to update payment status: %w", err)
	}

	s.metrics.Payment(status.String())
	log.Info().Stringer("payment_id", p.ID).Stringer("order_id", o.ID).Stringer("old_status", previous).Stringer("new_status", status).Msg("service: payment status updated")
	return &updated, nil
}

func (s *service) GetPayment(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Payment, error) {
	p, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOrder(ctx, principal, p.OrderID, true); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) ListOrderPayments(ctx context.Context, principal auth.Principal, orderID uuid.UUID) ([]*Payment, error) {
	if _, err := s.loadOrder(ctx, principal, orderID, true); err != nil {
		return nil, err
	}
	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list order payments: %w", err)
	}
	return payments, nil
}

// ProcessRefund records a refund request and marks the order. Stock stays
// where it is; goods are restocked explicitly once they come back.
func (s *service) ProcessRefund(ctx context.Context, principal auth.Principal, id uuid.UUID, input RefundInput) (*Refund, error) {
	p, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := s.loadOrder(ctx, principal, p.OrderID, false)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusSuccess {
		return nil, ErrPaymentNotSuccessful
	}

	amount := input.Amount
	if amount.IsZero() {
		amount = p.Amount
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(p.Amount) {
		return nil, ErrRefundExceedsAmount
	}

	refundID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate refund id: %w", err)
	}
	refund := &Refund{
		ID:        refundID,
		PaymentID: p.ID,
		OrderID:   o.ID,
		Amount:    amount,
		Reason:    strings.TrimSpace(input.Reason),
		Status:    RefundPending,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateRefund(ctx, refund); err != nil {
			return err
		}
		if _, err := s.workflow.MarkRefundRequested(ctx, o.ID); err != nil {
			return err
		}
		return s.events.Record(ctx, outbox.EventRefundRequested, p.ID.String(), refundEvent{
			RefundID:   refund.ID,
			PaymentID:  refund.PaymentID,
			OrderID:    refund.OrderID,
			Amount:     refund.Amount,
			Reason:     refund.Reason,
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		if apperror.Kind(err) != nil {
			return nil, err
		}
		log.Error().Err(err).Stringer("payment_id", p.ID).Msg("service: failed to request refund")
		return nil, fmt.Errorf("service: failed to request refund: %w", err)
	}

	log.Info().Stringer("payment_id", p.ID).Stringer("order_id", o.ID).Str("amount", amount.String()).Msg("service: refund requested")
	return refund, nil
}

func (s *service) GetStats(ctx context.Context, principal auth.Principal) (*Stats, error) {
	stats, err := s.stats.UserStats(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get payment stats: %w", err)
	}
	return stats, nil
}
