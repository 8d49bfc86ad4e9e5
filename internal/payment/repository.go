package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
)

const (
	paymentOrderConstraint  = "payments_order_id_key"
	refundPaymentConstraint = "refunds_payment_id_key"
)

type Repository interface {
	// Create inserts a payment. ErrPaymentExists when the order already has one.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
	// CompareAndSetStatus updates the payment only while it is still in from.
	// An empty transactionID keeps the stored one; a nil paymentDate keeps the stored date.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status, transactionID string, paymentDate *time.Time) (bool, error)
	// CreateRefund inserts a refund request. ErrRefundExists when the payment
	// already has one.
	CreateRefund(ctx context.Context, r *Refund) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

const paymentColumns = `id, order_id, amount, method, transaction_id, status, payment_date, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, p *Payment) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := db.Conn(ctx, r.db).Exec(ctx, query,
		p.ID, p.OrderID, p.Amount, p.Method, p.TransactionID, p.Status, p.PaymentDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, paymentOrderConstraint) {
			return ErrPaymentExists
		}
		return fmt.Errorf("repository: failed to insert payment: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get payment: %w", err)
	}
	return p, nil
}

func (r *postgresRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check payment for order: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	rows, err := db.Conn(ctx, r.db).Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query payments: %w", err)
	}
	return collectPayments(rows)
}

func (r *postgresRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to Status, transactionID string, paymentDate *time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3,
		    transaction_id = COALESCE(NULLIF($4, ''), transaction_id),
		    payment_date = COALESCE($5, payment_date),
		    updated_at = now()
		WHERE id = $1 AND status = $2`

	tag, err := db.Conn(ctx, r.db).Exec(ctx, query, id, from, to, transactionID, paymentDate)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresRepository) CreateRefund(ctx context.Context, refund *Refund) error {
	refund.RequestedAt = time.Now().UTC()

	query := `
		INSERT INTO refunds (id, payment_id, order_id, amount, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := db.Conn(ctx, r.db).Exec(ctx, query,
		refund.ID, refund.PaymentID, refund.OrderID, refund.Amount, refund.Reason, refund.Status, refund.RequestedAt)
	if err != nil {
		if db.IsUniqueViolation(err, refundPaymentConstraint) {
			return ErrRefundExists
		}
		return fmt.Errorf("repository: failed to insert refund: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.TransactionID, &p.Status, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]*Payment, error) {
	defer rows.Close()

	payments := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating payments: %w", err)
	}
	return payments, nil
}
