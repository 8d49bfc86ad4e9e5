package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/db"
)

const orderNumberConstraint = "orders_order_number_key"

type Repository interface {
	// Create inserts the order and its items. ErrOrderNumberTaken when the
	// order number is already used.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	// CompareAndSetStatus moves the order from one status to another only if
	// it is still in from. A nil paymentStatus leaves it unchanged.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, paymentStatus *PaymentStatus) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	conn := db.Conn(ctx, r.db)

	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	query := `
		INSERT INTO orders (id, order_number, user_id, cart_id, shipping_address, total_amount, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := conn.Exec(ctx, query,
		o.ID, o.OrderNumber, o.UserID, nullableUUID(o.CartID), o.ShippingAddress, o.TotalAmount, o.Status, o.PaymentStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, orderNumberConstraint) {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item id: %w", err)
		}
		batch.Queue(`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price) VALUES ($1, $2, $3, $4, $5, $6)`,
			itemID, o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
	}
	if err := db.ExecBatch(ctx, conn, batch); err != nil {
		return fmt.Errorf("repository: failed to insert order items: %w", err)
	}

	return nil
}

const orderColumns = `id, order_number, user_id, cart_id, shipping_address, total_amount, status, payment_status, created_at, updated_at`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *postgresRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Order, error) {
	conn := db.Conn(ctx, r.db)

	var (
		o      Order
		cartID uuid.NullUUID
	)
	err := conn.QueryRow(ctx, query, arg).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &cartID, &o.ShippingAddress, &o.TotalAmount, &o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get order: %w", err)
	}
	o.CartID = cartID.UUID

	rows, err := conn.Query(ctx,
		`SELECT product_id, product_name, quantity, unit_price FROM order_items WHERE order_id = $1 ORDER BY product_name, product_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	o.Items = []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return &o, nil
}

func (r *postgresRepository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check order number: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, paymentStatus *PaymentStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = $3,
		    payment_status = COALESCE($4, payment_status),
		    updated_at = now()
		WHERE id = $1 AND status = $2`

	var ps *string
	if paymentStatus != nil {
		s := string(*paymentStatus)
		ps = &s
	}

	tag, err := db.Conn(ctx, r.db).Exec(ctx, query, id, from, to, ps)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update order status: %w", err)
	}
	if tag.RowsAffected() > 1 {
		log.Error().Stringer("order_id", id).Int64("rows", tag.RowsAffected()).Msg("repository: status update touched more than one order")
	}
	return tag.RowsAffected() == 1, nil
}

func nullableUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
