package cart

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

type Repository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Cart, error)
	// GetOrCreate returns the user's cart, creating an empty one if needed.
	// Concurrent callers for the same user end up with the same cart.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	// ReplaceItems persists the cart's items and total.
	ReplaceItems(ctx context.Context, c *Cart) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

func (r *postgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	conn := db.Conn(ctx, r.db)

	var c Cart
	err := conn.QueryRow(ctx,
		`SELECT id, user_id, total_amount, created_at, updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&c.ID, &c.UserID, &c.TotalAmount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get cart for user %s: %w", userID, err)
	}

	rows, err := conn.Query(ctx,
		`SELECT product_id, quantity, price FROM cart_items WHERE cart_id = $1 ORDER BY position`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items: %w", err)
	}
	defer rows.Close()

	c.Items = []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items: %w", err)
	}

	return &c, nil
}

func (r *postgresRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart id: %w", err)
	}

	// Уникальность carts.user_id решает гонку: проигравший просто перечитывает корзину
	_, err = db.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO carts (id, user_id, total_amount) VALUES ($1, $2, 0) ON CONFLICT (user_id) DO NOTHING`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to create cart: %w", err)
	}

	return r.GetByUserID(ctx, userID)
}

func (r *postgresRepository) ReplaceItems(ctx context.Context, c *Cart) error {
	conn := db.Conn(ctx, r.db)

	if _, err := conn.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
		return fmt.Errorf("repository: failed to clear cart items: %w", err)
	}

	if len(c.Items) > 0 {
		batch := &pgx.Batch{}
		for i, item := range c.Items {
			batch.Queue(`INSERT INTO cart_items (cart_id, product_id, quantity, price, position) VALUES ($1, $2, $3, $4, $5)`,
				c.ID, item.ProductID, item.Quantity, item.Price, i)
		}
		if err := db.ExecBatch(ctx, conn, batch); err != nil {
			return fmt.Errorf("repository: failed to insert cart items: %w", err)
		}
	}

	c.UpdatedAt = time.Now().UTC()
	tag, err := conn.Exec(ctx, `UPDATE carts SET total_amount = $1, updated_at = $2 WHERE id = $3`, c.TotalAmount, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart total: %w", err)
	}
	if tag.RowsAffected() != 1 {
		log.Warn().Stringer("cart_id", c.ID).Int64("rows", tag.RowsAffected()).Msg("repository: cart vanished during update")
		return ErrCartNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := db.Conn(ctx, r.db).Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart of user %s: %w", userID, err)
	}
	return nil
}
