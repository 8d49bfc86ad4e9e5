package catalog

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
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
	StockStore
}

// StockStore holds the conditional stock primitives used by the ledger.
type StockStore interface {
	// Decrement removes qty units only if at least qty are in stock and
	// returns the resulting stock. ErrInsufficientStock otherwise.
	Decrement(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	Increment(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	InsertMovement(ctx context.Context, m *Movement) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

const productColumns = `id, seller_id, name, regular_price, sale_price, stock, status, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, p *Product) error {
	query := `INSERT INTO products (` + productColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Status = DeriveStatus(p.Stock)

	_, err := db.Conn(ctx, r.db).Exec(ctx, query,
		p.ID, p.SellerID, p.Name, p.Price.Regular, p.Price.Sale, p.Stock, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(db.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get product %s: %w", id, err)
	}
	return p, nil
}

func (r *postgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	products := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`
	rows, err := db.Conn(ctx, r.db).Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating product rows: %w", err)
	}
	return products, nil
}

func (r *postgresRepository) Decrement(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	// stock в SET и WHERE ссылается на старое значение строки
	query := `
		UPDATE products
		SET stock = stock - $2,
		    status = CASE WHEN stock - $2 > 0 THEN 'in_stock' ELSE 'out_of_stock' END,
		    updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`

	var stock int
	err := db.Conn(ctx, r.db).QueryRow(ctx, query, productID, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("repository: failed to decrement stock of %s: %w", productID, err)
	}
	return stock, nil
}

func (r *postgresRepository) Increment(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	query := `
		UPDATE products
		SET stock = stock + $2,
		    status = CASE WHEN stock + $2 > 0 THEN 'in_stock' ELSE 'out_of_stock' END,
		    updated_at = now()
		WHERE id = $1
		RETURNING stock`

	var stock int
	err := db.Conn(ctx, r.db).QueryRow(ctx, query, productID, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Stringer("product_id", productID).Int("quantity", qty).Msg("repository: stock increment for missing product")
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("repository: failed to increment stock of %s: %w", productID, err)
	}
	return stock, nil
}

func (r *postgresRepository) InsertMovement(ctx context.Context, m *Movement) error {
	query := `
		INSERT INTO stock_movements (id, product_id, delta, reason, order_id, actor_id, stock_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.Conn(ctx, r.db).Exec(ctx, query,
		m.ID, m.ProductID, m.Delta, m.Reason, m.OrderID, m.ActorID, m.StockAfter, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert stock movement: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price.Regular, &p.Price.Sale, &p.Stock, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = DeriveStatus(p.Stock)
	return &p, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
