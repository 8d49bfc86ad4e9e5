package order

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type StatsReader interface {
	UserStats(ctx context.Context, userID uuid.UUID) (*Stats, error)
}

type sqlxStatsReader struct {
	db *sqlx.DB
}

func NewStatsReader(db *sqlx.DB) StatsReader {
	return &sqlxStatsReader{db: db}
}

type statusRow struct {
	Status OrderStatus     `db:"status"`
	Count  int             `db:"count"`
	Amount decimal.Decimal `db:"amount"`
}

func (r *sqlxStatsReader) UserStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	var rows []statusRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount
		FROM orders
		WHERE user_id = $1
		GROUP BY status`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("repository: failed to read order stats: %w", err)
	}
	return aggregateStats(rows), nil
}

// aggregateStats folds per-status rows; cancelled orders do not count
// towards the amount spent.
func aggregateStats(rows []statusRow) *Stats {
	stats := &Stats{TotalAmountSpent: decimal.Zero, ByStatus: make(map[OrderStatus]int, len(rows))}
	for _, row := range rows {
		stats.TotalOrders += row.Count
		stats.ByStatus[row.Status] = row.Count
		if row.Status != StatusCancelled {
			stats.TotalAmountSpent = stats.TotalAmountSpent.Add(row.Amount)
		}
	}
	return stats
}
