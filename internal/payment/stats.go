package payment

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
	Status Status          `db:"status"`
	Count  int             `db:"count"`
	Amount decimal.Decimal `db:"amount"`
}

func (r *sqlxStatsReader) UserStats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	var rows []statusRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT p.status, COUNT(*) AS count, COALESCE(SUM(p.amount), 0) AS amount
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.user_id = $1
		GROUP BY p.status`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("repository: failed to read payment stats: %w", err)
	}
	return aggregateStats(rows), nil
}

// aggregateStats always reports every status; only successful payments
// count as money spent.
func aggregateStats(rows []statusRow) *Stats {
	stats := &Stats{
		TotalAmountSpent: decimal.Zero,
		ByStatus:         map[Status]int{StatusPending: 0, StatusSuccess: 0, StatusFailed: 0},
	}
	for _, row := range rows {
		stats.TotalPayments += row.Count
		stats.ByStatus[row.Status] = row.Count
		if row.Status == StatusSuccess {
			stats.TotalAmountSpent = stats.TotalAmountSpent.Add(row.Amount)
		}
	}
	return stats
}
