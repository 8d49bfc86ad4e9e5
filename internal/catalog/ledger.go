package catalog

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Ledger is the only path through which stock changes. Every adjustment is
// a conditional single-row update followed by an audit movement, so callers
// running inside a transaction get all-or-nothing semantics for a batch.
type Ledger struct {
	store StockStore
	now   func() time.Time
}

func NewLedger(store StockStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Reserve takes every line out of stock for an order. The first line that
// fails the floor check aborts with ErrInsufficientStock naming the product;
// the caller's transaction is expected to undo earlier lines.
func (l *Ledger) Reserve(ctx context.Context, orderID uuid.UUID, lines []StockLine) error {
	for _, line := range sortLines(lines) {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
		stock, err := l.store.Decrement(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
		if err := l.record(ctx, line.ProductID, -line.Quantity, ReasonSale, orderID, uuid.Nil, stock); err != nil {
			return err
		}
	}
	log.Debug().Stringer("order_id", orderID).Int("lines", len(lines)).Msg("ledger: stock reserved")
	return nil
}

// Release puts every line of an order back into stock.
func (l *Ledger) Release(ctx context.Context, orderID uuid.UUID, lines []StockLine) error {
	for _, line := range sortLines(lines) {
		if line.Quantity <= 0 {
			continue
		}
		stock, err := l.store.Increment(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
		if err := l.record(ctx, line.ProductID, line.Quantity, ReasonRelease, orderID, uuid.Nil, stock); err != nil {
			return err
		}
	}
	log.Debug().Stringer("order_id", orderID).Int("lines", len(lines)).Msg("ledger: stock released")
	return nil
}

func (l *Ledger) Restock(ctx context.Context, productID uuid.UUID, qty int, actorID uuid.UUID) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	stock, err := l.store.Increment(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	if err := l.record(ctx, productID, qty, ReasonRestock, uuid.Nil, actorID, stock); err != nil {
		return 0, err
	}
	return stock, nil
}

func (l *Ledger) record(ctx context.Context, productID uuid.UUID, delta int, reason MovementReason, orderID, actorID uuid.UUID, stockAfter int) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("ledger: failed to generate movement id: %w", err)
	}
	m := &Movement{
		ID:         id,
		ProductID:  productID,
		Delta:      delta,
		Reason:     reason,
		OrderID:    nullUUID(orderID),
		ActorID:    nullUUID(actorID),
		StockAfter: stockAfter,
		CreatedAt:  l.now().UTC(),
	}
	return l.store.InsertMovement(ctx, m)
}

// sortLines merges duplicate products and orders lines by product id so that
// concurrent batches lock rows in the same order.
func sortLines(lines []StockLine) []StockLine {
	merged := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		merged[line.ProductID] += line.Quantity
	}
	out := make([]StockLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, StockLine{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b StockLine) int {
		return bytes.Compare(a.ProductID.Bytes(), b.ProductID.Bytes())
	})
	return out
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
