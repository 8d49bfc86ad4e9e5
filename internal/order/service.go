package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/auth"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/outbox"
)

const maxNumberAttempts = 5

// Cancellation reasons, used as metric labels and in events.
const (
	ReasonUser          = "user"
	ReasonAdmin         = "admin"
	ReasonPaymentFailed = "payment_failed"
)

var (
	ErrAdminOnly = apperror.New(apperror.ErrForbidden, "only administrators can change fulfilment status")

	errStatusChanged = errors.New("order status changed concurrently")
)

type CartReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*cart.Cart, error)
}

type CartFiller interface {
	AddItems(ctx context.Context, userID uuid.UUID, lines []cart.Line) (*cart.Cart, []uuid.UUID, error)
}

type ProductReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*catalog.Product, error)
}

type StockLedger interface {
	Reserve(ctx context.Context, orderID uuid.UUID, lines []catalog.StockLine) error
	Release(ctx context.Context, orderID uuid.UUID, lines []catalog.StockLine) error
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventRecorder interface {
	Record(ctx context.Context, eventType, key string, payload any) error
}

type Dependencies struct {
	Repo       Repository
	Stats      StatsReader
	Carts      CartReader
	CartFiller CartFiller
	Products   ProductReader
	Ledger     StockLedger
	Tx         Transactor
	Events     EventRecorder
	Metrics    *metrics.Metrics
	Numbers    *NumberGenerator
}

type CreateOrderInput struct {
	ShippingAddress string
}

type Service interface {
	CreateOrder(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Order, error)
	GetOrderByNumber(ctx context.Context, principal auth.Principal, number string) (*Order, error)
	// UpdateOrderStatus is the owner-facing status change; only cancellation
	// is allowed and it restores the reserved stock exactly once.
	UpdateOrderStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, requested OrderStatus) (*Order, error)
	// AdvanceOrderStatus moves an order through fulfilment (admin only).
	AdvanceOrderStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, requested OrderStatus) (*Order, error)
	Reorder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*cart.Cart, []uuid.UUID, error)
	GetStats(ctx context.Context, principal auth.Principal) (*Stats, error)

	// Payment callbacks. They join the caller's transaction when ctx carries one.
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*Order, error)
	FailPayment(ctx context.Context, orderID uuid.UUID) (*Order, error)
	MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (*Order, error)
}

type service struct {
	repo       Repository
	stats      StatsReader
	carts      CartReader
	cartFiller CartFiller
	products   ProductReader
	ledger     StockLedger
	tx         Transactor
	events     EventRecorder
	metrics    *metrics.Metrics
	numbers    *NumberGenerator
}

func NewService(deps Dependencies) Service {
	numbers := deps.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator()
	}
	events := deps.Events
	if events == nil {
		events = outbox.Noop()
	}
	return &service{
		repo:       deps.Repo,
		stats:      deps.Stats,
		carts:      deps.Carts,
		cartFiller: deps.CartFiller,
		products:   deps.Products,
		ledger:     deps.Ledger,
		tx:         deps.Tx,
		events:     events,
		metrics:    deps.Metrics,
		numbers:    numbers,
	}
}

func (s *service) CreateOrder(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*Order, error) {
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, ErrShippingAddressRequired
	}

	c, err := s.carts.GetByUserID(ctx, principal.UserID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return nil, ErrCartEmpty
	}
	if err != nil {
		log.Error().Err(err).Stringer("user_id", principal.UserID).Msg("service: failed to load cart for order")
		return nil, fmt.Errorf("service: failed to load cart: %w", err)
	}
	if c.IsEmpty() {
		return nil, ErrCartEmpty
	}

	items, err := s.snapshotItems(ctx, c)
	if err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			s.metrics.ReservationFailed()
		}
		return nil, err
	}

	o := &Order{
		UserID:          principal.UserID,
		CartID:          c.ID,
		ShippingAddress: address,
		TotalAmount:     c.TotalAmount,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Items:           items,
	}

	if err := s.place(ctx, o); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			s.metrics.ReservationFailed()
			log.Warn().Err(err).Stringer("user_id", principal.UserID).Msg("service: stock reservation failed, order rolled back")
		}
		if apperror.Kind(err) != nil {
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", principal.UserID).Msg("service: failed to place order")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	s.metrics.OrderCreated()
	log.Info().Stringer("order_id", o.ID).Str("order_number", o.OrderNumber).Stringer("user_id", o.UserID).Msg("service: order created")
	return o, nil
}

// snapshotItems re-validates every cart line against the current catalog and
// freezes name, quantity and the cart's unit price into order items.
func (s *service) snapshotItems(ctx context.Context, c *cart.Cart) ([]Item, error) {
	ids := make([]uuid.UUID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load products: %w", err)
	}

	items := make([]Item, 0, len(c.Items))
	for _, line := range c.Items {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, line.ProductID)
		}
		if !p.Available(line.Quantity) {
			return nil, fmt.Errorf("%w: %s", catalog.ErrInsufficientStock, p.Name)
		}
		items = append(items, Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.Price,
		})
	}
	return items, nil
}

// place allocates an order number and writes the order, its items and the
// stock reservation in one transaction.
func (s *service) place(ctx context.Context, o *Order) error {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number := s.numbers.Next()
		exists, err := s.repo.ExistsByNumber(ctx, number)
		if err != nil {
			return err
		}
		if exists {
			log.Debug().Str("order_number", number).Int("attempt", attempt).Msg("service: order number collision")
			continue
		}

		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate order id: %w", err)
		}
		o.ID = id
		o.OrderNumber = number

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.repo.Create(ctx, o); err != nil {
				return err
			}
			if err := s.ledger.Reserve(ctx, o.ID, o.StockLines()); err != nil {
				return err
			}
			return s.events.Record(ctx, outbox.EventOrderCreated, o.ID.String(), newOrderEvent(o, "", ""))
		})
		if errors.Is(err, ErrOrderNumberTaken) {
			log.Warn().Str("order_number", number).Int("attempt", attempt).Msg("service: order number taken on insert, retrying")
			continue
		}
		return err
	}

	o.ID, o.OrderNumber = uuid.Nil, ""
	return ErrOrderNumberExhausted
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.Owns(o.UserID) && !principal.IsAdmin() {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

func (s *service) GetOrderByNumber(ctx context.Context, principal auth.Principal, number string) (*Order, error) {
	o, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by number: %w", err)
	}
	if !principal.Owns(o.UserID) && !principal.IsAdmin() {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, requested OrderStatus) (*Order, error) {
	if !requested.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.Owns(o.UserID) {
		return nil, ErrNotOrderOwner
	}
	if requested != StatusCancelled {
		return nil, ErrOnlyCancellation
	}

	return s.cancelAndRelease(ctx, o, nil, ReasonUser)
}

func (s *service) AdvanceOrderStatus(ctx context.Context, principal auth.Principal, id uuid.UUID, requested OrderStatus) (*Order, error) {
	if !principal.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if !requested.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	switch requested {
	case StatusCancelled:
		return s.cancelAndRelease(ctx, o, nil, ReasonAdmin)
	case StatusShipped, StatusDelivered, StatusReturned:
		return s.transition(ctx, o, requested, nil, outbox.EventOrderStatusChanged)
	default:
		// confirmed and refund_requested are driven by payments
		return nil, ErrInvalidTransition
	}
}

// cancelAndRelease is the single compensating routine for user cancellation,
// admin cancellation and failed payments. The status compare-and-set and the
// stock release commit together, so stock is restored at most once.
func (s *service) cancelAndRelease(ctx context.Context, o *Order, paymentStatus *PaymentStatus, reason string) (*Order, error) {
	switch o.Status {
	case StatusCancelled:
		log.Info().Stringer("order_id", o.ID).Msg("service: order already cancelled, stock untouched")
		return s.syncCancelledPayment(ctx, o, paymentStatus)
	case StatusShipped, StatusDelivered:
		return nil, ErrCannotCancel
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	previous := o.Status
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.CompareAndSetStatus(ctx, o.ID, previous, StatusCancelled, paymentStatus)
		if err != nil {
			return err
		}
		if !ok {
			return errStatusChanged
		}
		if err := s.ledger.Release(ctx, o.ID, o.StockLines()); err != nil {
			return err
		}
		o.Status = StatusCancelled
		if paymentStatus != nil {
			o.PaymentStatus = *paymentStatus
		}
		return s.events.Record(ctx, outbox.EventOrderCancelled, o.ID.String(), newOrderEvent(o, previous, reason))
	})
	if errors.Is(err, errStatusChanged) {
		o.Status = previous
		current, loadErr := s.loadOrder(ctx, o.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == StatusCancelled {
			log.Info().Stringer("order_id", o.ID).Msg("service: order cancelled concurrently, stock untouched")
			return s.syncCancelledPayment(ctx, current, paymentStatus)
		}
		log.Warn().Stringer("order_id", o.ID).Stringer("observed", previous).Stringer("current", current.Status).Msg("service: cancellation lost status race")
		return nil, ErrInvalidTransition
	}
	if err != nil {
		o.Status = previous
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to cancel order")
		return nil, fmt.Errorf("service: failed to cancel order: %w", err)
	}

	s.metrics.OrderCancelled(reason)
	log.Info().Stringer("order_id", o.ID).Stringer("old_status", previous).Str("reason", reason).Msg("service: order cancelled, stock released")
	return o, nil
}

// syncCancelledPayment records a payment outcome on an order that is already
// cancelled. Stock was released by the cancellation and is not touched.
func (s *service) syncCancelledPayment(ctx context.Context, o *Order, paymentStatus *PaymentStatus) (*Order, error) {
	if paymentStatus == nil || o.PaymentStatus == *paymentStatus {
		return o, nil
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, o.ID, StatusCancelled, StatusCancelled, paymentStatus)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to record payment status of cancelled order")
		return nil, fmt.Errorf("service: failed to record payment status: %w", err)
	}
	if !ok {
		log.Warn().Stringer("order_id", o.ID).Msg("service: cancelled order changed status while recording payment")
		return nil, ErrInvalidTransition
	}

	o.PaymentStatus = *paymentStatus
	log.Info().Stringer("order_id", o.ID).Stringer("payment_status", o.PaymentStatus).Msg("service: payment status recorded on cancelled order")
	return o, nil
}

// transition applies a non-cancelling status change with compare-and-set.
// Re-applying the current status is a no-op.
func (s *service) transition(ctx context.Context, o *Order, to OrderStatus, paymentStatus *PaymentStatus, eventType string) (*Order, error) {
	if o.Status == to {
		return o, nil
	}
	if !CanTransition(o.Status, to) {
		log.Warn().Stringer("order_id", o.ID).Stringer("current_status", o.Status).Stringer("new_status", to).Msg("service: invalid status transition attempt")
		return nil, ErrInvalidTransition
	}

	previous := o.Status
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.CompareAndSetStatus(ctx, o.ID, previous, to, paymentStatus)
		if err != nil {
			return err
		}
		if !ok {
			return errStatusChanged
		}
		o.Status = to
		if paymentStatus != nil {
			o.PaymentStatus = *paymentStatus
		}
		return s.events.Record(ctx, eventType, o.ID.String(), newOrderEvent(o, previous, ""))
	})
	if errors.Is(err, errStatusChanged) {
		o.Status = previous
		current, loadErr := s.loadOrder(ctx, o.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == to {
			return current, nil
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		o.Status = previous
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("old_status", previous).Stringer("new_status", to).Msg("service: order status updated")
	return o, nil
}

func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid := PaymentPaid
	return s.transition(ctx, o, StatusConfirmed, &paid, outbox.EventOrderConfirmed)
}

func (s *service) FailPayment(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	failed := PaymentFailed
	return s.cancelAndRelease(ctx, o, &failed, ReasonPaymentFailed)
}

func (s *service) MarkRefundRequested(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, StatusRefundRequested, nil, outbox.EventOrderStatusChanged)
}

func (s *service) Reorder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*cart.Cart, []uuid.UUID, error) {
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !principal.Owns(o.UserID) {
		return nil, nil, ErrNotOrderOwner
	}

	lines := make([]cart.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, cart.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	c, skipped, err := s.cartFiller.AddItems(ctx, principal.UserID, lines)
	if err != nil {
		if apperror.Kind(err) != nil {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("service: failed to reorder: %w", err)
	}
	if len(skipped) == len(lines) {
		return nil, nil, ErrNothingToReorder
	}

	log.Info().Stringer("order_id", o.ID).Int("skipped", len(skipped)).Msg("service: order items added back to cart")
	return c, skipped, nil
}

func (s *service) GetStats(ctx context.Context, principal auth.Principal) (*Stats, error) {
	stats, err := s.stats.UserStats(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get order stats: %w", err)
	}
	return stats, nil
}
