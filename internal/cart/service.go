package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
)

type ProductReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Line is a product and quantity to put into a cart.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
	// AddItems adds every line that is currently purchasable at the current
	// price and reports the products that were skipped.
	AddItems(ctx context.Context, userID uuid.UUID, lines []Line) (*Cart, []uuid.UUID, error)
}

type service struct {
	repo     Repository
	products ProductReader
	tx       Transactor
}

func NewService(repo Repository, products ProductReader, tx Transactor) Service {
	return &service{repo: repo, products: products, tx: tx}
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		return Empty(userID), nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to get cart")
	}
	return c, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to load product")
	}

	var result *Cart
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if !product.Available(c.QuantityOf(productID) + qty) {
			return fmt.Errorf("%w: %s", catalog.ErrInsufficientStock, product.Name)
		}
		c.Add(productID, qty, product.Price.Current())
		if err := s.repo.ReplaceItems(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to add item to cart")
	}

	log.Debug().Stringer("user_id", userID).Stringer("product_id", productID).Int("quantity", qty).Msg("service: item added to cart")
	return result, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	var result *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if c.QuantityOf(productID) == 0 {
			return ErrItemNotFound
		}
		product, err := s.products.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if !product.Available(qty) {
			return fmt.Errorf("%w: %s", catalog.ErrInsufficientStock, product.Name)
		}
		if err := c.SetQuantity(productID, qty, product.Price.Current()); err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to update cart item")
	}
	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*Cart, error) {
	var result *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		c.Remove(productID)
		if err := s.repo.ReplaceItems(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(err, "service: failed to remove cart item")
	}
	return result, nil
}

func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return apperror.Wrap(err, "service: failed to clear cart")
	}
	log.Info().Stringer("user_id", userID).Msg("service: cart cleared")
	return nil
}

func (s *service) AddItems(ctx context.Context, userID uuid.UUID, lines []Line) (*Cart, []uuid.UUID, error) {
	var (
		result  *Cart
		skipped []uuid.UUID
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.Quantity < 1 {
				continue
			}
			product, err := s.products.GetByID(ctx, line.ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				skipped = append(skipped, line.ProductID)
				continue
			}
			if err != nil {
				return err
			}
			if !product.Available(c.QuantityOf(line.ProductID) + line.Quantity) {
				skipped = append(skipped, line.ProductID)
				continue
			}
			c.Add(line.ProductID, line.Quantity, product.Price.Current())
		}
		if err := s.repo.ReplaceItems(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, nil, apperror.Wrap(err, "service: failed to add items to cart")
	}
	return result, skipped, nil
}
