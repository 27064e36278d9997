package collaborator

import (
	"context"
	"errors"

	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
)

// LocalCarts reads carts straight from the cart store when the cart service
// runs in the same process.
type LocalCarts struct {
	repo domcart.Repository
}

var _ apporder.CartReader = (*LocalCarts)(nil)

func NewLocalCarts(repo domcart.Repository) *LocalCarts {
	return &LocalCarts{repo: repo}
}

func (l *LocalCarts) GetCart(ctx context.Context, userID string) (*apporder.CartSnapshot, error) {
	c, err := l.repo.Get(ctx, userID)
	if errors.Is(err, domcart.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := &apporder.CartSnapshot{UserID: c.UserID, Items: make([]apporder.CartLine, 0, len(c.Items))}
	for _, it := range c.Items {
		snap.Items = append(snap.Items, apporder.CartLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return snap, nil
}
