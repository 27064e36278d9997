package order

import "context"

type Repository interface {
	// Insert stores a new order; ErrConflict if the id or (user, idempotency key) exists.
	Insert(ctx context.Context, order *Order) error
	// Update replaces a stored order; ErrNotFound if absent.
	Update(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByUser(ctx context.Context, userID string) ([]*Order, error)
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	FindAll(ctx context.Context) ([]*Order, error)
}
