package cart

import "context"

type Repository interface {
	// Get returns ErrNotFound when the user has no cart.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	// Delete is idempotent: deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) error
	// FindByProduct returns every cart holding a line for productID.
	FindByProduct(ctx context.Context, productID string) ([]*Cart, error)
}
