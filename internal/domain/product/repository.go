package product

import "context"

type Repository interface {
	// Get returns ErrNotFound when the product does not exist.
	Get(ctx context.Context, id string) (*Product, error)
	// Save persists p with optimistic concurrency: a new product is inserted,
	// an existing one is replaced only if its stored version is p.Version-1.
	// A lost race returns ErrConflict.
	Save(ctx context.Context, p *Product) error
	// List returns every product ordered by id.
	List(ctx context.Context) ([]*Product, error)
	// Delete returns ErrNotFound when the product does not exist.
	Delete(ctx context.Context, id string) error
}
