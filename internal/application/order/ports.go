package order

import (
	"context"

	"github.com/shopspring/decimal"
)

type IDGenerator interface {
	NewID() string
}

// CartLine is one line of the cart as reported by the cart collaborator.
type CartLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CartSnapshot is the read model of a user's cart at order time.
type CartSnapshot struct {
	UserID string     `json:"userId"`
	Items  []CartLine `json:"items"`
}

// CartReader fetches a user's cart. It returns (nil, nil) when the user has no cart
// and an error only when the collaborator could not be reached.
type CartReader interface {
	GetCart(ctx context.Context, userID string) (*CartSnapshot, error)
}
