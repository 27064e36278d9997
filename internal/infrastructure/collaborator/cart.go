package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apporder "github.com/iclalusta/e-commerce-microservice/internal/application/order"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
)

// UserHeader carries the caller's user id to the cart service.
const UserHeader = "X-User-Id"

// CartClient reads carts from the cart service over HTTP.
type CartClient struct {
	*client
}

var _ apporder.CartReader = (*CartClient)(nil)

func NewCartClient(cfg Config, hc *http.Client, tel observability.Observability) *CartClient {
	return &CartClient{client: newClient("cart-service", cfg, hc, tel)}
}

// GetCart returns nil when the user has no cart.
func (c *CartClient) GetCart(ctx context.Context, userID string) (*apporder.CartSnapshot, error) {
	resp, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/cart", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(UserHeader, userID)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &StatusError{Code: resp.status, Body: string(resp.body)}
	}

	var cart apporder.CartSnapshot
	if err := json.Unmarshal(resp.body, &cart); err != nil {
		return nil, fmt.Errorf("cart-service: decode cart: %w", err)
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	return &cart, nil
}
