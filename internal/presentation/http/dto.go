package httppresentation

import (
	"time"

	"github.com/shopspring/decimal"

	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
)

type createOrderRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

type updateOrderRequest struct {
	ShippingAddress *string `json:"shippingAddress,omitempty"`
	Status          *string `json:"status,omitempty"`
}

type orderItemResponse struct {
	ProductID        string          `json:"productId"`
	Quantity         int             `json:"quantity"`
	PriceAtOrderTime decimal.Decimal `json:"priceAtOrderTime"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shippingAddress"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	Items           []orderItemResponse `json:"items"`
	FailureReason   string              `json:"failureReason,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			PriceAtOrderTime: it.PriceAtOrderTime,
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		Items:           items,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderResponses(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartItemResponse struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type cartResponse struct {
	UserID    string             `json:"userId"`
	Items     []cartItemResponse `json:"items"`
	Total     decimal.Decimal    `json:"total"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// toCartResponse renders a missing cart as an empty one for userID.
func toCartResponse(userID string, c *domcart.Cart) cartResponse {
	if c == nil {
		return cartResponse{UserID: userID, Items: []cartItemResponse{}, Total: decimal.Zero}
	}
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemResponse{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return cartResponse{UserID: c.UserID, Items: items, Total: c.Total(), UpdatedAt: c.UpdatedAt}
}

type createProductRequest struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type increaseStockRequest struct {
	Quantity int `json:"quantity"`
}

type updateProductRequest struct {
	Name  *string          `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Stock *int             `json:"stock,omitempty"`
}

type productResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toProductResponse(p *domproduct.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
	}
}
