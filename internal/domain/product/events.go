package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const TopicProductUpdated = "product.updated"

// ProductUpdatedEvent is a full snapshot of a product after a change.
// Version is zero when the producer does not track versions.
type ProductUpdatedEvent struct {
	EventID    string          `json:"eventId"`
	ProductID  string          `json:"productId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Version    int64           `json:"version,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (ProductUpdatedEvent) EventName() string { return TopicProductUpdated }

func (e ProductUpdatedEvent) EventKey() string { return e.ProductID }

// OutOfStock reports whether carts must drop the product.
func (e ProductUpdatedEvent) OutOfStock() bool { return e.Stock <= 0 }

func NewProductUpdatedEvent(p *Product) ProductUpdatedEvent {
	return ProductUpdatedEvent{
		EventID:    uuid.NewString(),
		ProductID:  p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		Version:    p.Version,
		OccurredAt: time.Now().UTC(),
	}
}
