package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const TopicOrderCreated = "order.created"

// OrderCreatedEvent announces a PROCESSING order whose payment was authorized.
// Consumers decrement stock and clear the buyer's cart.
type OrderCreatedEvent struct {
	EventID     string          `json:"eventId"`
	OrderID     string          `json:"orderId"`
	UserID      string          `json:"userId"`
	Items       []EventItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

type EventItem struct {
	ProductID        string          `json:"productId"`
	Quantity         int             `json:"quantity"`
	PriceAtOrderTime decimal.Decimal `json:"priceAtOrderTime"`
}

func (OrderCreatedEvent) EventName() string { return TopicOrderCreated }

func (e OrderCreatedEvent) EventKey() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	items := make([]EventItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, EventItem{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			PriceAtOrderTime: it.PriceAtOrderTime,
		})
	}
	return OrderCreatedEvent{
		EventID:     uuid.NewString(),
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       items,
		TotalAmount: o.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}
