package cart

import (
	"time"

	"github.com/google/uuid"
)

const TopicCartItemAdded = "cart.item.added"

// ItemAddedEvent records quantity added by one add-to-cart call, not the line total.
type ItemAddedEvent struct {
	EventID       string    `json:"eventId"`
	UserID        string    `json:"userId"`
	ProductID     string    `json:"productId"`
	QuantityAdded int       `json:"quantityAdded"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (ItemAddedEvent) EventName() string { return TopicCartItemAdded }

func (e ItemAddedEvent) EventKey() string { return e.UserID }

func NewItemAddedEvent(userID, productID string, quantity int) ItemAddedEvent {
	return ItemAddedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		ProductID:     productID,
		QuantityAdded: quantity,
		OccurredAt:    time.Now().UTC(),
	}
}
