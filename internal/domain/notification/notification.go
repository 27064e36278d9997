// Package notification holds the messages sent to buyers about their orders.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
)

const StatusSent = "SENT"

var ErrMissingRecipient = fmt.Errorf("notification: %w: user id and order id are required", errs.ErrValidation)

type Notification struct {
	ID        string
	UserID    string
	OrderID   string
	Message   string
	Status    string
	CreatedAt time.Time
}

// OrderCreated builds the notice for a newly created order. Its ID is derived
// from the order so a redelivered order.created overwrites the same record.
func OrderCreated(userID, orderID string, at time.Time) (*Notification, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(orderID) == "" {
		return nil, ErrMissingRecipient
	}
	return &Notification{
		ID:        "order-created-" + orderID,
		UserID:    userID,
		OrderID:   orderID,
		Message:   fmt.Sprintf("Dear %s, your order %s has been created successfully.", userID, orderID),
		Status:    StatusSent,
		CreatedAt: at.UTC(),
	}, nil
}

type Repository interface {
	// Save inserts n, or replaces the record with the same ID.
	Save(ctx context.Context, n *Notification) error
	// List returns at most limit notifications, oldest first, after skipping offset.
	List(ctx context.Context, offset, limit int) ([]*Notification, error)
}
