package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = fmt.Errorf("order: %w", errs.ErrNotFound)
	ErrConflict               = fmt.Errorf("order: %w", errs.ErrConflict)
	ErrNoItems                = fmt.Errorf("order: %w", errs.ErrEmptyCart)
	ErrInvalidQuantity        = fmt.Errorf("order: %w: quantity must be greater than zero", errs.ErrValidation)
	ErrInvalidPrice           = fmt.Errorf("order: %w: price must be zero or greater", errs.ErrValidation)
	ErrMissingUser            = fmt.Errorf("order: %w: userId is required", errs.ErrValidation)
	ErrMissingAddress         = fmt.Errorf("order: %w: shippingAddress is required", errs.ErrValidation)
	ErrUnknownStatus          = fmt.Errorf("order: %w: unknown status", errs.ErrValidation)
	ErrInvalidStateTransition = fmt.Errorf("order: %w: invalid state transition", errs.ErrValidation)
	ErrReservedTransition     = fmt.Errorf("order: %w: status is set by checkout only", errs.ErrValidation)
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// ParseStatus accepts the canonical upper-case names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Item is an order line. PriceAtOrderTime is frozen when the order is built.
type Item struct {
	ProductID        string
	Quantity         int
	PriceAtOrderTime decimal.Decimal
}

// Subtotal is PriceAtOrderTime × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.PriceAtOrderTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              string
	UserID          string
	IdempotencyKey  string
	Status          Status
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Items           []Item
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	state OrderState
}

// New builds a PENDING order whose total is the sum of its line subtotals.
func New(id, userID, shippingAddress string, items []Item) (*Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	if strings.TrimSpace(shippingAddress) == "" {
		return nil, ErrMissingAddress
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	lines := make([]Item, len(items))
	total := decimal.Zero
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		if it.PriceAtOrderTime.IsNegative() {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidPrice, it.ProductID)
		}
		lines[i] = it
		total = total.Add(it.Subtotal())
	}

	now := time.Now().UTC()
	o := &Order{
		ID:              id,
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		TotalAmount:     total,
		Items:           lines,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.state = stateFor(StatusPending)
	return o, nil
}

// Restore rebuilds an order loaded from storage, trusting its persisted status.
func Restore(o *Order) *Order {
	if o == nil {
		return nil
	}
	o.state = stateFor(o.Status)
	return o
}

// PaymentAuthorized moves PENDING to PROCESSING.
func (o *Order) PaymentAuthorized() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnPaymentAuthorized(o) })
}

// PaymentDeclined moves PENDING to FAILED.
func (o *Order) PaymentDeclined(reason string) error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnPaymentDeclined(o, reason) })
}

// Complete moves PROCESSING to COMPLETED.
func (o *Order) Complete() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnFulfilled(o) })
}

// Cancel moves a non-terminal order to CANCELLED.
func (o *Order) Cancel() error {
	return o.apply(func(s OrderState) (OrderState, error) { return s.OnCancelled(o) })
}

// TransitionTo applies a manual status change. PROCESSING and FAILED are
// reached through checkout only, so a manual edit may cancel an order or
// complete a PROCESSING one.
func (o *Order) TransitionTo(target Status) error {
	if target == o.Status {
		return nil
	}
	switch target {
	case StatusCompleted:
		return o.Complete()
	case StatusCancelled:
		return o.Cancel()
	case StatusProcessing, StatusFailed:
		return fmt.Errorf("%w: %s -> %s", ErrReservedTransition, o.Status, target)
	case StatusPending:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.Status, target)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
}

// ChangeShippingAddress replaces the address; blank values are ignored.
func (o *Order) ChangeShippingAddress(addr string) bool {
	if strings.TrimSpace(addr) == "" || addr == o.ShippingAddress {
		return false
	}
	o.ShippingAddress = addr
	o.touch()
	return true
}

// Clone returns a deep copy safe to hand out of a repository.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}

func (o *Order) apply(fn func(OrderState) (OrderState, error)) error {
	if o.state == nil {
		o.state = stateFor(o.Status)
	}
	from := o.Status
	next, err := fn(o.state)
	if err != nil {
		return fmt.Errorf("%w: %s", err, from)
	}
	o.state = next
	if next.Status() != from {
		o.Status = next.Status()
		o.touch()
	}
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
