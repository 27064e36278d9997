package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Request asks the payment collaborator to charge Amount for OrderID.
// OrderID doubles as the idempotency reference on the payment side.
type Request struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

type Result struct {
	Success bool   `json:"success"`
	Status  Status `json:"status,omitempty"`
}

// Authorizer charges an order. An error means the outcome is unknown
// (collaborator unreachable); a declined charge is Result{Success: false}.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (Result, error)
}
