package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
)

// PaymentClient asks the payment service to authorize an order's amount.
// Retries are safe: the payment service answers repeated requests for one
// order with the first result.
type PaymentClient struct {
	*client
}

var _ pay.Authorizer = (*PaymentClient)(nil)

func NewPaymentClient(cfg Config, hc *http.Client, tel observability.Observability) *PaymentClient {
	return &PaymentClient{client: newClient("payment-service", cfg, hc, tel)}
}

func (c *PaymentClient) Authorize(ctx context.Context, r pay.Request) (pay.Result, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return pay.Result{}, err
	}

	resp, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/payments", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return pay.Result{}, err
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated, http.StatusPaymentRequired:
	default:
		return pay.Result{}, &StatusError{Code: resp.status, Body: string(resp.body)}
	}

	var out pay.Result
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return pay.Result{}, fmt.Errorf("payment-service: decode result: %w", err)
	}
	if out.Status == "" {
		out.Status = pay.StatusFailed
		if out.Success {
			out.Status = pay.StatusCompleted
		}
	}
	return out, nil
}
