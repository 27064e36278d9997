package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService        = "payment-service"
	useCaseAuthorize      = "AuthorizePayment"
	defaultPaymentSuccess = 1.0
	defaultRemembered     = 10000
)

// AuthorizePaymentUseCase simulates the payment collaborator behind POST /payments.
// Results are remembered per order so a retried request gets the same answer.
// Only the most recent orders are remembered; older ones are forgotten first.
type AuthorizePaymentUseCase struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	results     map[string]pay.Result
	// ring holds remembered order ids in arrival order; next is the slot to reuse.
	ring []string
	next int
	in   application.Instruments
}

var _ pay.Authorizer = (*AuthorizePaymentUseCase)(nil)

type Option func(*AuthorizePaymentUseCase)

// WithRemembered caps how many order results are kept for replay.
func WithRemembered(n int) Option {
	return func(uc *AuthorizePaymentUseCase) {
		if n > 0 {
			uc.ring = make([]string, n)
		}
	}
}

func NewAuthorizePaymentUseCase(successRate float64, tel observability.Observability, opts ...Option) *AuthorizePaymentUseCase {
	uc := &AuthorizePaymentUseCase{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: defaultPaymentSuccess,
		results:     make(map[string]pay.Result),
		ring:        make([]string, defaultRemembered),
		in:          application.NewInstruments(tel, paymentService),
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.SetSuccessRate(successRate)
	return uc
}

func (uc *AuthorizePaymentUseCase) Execute(ctx context.Context, req pay.Request) (_ pay.Result, err error) {
	ctx, run := uc.in.Start(ctx, useCaseAuthorize,
		attribute.String("order.id", req.OrderID),
		attribute.String("payment.amount", req.Amount.String()),
	)
	run.With(observability.F("order_id", req.OrderID), observability.F("amount", req.Amount.String()))
	defer func() { run.End(err) }()

	if req.OrderID == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return pay.Result{}, errs.Validation("orderId is required")
	}
	if req.Amount.IsNegative() {
		run.Fail("AMOUNT_INVALID")
		return pay.Result{}, errs.Validation("amount must be zero or greater")
	}
	if err := ctx.Err(); err != nil {
		run.Fail("CANCELLED")
		return pay.Result{}, err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if res, ok := uc.results[req.OrderID]; ok {
		run.Mark("REPLAYED")
		return res, nil
	}

	res := pay.Result{Success: true, Status: pay.StatusCompleted}
	if uc.random.Float64() >= uc.successRate {
		res = pay.Result{Success: false, Status: pay.StatusFailed}
		run.Mark("DECLINED")
	}
	uc.remember(req.OrderID, res)
	return res, nil
}

// remember stores res, evicting the oldest order once the ring is full. Callers hold mu.
func (uc *AuthorizePaymentUseCase) remember(orderID string, res pay.Result) {
	if old := uc.ring[uc.next]; old != "" {
		delete(uc.results, old)
	}
	uc.ring[uc.next] = orderID
	uc.next = (uc.next + 1) % len(uc.ring)
	uc.results[orderID] = res
}

// Remembered reports how many order results are currently kept.
func (uc *AuthorizePaymentUseCase) Remembered() int {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return len(uc.results)
}

// Authorize lets the simulator stand in for the remote collaborator in-process.
func (uc *AuthorizePaymentUseCase) Authorize(ctx context.Context, req pay.Request) (pay.Result, error) {
	return uc.Execute(ctx, req)
}

// SetSuccessRate adjusts the approval probability, clamped to [0, 1].
func (uc *AuthorizePaymentUseCase) SetSuccessRate(rate float64) {
	uc.mu.Lock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	uc.successRate = rate
	uc.mu.Unlock()
}
