package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
)

// stepOutcome tells the orchestrator how to continue after a saga step.
type stepOutcome string

const (
	// proceed runs the next step.
	proceed stepOutcome = "proceed"
	// abort stops without compensation; whatever was persisted stays as is.
	abort stepOutcome = "abort"
	// declined marks the order FAILED, persists it and emits nothing.
	declined stepOutcome = "declined"
)

type stepResult struct {
	step    string
	outcome stepOutcome
	status  string
	err     error
}

func advance(step string) stepResult { return stepResult{step: step, outcome: proceed, status: "OK"} }

func stop(step, status string, err error) stepResult {
	return stepResult{step: step, outcome: abort, status: status, err: err}
}

func decline(step, status string, err error) stepResult {
	return stepResult{step: step, outcome: declined, status: status, err: err}
}

// sagaState is threaded through the steps of one createOrder call.
type sagaState struct {
	cmd   CreateOrderInput
	cart  *CartSnapshot
	order *domain.Order
}

type sagaStep struct {
	name string
	run  func(ctx context.Context, s *sagaState) stepResult
}

const (
	stepFetchCart         = "fetch_cart"
	stepPersistPending    = "persist_pending"
	stepAuthorizePayment  = "authorize_payment"
	stepPersistProcessing = "persist_processing"
	stepPublishEvent      = "publish_event"

	cartPeer     = "cart-service"
	paymentPeer  = "payment-service"
	busPeer      = "event-bus"
	cartEndpoint = "GET /cart"
	payEndpoint  = "POST /payments"
)

func (uc *CreateOrderUseCase) steps() []sagaStep {
	return []sagaStep{
		{stepFetchCart, uc.fetchCart},
		{stepPersistPending, uc.persistPending},
		{stepAuthorizePayment, uc.authorizePayment},
		{stepPersistProcessing, uc.persistProcessing},
		{stepPublishEvent, uc.publishCreated},
	}
}

func (uc *CreateOrderUseCase) fetchCart(ctx context.Context, s *sagaState) stepResult {
	start := time.Now()
	cart, err := uc.carts.GetCart(ctx, s.cmd.UserID)
	uc.ext.Observe(cartPeer, cartEndpoint, start, err)
	if err != nil {
		return stop(stepFetchCart, "CART_UNAVAILABLE", errs.External(cartPeer, err))
	}
	if cart == nil || len(cart.Items) == 0 {
		return stop(stepFetchCart, "CART_EMPTY", fmt.Errorf("user %s: %w", s.cmd.UserID, errs.ErrEmptyCart))
	}
	s.cart = cart
	return advance(stepFetchCart)
}

func (uc *CreateOrderUseCase) persistPending(ctx context.Context, s *sagaState) stepResult {
	items := make([]domain.Item, 0, len(s.cart.Items))
	for _, line := range s.cart.Items {
		items = append(items, domain.Item{
			ProductID:        line.ProductID,
			Quantity:         line.Quantity,
			PriceAtOrderTime: line.Price,
		})
	}
	entity, err := domain.New(uc.ids.NewID(), s.cmd.UserID, s.cmd.ShippingAddress, items)
	if err != nil {
		return stop(stepPersistPending, "DOMAIN_CONSTRUCTION_FAILED", err)
	}
	entity.IdempotencyKey = s.cmd.IdempotencyKey

	if err := uc.repo.Insert(ctx, entity); err != nil {
		return stop(stepPersistPending, "REPO_INSERT_FAILED", wrapRepositoryError(err))
	}
	s.order = entity
	return advance(stepPersistPending)
}

func (uc *CreateOrderUseCase) authorizePayment(ctx context.Context, s *sagaState) stepResult {
	start := time.Now()
	res, err := uc.payments.Authorize(ctx, pay.Request{OrderID: s.order.ID, Amount: s.order.TotalAmount})
	uc.ext.Observe(paymentPeer, payEndpoint, start, err)
	switch {
	case err != nil:
		return decline(stepAuthorizePayment, "PAYMENT_UNAVAILABLE", errs.External(paymentPeer, err))
	case !res.Success:
		return decline(stepAuthorizePayment, "PAYMENT_DECLINED",
			fmt.Errorf("order %s: %w", s.order.ID, errs.ErrPaymentDeclined))
	}
	return advance(stepAuthorizePayment)
}

func (uc *CreateOrderUseCase) persistProcessing(ctx context.Context, s *sagaState) stepResult {
	if err := s.order.PaymentAuthorized(); err != nil {
		return stop(stepPersistProcessing, "STATE_TRANSITION_FAILED", err)
	}
	if err := uc.repo.Update(ctx, s.order); err != nil {
		return stop(stepPersistProcessing, "REPO_UPDATE_FAILED", wrapRepositoryError(err))
	}
	return advance(stepPersistProcessing)
}

func (uc *CreateOrderUseCase) publishCreated(ctx context.Context, s *sagaState) stepResult {
	pubCtx, cancel := context.WithTimeout(ctx, uc.publishTimeout)
	defer cancel()

	start := time.Now()
	err := uc.publisher.Publish(pubCtx, domain.NewOrderCreatedEvent(s.order))
	uc.ext.Observe(busPeer, domain.TopicOrderCreated, start, err)
	if err != nil {
		status := "EVENT_PUBLISH_FAILED"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "EVENT_PUBLISH_TIMEOUT"
		}
		return stop(stepPublishEvent, status, errs.External(busPeer, err))
	}
	return advance(stepPublishEvent)
}

// compensateDeclined records the FAILED outcome. The decline error is
// kept even when persisting fails so callers still see why the order failed.
func (uc *CreateOrderUseCase) compensateDeclined(ctx context.Context, s *sagaState, res stepResult, log observability.Logger) error {
	if err := s.order.PaymentDeclined(res.status); err != nil {
		return errors.Join(res.err, err)
	}
	if err := uc.repo.Update(ctx, s.order); err != nil {
		log.Error("order_fail_persist_failed",
			observability.F("order_id", s.order.ID),
			observability.Err(err),
		)
		return errors.Join(res.err, wrapRepositoryError(err))
	}
	return res.err
}
