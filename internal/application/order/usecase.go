package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	pay "github.com/iclalusta/e-commerce-microservice/internal/domain/payment"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService          = "order-service"
	useCaseOrderCreate    = "CreateOrder"
	defaultPublishTimeout = 5 * time.Second
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

type CreateOrderInput struct {
	UserID          string
	ShippingAddress string
	// IdempotencyKey is optional; a repeated (user, key) returns the first order.
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order    *domain.Order
	Replayed bool
}

// CreateOrderUseCase orchestrates the order saga: cart, pending order, payment,
// processing order, order.created. Nothing is rolled back implicitly; each step
// reports a stepResult and the orchestrator decides what to persist or emit.
type CreateOrderUseCase struct {
	repo      domain.Repository
	carts     CartReader
	payments  pay.Authorizer
	publisher domoutbox.Publisher
	ids       IDGenerator

	publishTimeout time.Duration

	in  application.Instruments
	ext application.External
}

type CreateOrderOption func(*CreateOrderUseCase)

// WithPublishTimeout bounds the synchronous publish of order.created.
func WithPublishTimeout(d time.Duration) CreateOrderOption {
	return func(uc *CreateOrderUseCase) {
		if d > 0 {
			uc.publishTimeout = d
		}
	}
}

// NewCreateOrderUseCase wires the dependencies required to execute the use case.
func NewCreateOrderUseCase(
	repo domain.Repository,
	carts CartReader,
	payments pay.Authorizer,
	publisher domoutbox.Publisher,
	ids IDGenerator,
	tel observability.Observability,
	opts ...CreateOrderOption,
) *CreateOrderUseCase {
	uc := &CreateOrderUseCase{
		repo:           repo,
		carts:          carts,
		payments:       payments,
		publisher:      publisher,
		ids:            ids,
		publishTimeout: defaultPublishTimeout,
		in:             application.NewInstruments(tel, orderService),
		ext:            application.NewExternal(tel),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, run := uc.in.Start(ctx, useCaseOrderCreate,
		attribute.String("user.id", cmd.UserID),
		attribute.Bool("idempotency.provided", cmd.IdempotencyKey != ""),
	)
	run.With(observability.F("user_id", cmd.UserID))
	defer func() { run.End(err) }()

	if strings.TrimSpace(cmd.UserID) == "" {
		run.Fail("USER_ID_REQUIRED")
		return nil, domain.ErrMissingUser
	}
	if strings.TrimSpace(cmd.ShippingAddress) == "" {
		run.Fail("SHIPPING_ADDRESS_REQUIRED")
		return nil, domain.ErrMissingAddress
	}

	if cmd.IdempotencyKey != "" {
		existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.UserID, cmd.IdempotencyKey)
		switch {
		case lookupErr == nil:
			run.Mark("IDEMPOTENT_REPLAY")
			run.With(observability.F("order_id", existing.ID))
			return &CreateOrderResult{Order: existing, Replayed: true}, nil
		case !errors.Is(lookupErr, domain.ErrNotFound):
			run.Fail("IDEMPOTENCY_LOOKUP_FAILED")
			return nil, wrapRepositoryError(lookupErr)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		run.Fail("CONTEXT_CANCELED")
		return nil, ctxErr
	}

	// Once started the saga runs to the end: a caller going away must not strand
	// an authorized payment on a PENDING order. Steps carry their own timeouts.
	sagaCtx := context.WithoutCancel(ctx)
	span := trace.SpanFromContext(ctx)
	state := &sagaState{cmd: cmd}
	for _, step := range uc.steps() {
		res := step.run(sagaCtx, state)
		span.AddEvent("saga."+step.name, trace.WithAttributes(attribute.String("outcome", string(res.outcome))))
		run.Logger().Debug("saga_step",
			observability.F("step", res.step),
			observability.F("outcome", string(res.outcome)),
			observability.F("status", res.status),
		)

		switch res.outcome {
		case proceed:
			continue
		case declined:
			run.Fail(res.status)
			run.With(observability.F("order_id", state.order.ID))
			return uc.partial(state), uc.compensateDeclined(sagaCtx, state, res, run.Logger())
		default:
			run.Fail(res.status)
			if state.order != nil {
				run.With(observability.F("order_id", state.order.ID))
			}
			return uc.partial(state), res.err
		}
	}

	span.SetAttributes(
		attribute.String("order.id", state.order.ID),
		attribute.String("order.status", string(state.order.Status)),
	)
	run.With(
		observability.F("order_id", state.order.ID),
		observability.F("total_amount", state.order.TotalAmount.String()),
		observability.F("items", len(state.order.Items)),
	)
	return &CreateOrderResult{Order: state.order}, nil
}

// partial exposes the order persisted so far, if any, alongside a saga error.
func (uc *CreateOrderUseCase) partial(s *sagaState) *CreateOrderResult {
	if s.order == nil {
		return nil
	}
	return &CreateOrderResult{Order: s.order}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
