package order

import (
	"context"
	"errors"
	"strings"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseOrderGet    = "GetOrder"
	useCaseOrderList   = "ListOrders"
	useCaseOrderUpdate = "UpdateOrder"
)

type GetOrderUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewGetOrderUseCase(repo domain.Repository, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, id string) (_ *domain.Order, err error) {
	ctx, run := uc.in.Start(ctx, useCaseOrderGet, attribute.String("order.id", id))
	run.With(observability.F("order_id", id))
	defer func() { run.End(err) }()

	if strings.TrimSpace(id) == "" {
		run.Fail("ORDER_ID_REQUIRED")
		return nil, errs.Validation("order id is required")
	}
	o, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			run.Fail("NOT_FOUND")
		}
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

type ListOrdersInput struct {
	UserID string
	// All lists every order regardless of user (admin listing).
	All bool
}

type ListOrdersUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewListOrdersUseCase(repo domain.Repository, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []*domain.Order, err error) {
	ctx, run := uc.in.Start(ctx, useCaseOrderList,
		attribute.String("user.id", cmd.UserID),
		attribute.Bool("all", cmd.All),
	)
	defer func() { run.End(err) }()

	var orders []*domain.Order
	switch {
	case cmd.All:
		orders, err = uc.repo.FindAll(ctx)
	case strings.TrimSpace(cmd.UserID) == "":
		run.Fail("USER_ID_REQUIRED")
		return nil, domain.ErrMissingUser
	default:
		orders, err = uc.repo.FindByUser(ctx, cmd.UserID)
	}
	if err != nil {
		run.Fail("REPO_QUERY_FAILED")
		return nil, wrapRepositoryError(err)
	}
	run.With(observability.F("count", len(orders)))
	return orders, nil
}

type UpdateOrderInput struct {
	ID              string
	ShippingAddress *string
	Status          *string
}

// UpdateOrderUseCase applies a manual edit. Status changes obey the forward-only
// state machine; a blank shipping address leaves the stored one untouched.
type UpdateOrderUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewUpdateOrderUseCase(repo domain.Repository, tel observability.Observability) *UpdateOrderUseCase {
	return &UpdateOrderUseCase{repo: repo, in: application.NewInstruments(tel, orderService)}
}

func (uc *UpdateOrderUseCase) Execute(ctx context.Context, cmd UpdateOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.in.Start(ctx, useCaseOrderUpdate, attribute.String("order.id", cmd.ID))
	run.With(observability.F("order_id", cmd.ID))
	defer func() { run.End(err) }()

	var target domain.Status
	if cmd.Status != nil {
		if target, err = domain.ParseStatus(*cmd.Status); err != nil {
			run.Fail("STATUS_INVALID")
			return nil, err
		}
	}

	o, err := uc.repo.FindByID(ctx, cmd.ID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}

	from := o.Status
	changed := false
	if cmd.ShippingAddress != nil {
		changed = o.ChangeShippingAddress(*cmd.ShippingAddress)
	}
	if target != "" && target != o.Status {
		if err := o.TransitionTo(target); err != nil {
			run.Fail("STATE_TRANSITION_REJECTED")
			return nil, err
		}
		changed = true
	}
	if !changed {
		run.Mark("UNCHANGED")
		return o, nil
	}

	if err := uc.repo.Update(ctx, o); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, wrapRepositoryError(err)
	}
	run.With(
		observability.F("from_status", string(from)),
		observability.F("to_status", string(o.Status)),
	)
	return o, nil
}
