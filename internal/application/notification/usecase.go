package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/application"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/notification"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	notificationService = "notification-service"
	DefaultLimit        = 100
	maxLimit            = 1000
)

// NotifyOrderCreatedUseCase records the buyer's notice for an order.created event.
type NotifyOrderCreatedUseCase struct {
	repo domain.Repository
	now  func() time.Time
	in   application.Instruments
}

func NewNotifyOrderCreatedUseCase(repo domain.Repository, tel observability.Observability) *NotifyOrderCreatedUseCase {
	return &NotifyOrderCreatedUseCase{
		repo: repo,
		now:  time.Now,
		in:   application.NewInstruments(tel, notificationService),
	}
}

func (uc *NotifyOrderCreatedUseCase) Execute(ctx context.Context, evt domorder.OrderCreatedEvent) (_ *domain.Notification, err error) {
	ctx, run := uc.in.Start(ctx, "NotifyOrderCreated",
		attribute.String("order.id", evt.OrderID),
		attribute.String("user.id", evt.UserID),
	)
	run.With(observability.F("order_id", evt.OrderID), observability.F("user_id", evt.UserID))
	defer func() { run.End(err) }()

	n, err := domain.OrderCreated(evt.UserID, evt.OrderID, uc.now())
	if err != nil {
		// Redelivering an event without a recipient cannot succeed.
		run.Fail("MISSING_RECIPIENT")
		return nil, domoutbox.Permanent(err)
	}
	if err = uc.repo.Save(ctx, n); err != nil {
		run.Fail("REPO_SAVE_FAILED")
		return nil, fmt.Errorf("notification: save: %w", err)
	}
	run.With(observability.F("notification_id", n.ID))
	return n, nil
}

type ListInput struct {
	Skip  int
	Limit int
}

type ListNotificationsUseCase struct {
	repo domain.Repository
	in   application.Instruments
}

func NewListNotificationsUseCase(repo domain.Repository, tel observability.Observability) *ListNotificationsUseCase {
	return &ListNotificationsUseCase{repo: repo, in: application.NewInstruments(tel, notificationService)}
}

// Execute pages through notifications. A zero limit means DefaultLimit.
func (uc *ListNotificationsUseCase) Execute(ctx context.Context, input ListInput) (_ []*domain.Notification, err error) {
	ctx, run := uc.in.Start(ctx, "ListNotifications")
	defer func() { run.End(err) }()

	if input.Skip < 0 || input.Limit < 0 {
		run.Fail("INVALID_PAGE")
		return nil, errs.Validation("skip and limit must be zero or greater")
	}
	limit := input.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, maxLimit)

	out, err := uc.repo.List(ctx, input.Skip, limit)
	if err != nil {
		run.Fail("REPO_LIST_FAILED")
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	run.With(observability.F("count", len(out)))
	return out, nil
}
