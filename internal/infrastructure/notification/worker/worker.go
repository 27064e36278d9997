package worker

import (
	"context"

	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	workerpresentation "github.com/iclalusta/e-commerce-microservice/internal/presentation/worker"
)

const component = "notification_worker"

// Worker notifies buyers when their order is created.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    *appnotification.NotifyOrderCreatedUseCase
	tel        observability.Observability
}

func New(subscriber domoutbox.Subscriber, useCase *appnotification.NotifyOrderCreatedUseCase, tel observability.Observability) *Worker {
	return &Worker{
		subscriber: subscriber,
		useCase:    useCase,
		tel:        observability.Resolve(tel),
	}
}

// Start registers the handler; call it before the bus starts.
func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(domorder.TopicOrderCreated, workerpresentation.Handle(w.tel, component,
		func(e domorder.OrderCreatedEvent) string { return e.EventID },
		w.handleOrderCreated,
	))
}

func (w *Worker) handleOrderCreated(ctx context.Context, evt domorder.OrderCreatedEvent) error {
	logger := logctx.FromOr(ctx, w.tel.Logger())

	n, err := w.useCase.Execute(ctx, evt)
	if err != nil {
		logger.Warn("notification_failed", observability.F("order_id", evt.OrderID), observability.Err(err))
		return err
	}
	logger.Info("notification_sent",
		observability.F("order_id", evt.OrderID),
		observability.F("notification_id", n.ID),
	)
	return nil
}
