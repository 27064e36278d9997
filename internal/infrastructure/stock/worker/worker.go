package worker

import (
	"context"

	appstock "github.com/iclalusta/e-commerce-microservice/internal/application/stock"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	workerpresentation "github.com/iclalusta/e-commerce-microservice/internal/presentation/worker"
)

const component = "stock_worker"

// Worker applies order.created to product stock.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    *appstock.ReconcileStockUseCase
	tel        observability.Observability
}

func New(subscriber domoutbox.Subscriber, useCase *appstock.ReconcileStockUseCase, tel observability.Observability) *Worker {
	return &Worker{
		subscriber: subscriber,
		useCase:    useCase,
		tel:        observability.Resolve(tel),
	}
}

// Start registers the handlers; call it before the bus starts.
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

	res, err := w.useCase.Execute(ctx, evt)
	if err != nil {
		logger.Warn("stock_reconciliation_failed", observability.F("order_id", evt.OrderID), observability.Err(err))
		return err
	}

	logger.Debug("stock_reconciled",
		observability.F("order_id", evt.OrderID),
		observability.F("applied", len(res.Applied)),
		observability.F("duplicates", len(res.Duplicates)),
	)
	return nil
}
