package worker

import (
	"context"

	appcartsync "github.com/iclalusta/e-commerce-microservice/internal/application/cartsync"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	workerpresentation "github.com/iclalusta/e-commerce-microservice/internal/presentation/worker"
)

const component = "cart_sync_worker"

// Worker keeps carts in line with order.created and product.updated.
type Worker struct {
	subscriber domoutbox.Subscriber
	clear      *appcartsync.ClearCartUseCase
	sync       *appcartsync.SyncProductUseCase
	tel        observability.Observability
}

func New(
	subscriber domoutbox.Subscriber,
	clear *appcartsync.ClearCartUseCase,
	sync *appcartsync.SyncProductUseCase,
	tel observability.Observability,
) *Worker {
	return &Worker{
		subscriber: subscriber,
		clear:      clear,
		sync:       sync,
		tel:        observability.Resolve(tel),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	if w.clear != nil {
		w.subscriber.Subscribe(domorder.TopicOrderCreated, workerpresentation.Handle(w.tel, component,
			func(e domorder.OrderCreatedEvent) string { return e.EventID },
			w.handleOrderCreated,
		))
	}
	if w.sync != nil {
		w.subscriber.Subscribe(domproduct.TopicProductUpdated, workerpresentation.Handle(w.tel, component,
			func(e domproduct.ProductUpdatedEvent) string { return e.EventID },
			w.handleProductUpdated,
		))
	}
}

func (w *Worker) handleOrderCreated(ctx context.Context, evt domorder.OrderCreatedEvent) error {
	if _, err := w.clear.Execute(ctx, evt); err != nil {
		logctx.FromOr(ctx, w.tel.Logger()).Warn("cart_clear_failed",
			observability.F("user_id", evt.UserID),
			observability.Err(err),
		)
		return err
	}
	return nil
}

func (w *Worker) handleProductUpdated(ctx context.Context, evt domproduct.ProductUpdatedEvent) error {
	if _, err := w.sync.Execute(ctx, evt); err != nil {
		logctx.FromOr(ctx, w.tel.Logger()).Warn("cart_sync_failed",
			observability.F("product_id", evt.ProductID),
			observability.Err(err),
		)
		return err
	}
	return nil
}
