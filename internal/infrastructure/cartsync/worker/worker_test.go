package worker_test

import (
	"context"
	"testing"
	"time"

	appcartsync "github.com/iclalusta/e-commerce-microservice/internal/application/cartsync"
	domcart "github.com/iclalusta/e-commerce-microservice/internal/domain/cart"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	domproduct "github.com/iclalusta/e-commerce-microservice/internal/domain/product"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/cartsync/worker"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	bus   *outbox.Bus
	carts *memory.CartRepository
	dlq   *memory.DeadLetterSink
}

func setup(t *testing.T) fixture {
	t.Helper()
	dlq := memory.NewDeadLetterSink()
	d := events.NewDispatcher(events.NewCodec(), events.Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		HandlerTimeout: time.Second,
	}, dlq, nil)
	bus := outbox.NewBus(d, nil)
	carts := memory.NewCartRepository()

	w := worker.New(bus,
		appcartsync.NewClearCartUseCase(carts, nil),
		appcartsync.NewSyncProductUseCase(carts, memory.NewVersionGate(), nil),
		nil,
	)
	w.Start()
	bus.Start(context.Background())
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return fixture{bus: bus, carts: carts, dlq: dlq}
}

func (f fixture) publish(t *testing.T, e domoutbox.Event) {
	t.Helper()
	require.NoError(t, f.bus.Publish(context.Background(), e))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.bus.Flush(ctx))
}

func (f fixture) cart(t *testing.T, userID string, lines ...string) {
	t.Helper()
	c, err := domcart.New(userID)
	require.NoError(t, err)
	for _, p := range lines {
		require.NoError(t, c.AddItem(p, 1, decimal.NewFromInt(5)))
	}
	require.NoError(t, f.carts.Save(context.Background(), c))
}

func TestOrderCreatedClearsCart(t *testing.T) {
	f := setup(t)
	f.cart(t, "u1", "p1")

	f.publish(t, domorder.OrderCreatedEvent{EventID: "e1", OrderID: "o1", UserID: "u1"})

	_, err := f.carts.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, domcart.ErrNotFound)
	assert.Empty(t, f.dlq.Letters())
}

func TestProductOutOfStockDropsItFromCarts(t *testing.T) {
	f := setup(t)
	f.cart(t, "u1", "p1")
	f.cart(t, "u2", "p1", "p2")

	f.publish(t, domproduct.ProductUpdatedEvent{EventID: "e2", ProductID: "p1", Stock: 0, Version: 3})

	_, err := f.carts.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, domcart.ErrNotFound)
	c, err := f.carts.Get(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, c.Contains("p1"))
}

func TestEventWithoutUserIsDeadLettered(t *testing.T) {
	f := setup(t)

	f.publish(t, domorder.OrderCreatedEvent{EventID: "e3", OrderID: "o3"})

	letters := f.dlq.Letters()
	require.Len(t, letters, 1)
	assert.Equal(t, 1, letters[0].Attempts)
}
