package worker_test

import (
	"context"
	"testing"
	"time"

	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/events"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/notification/worker"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCreatedIsNotifiedOnce(t *testing.T) {
	dead := memory.NewDeadLetterSink()
	d := events.NewDispatcher(events.NewCodec(), events.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		HandlerTimeout: time.Second,
	}, dead, nil)
	bus := outbox.NewBus(d, nil)

	repo := memory.NewNotificationRepository()
	worker.New(bus, appnotification.NewNotifyOrderCreatedUseCase(repo, nil), nil).Start()
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	evt := domorder.OrderCreatedEvent{EventID: "e1", OrderID: "o1", UserID: "u1"}
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.NoError(t, bus.Publish(context.Background(), evt))
	require.NoError(t, bus.Publish(context.Background(), domorder.OrderCreatedEvent{EventID: "e2", OrderID: "o2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(ctx))

	stored, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "u1", stored[0].UserID)
	assert.Equal(t, "Dear u1, your order o1 has been created successfully.", stored[0].Message)

	letters := dead.Letters()
	require.Len(t, letters, 1)
	assert.Equal(t, 1, letters[0].Attempts)
	assert.Equal(t, domorder.TopicOrderCreated, letters[0].Topic)
}
