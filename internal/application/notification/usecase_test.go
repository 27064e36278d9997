package notification_test

import (
	"context"
	"errors"
	"testing"

	appnotification "github.com/iclalusta/e-commerce-microservice/internal/application/notification"
	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	domnotification "github.com/iclalusta/e-commerce-microservice/internal/domain/notification"
	domorder "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyOrderCreatedIsIdempotent(t *testing.T) {
	repo := memory.NewNotificationRepository()
	uc := appnotification.NewNotifyOrderCreatedUseCase(repo, nil)
	evt := domorder.OrderCreatedEvent{EventID: "e1", OrderID: "o1", UserID: "u1"}

	first, err := uc.Execute(context.Background(), evt)
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestNotifyOrderCreatedWithoutRecipientIsPermanent(t *testing.T) {
	uc := appnotification.NewNotifyOrderCreatedUseCase(memory.NewNotificationRepository(), nil)

	_, err := uc.Execute(context.Background(), domorder.OrderCreatedEvent{OrderID: "o1"})
	require.Error(t, err)
	assert.True(t, domoutbox.IsPermanent(err))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

type failingRepo struct{ *memory.NotificationRepository }

func (failingRepo) Save(context.Context, *domnotification.Notification) error {
	return errors.New("db down")
}

func TestNotifyOrderCreatedSaveFailureIsRetryable(t *testing.T) {
	uc := appnotification.NewNotifyOrderCreatedUseCase(failingRepo{memory.NewNotificationRepository()}, nil)

	_, err := uc.Execute(context.Background(), domorder.OrderCreatedEvent{OrderID: "o1", UserID: "u1"})
	require.Error(t, err)
	assert.False(t, domoutbox.IsPermanent(err))
}

func TestListNotificationsPaging(t *testing.T) {
	repo := memory.NewNotificationRepository()
	notify := appnotification.NewNotifyOrderCreatedUseCase(repo, nil)
	for _, id := range []string{"o1", "o2", "o3"} {
		_, err := notify.Execute(context.Background(), domorder.OrderCreatedEvent{OrderID: id, UserID: "u1"})
		require.NoError(t, err)
	}
	list := appnotification.NewListNotificationsUseCase(repo, nil)

	all, err := list.Execute(context.Background(), appnotification.ListInput{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := list.Execute(context.Background(), appnotification.ListInput{Skip: 2, Limit: 5})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "o3", page[0].OrderID)

	_, err = list.Execute(context.Background(), appnotification.ListInput{Skip: -1})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
