package memory

import (
	"context"
	"sync"

	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/notification"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	byID  map[string]int
	items []*domain.Notification
}

var _ domain.Repository = (*NotificationRepository)(nil)

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{byID: make(map[string]int)}
}

func (r *NotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	_ = ctx
	cp := *n

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byID[n.ID]; ok {
		r.items[i] = &cp
		return nil
	}
	r.byID[n.ID] = len(r.items)
	r.items = append(r.items, &cp)
	return nil
}

func (r *NotificationRepository) List(ctx context.Context, offset, limit int) ([]*domain.Notification, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset >= len(r.items) || limit <= 0 {
		return []*domain.Notification{}, nil
	}
	end := min(offset+limit, len(r.items))
	out := make([]*domain.Notification, 0, end-offset)
	for _, n := range r.items[offset:end] {
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}
