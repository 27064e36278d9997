package postgres

import (
	"context"
	"time"

	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/notification"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type notificationRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(128)"`
	UserID    string    `gorm:"not null;type:varchar(64);index"`
	OrderID   string    `gorm:"not null;type:varchar(64)"`
	Message   string    `gorm:"not null;type:text"`
	Status    string    `gorm:"not null;type:varchar(16);default:SENT"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (notificationRow) TableName() string { return "notifications" }

type NotificationRepository struct {
	db *gorm.DB
}

var _ domain.Repository = (*NotificationRepository)(nil)

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	row := notificationRow{
		ID:        n.ID,
		UserID:    n.UserID,
		OrderID:   n.OrderID,
		Message:   n.Message,
		Status:    n.Status,
		CreatedAt: n.CreatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (r *NotificationRepository) List(ctx context.Context, offset, limit int) ([]*domain.Notification, error) {
	var rows []notificationRow
	err := r.db.WithContext(ctx).
		Order("created_at").Order("id").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			OrderID:   row.OrderID,
			Message:   row.Message,
			Status:    row.Status,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}
