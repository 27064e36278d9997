// Package postgres stores orders and buyer notifications in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/iclalusta/e-commerce-microservice/internal/domain/order"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type orderRow struct {
	ID              string          `gorm:"primaryKey;type:varchar(64)"`
	UserID          string          `gorm:"not null;type:varchar(64);index"`
	IdempotencyKey  *string         `gorm:"type:varchar(128);uniqueIndex:idx_orders_user_idem,priority:2"`
	IdemUser        *string         `gorm:"type:varchar(64);uniqueIndex:idx_orders_user_idem,priority:1"`
	Status          string          `gorm:"not null;type:varchar(16)"`
	ShippingAddress string          `gorm:"not null;type:text"`
	TotalAmount     decimal.Decimal `gorm:"not null;type:decimal(12,2)"`
	FailureReason   string          `gorm:"type:text"`
	Items           []orderItemRow  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time       `gorm:"not null;index"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (orderRow) TableName() string { return "orders" }

type orderItemRow struct {
	OrderID          string          `gorm:"primaryKey;type:varchar(64)"`
	Position         int             `gorm:"primaryKey"`
	ProductID        string          `gorm:"not null;type:varchar(64)"`
	Quantity         int             `gorm:"not null"`
	PriceAtOrderTime decimal.Decimal `gorm:"not null;type:decimal(12,2)"`
}

func (orderItemRow) TableName() string { return "order_items" }

// Open connects with dsn and migrates the order and notification tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.AutoMigrate(&orderRow{}, &orderItemRow{}, &notificationRow{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return db, nil
}

type OrderRepository struct {
	db *gorm.DB
}

var _ domain.Repository = (*OrderRepository)(nil)

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	row := toRow(o)
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", domain.ErrConflict, o.ID)
	}
	return err
}

// Update rewrites the order row; items are immutable after insert.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	res := r.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", o.ID).Updates(map[string]any{
		"status":           string(o.Status),
		"shipping_address": o.ShippingAddress,
		"failure_reason":   o.FailureReason,
		"updated_at":       o.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, o.ID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var row orderRow
	err := r.items(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return r.find(r.items(ctx).Where("user_id = ?", userID))
}

func (r *OrderRepository) FindAll(ctx context.Context) ([]*domain.Order, error) {
	return r.find(r.items(ctx))
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	var row orderRow
	err := r.items(ctx).First(&row, "idem_user = ? AND idempotency_key = ?", userID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

func (r *OrderRepository) items(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (r *OrderRepository) find(q *gorm.DB) ([]*domain.Order, error) {
	var rows []orderRow
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func toRow(o *domain.Order) orderRow {
	row := orderRow{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	// NULL keys stay out of the unique index.
	if o.IdempotencyKey != "" {
		key, user := o.IdempotencyKey, o.UserID
		row.IdempotencyKey, row.IdemUser = &key, &user
	}
	for i, it := range o.Items {
		row.Items = append(row.Items, orderItemRow{
			OrderID:          o.ID,
			Position:         i,
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			PriceAtOrderTime: it.PriceAtOrderTime,
		})
	}
	return row
}

func fromRow(row orderRow) *domain.Order {
	o := &domain.Order{
		ID:              row.ID,
		UserID:          row.UserID,
		Status:          domain.Status(row.Status),
		ShippingAddress: row.ShippingAddress,
		TotalAmount:     row.TotalAmount,
		FailureReason:   row.FailureReason,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.IdempotencyKey != nil {
		o.IdempotencyKey = *row.IdempotencyKey
	}
	for _, it := range row.Items {
		o.Items = append(o.Items, domain.Item{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			PriceAtOrderTime: it.PriceAtOrderTime,
		})
	}
	return domain.Restore(o)
}
