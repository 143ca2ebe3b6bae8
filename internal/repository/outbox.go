package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"storefront-payments/internal/model"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx *gorm.DB, records []*model.NotificationOutbox) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationOutbox, error)
	MarkSent(ctx context.Context, id uint) error
	Reschedule(ctx context.Context, id uint, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id uint, attempts int, lastErr string) error
}

type outboxRepoImpl struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepoImpl{db: db}
}

func (r *outboxRepoImpl) Enqueue(ctx context.Context, tx *gorm.DB, records []*model.NotificationOutbox) error {
	if len(records) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&records).Error
}

func (r *outboxRepoImpl) FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.NotificationOutbox, error) {
	var records []*model.NotificationOutbox
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.OutboxPending, now).
		Order("id").
		Limit(limit).
		Find(&records).Error

	return records, err
}

func (r *outboxRepoImpl) MarkSent(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&model.NotificationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.OutboxSent,
			"updated_at": time.Now(),
		}).Error
}

func (r *outboxRepoImpl) Reschedule(ctx context.Context, id uint, attempts int, next time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.NotificationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        attempts,
			"next_attempt_at": next,
			"last_error":      truncate(lastErr, 512),
			"updated_at":      time.Now(),
		}).Error
}

func (r *outboxRepoImpl) MarkDead(ctx context.Context, id uint, attempts int, lastErr string) error {
	return r.db.WithContext(ctx).Model(&model.NotificationOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     model.OutboxDead,
			"attempts":   attempts,
			"last_error": truncate(lastErr, 512),
			"updated_at": time.Now(),
		}).Error
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
