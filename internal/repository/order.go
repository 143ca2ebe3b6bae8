package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront-payments/internal/model"
)

// PaymentTransition describes a conditional payment-state change. The
// update only applies while the current paymentStatus is outside Guard,
// which is what makes racing webhooks safe: at most one of them observes
// RowsAffected == 1.
type PaymentTransition struct {
	PaymentStatus string
	OrderStatus   string // empty = leave untouched
	TransactionID *string
	Total         *decimal.Decimal // set when the gateway amount backfills a zero total
	Guard         []string
}

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByDocumentID(ctx context.Context, documentID string, withItems bool) (*model.Order, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, documentID string, fields map[string]any) error
	UpdateTotal(ctx context.Context, documentID string, total decimal.Decimal) error
	TransitionPayment(ctx context.Context, tx *gorm.DB, documentID string, t PaymentTransition) (int64, error)
	StampEmailSent(ctx context.Context, tx *gorm.DB, documentID string, at time.Time) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByDocumentID(ctx context.Context, documentID string, withItems bool) (*model.Order, error) {
	var order model.Order
	q := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if withItems {
		q = q.Preload("Items")
	}
	if err := q.First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) UpdateFields(ctx context.Context, tx *gorm.DB, documentID string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	return tx.WithContext(ctx).Model(&model.Order{}).
		Where("document_id = ?", documentID).
		Updates(fields).Error
}

func (r *orderRepoImpl) UpdateTotal(ctx context.Context, documentID string, total decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("document_id = ?", documentID).
		Updates(map[string]any{
			"total":      total,
			"updated_at": time.Now(),
		}).Error
}

func (r *orderRepoImpl) TransitionPayment(ctx context.Context, tx *gorm.DB, documentID string, t PaymentTransition) (int64, error) {
	updates := map[string]any{
		"payment_status": t.PaymentStatus,
		"updated_at":     time.Now(),
	}
	if t.OrderStatus != "" {
		updates["order_status"] = t.OrderStatus
	}
	if t.TransactionID != nil {
		updates["transaction_id"] = *t.TransactionID
	}
	if t.Total != nil {
		updates["total"] = *t.Total
	}

	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where(`
			document_id = ?
			AND payment_status NOT IN ?
		`,
			documentID,
			t.Guard,
		).
		Updates(updates)

	return result.RowsAffected, result.Error
}

func (r *orderRepoImpl) StampEmailSent(ctx context.Context, tx *gorm.DB, documentID string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("document_id = ? AND email_sent_at IS NULL", documentID).
		Updates(map[string]any{
			"email_sent_at": at,
			"updated_at":    time.Now(),
		})

	return result.RowsAffected > 0, result.Error
}
