package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"storefront-payments/internal/model"
)

type PushDeviceRepository interface {
	UpsertByToken(ctx context.Context, device *model.PushDevice) error
	TokensByUserIDs(ctx context.Context, userIDs []uint, marketingOnly bool) ([]string, error)
	TokensBySegment(ctx context.Context, country, lang, tags []string, marketing *bool) ([]string, error)
}

type pushDeviceRepoImpl struct {
	db *gorm.DB
}

func NewPushDeviceRepository(db *gorm.DB) PushDeviceRepository {
	return &pushDeviceRepoImpl{db: db}
}

func (r *pushDeviceRepoImpl) UpsertByToken(ctx context.Context, device *model.PushDevice) error {
	var existing model.PushDevice
	err := r.db.WithContext(ctx).Where("token = ?", device.Token).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(device).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"platform":         device.Platform,
		"user_id":          device.UserID,
		"lang":             device.Lang,
		"country":          device.Country,
		"tags":             device.Tags,
		"marketing_opt_in": device.MarketingOptIn,
		"last_seen_at":     time.Now(),
		"updated_at":       time.Now(),
	}).Error
}

func (r *pushDeviceRepoImpl) TokensByUserIDs(ctx context.Context, userIDs []uint, marketingOnly bool) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.PushDevice{}).
		Where("user_id IN ?", userIDs)
	if marketingOnly {
		q = q.Where("marketing_opt_in = ?", true)
	}

	var tokens []string
	err := q.Limit(5000).Pluck("token", &tokens).Error
	return tokens, err
}

func (r *pushDeviceRepoImpl) TokensBySegment(ctx context.Context, country, lang, tags []string, marketing *bool) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.PushDevice{})
	if marketing != nil {
		q = q.Where("marketing_opt_in = ?", *marketing)
	}
	if len(country) > 0 {
		q = q.Where("country IN ?", country)
	}
	if len(lang) > 0 {
		q = q.Where("lang IN ?", lang)
	}
	if len(tags) > 0 {
		// tags column is a comma-separated list; match any requested tag
		tagQuery := r.db
		for i, tag := range tags {
			cond := "',' || tags || ',' LIKE ?"
			pattern := "%," + tag + ",%"
			if i == 0 {
				tagQuery = r.db.Where(cond, pattern)
			} else {
				tagQuery = tagQuery.Or(cond, pattern)
			}
		}
		q = q.Where(tagQuery)
	}

	var tokens []string
	err := q.Limit(5000).Pluck("token", &tokens).Error
	return tokens, err
}
