package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"storefront-payments/internal/client"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
)

var ErrTokenRequired = errors.New("token required")

type PushService interface {
	Register(ctx context.Context, req *dto.RegisterDeviceRequest) error
	Send(ctx context.Context, target dto.PushTarget, payload dto.PushPayload) (*dto.PushResult, error)
	Promo(ctx context.Context, req *dto.PromoRequest) (*dto.PushResult, error)
}

type pushServiceImpl struct {
	deviceRepo repository.PushDeviceRepository
	expo       client.ExpoClient
	logger     *log.Logger
}

func NewPushService(deviceRepo repository.PushDeviceRepository, expo client.ExpoClient, logger *log.Logger) PushService {
	return &pushServiceImpl{
		deviceRepo: deviceRepo,
		expo:       expo,
		logger:     logger,
	}
}

func (s *pushServiceImpl) Register(ctx context.Context, req *dto.RegisterDeviceRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return ErrTokenRequired
	}

	optIn := true
	if req.MarketingOptIn != nil {
		optIn = *req.MarketingOptIn
	}

	return s.deviceRepo.UpsertByToken(ctx, &model.PushDevice{
		Token:          req.Token,
		Platform:       req.Platform,
		UserID:         req.UserID,
		Lang:           strings.ToLower(req.Lang),
		Country:        strings.ToUpper(req.Country),
		Tags:           strings.Join(req.Tags, ","),
		MarketingOptIn: optIn,
		LastSeenAt:     time.Now(),
	})
}

func (s *pushServiceImpl) resolveTokens(ctx context.Context, target dto.PushTarget) ([]string, error) {
	if len(target.Tokens) > 0 {
		return target.Tokens, nil
	}
	if len(target.UserIDs) > 0 {
		return s.deviceRepo.TokensByUserIDs(ctx, target.UserIDs, true)
	}
	if target.Segment != nil {
		seg := target.Segment
		return s.deviceRepo.TokensBySegment(ctx, seg.Country, seg.Lang, seg.Tags, seg.Marketing)
	}
	return nil, nil
}

func (s *pushServiceImpl) Send(ctx context.Context, target dto.PushTarget, payload dto.PushPayload) (*dto.PushResult, error) {
	tokens, err := s.resolveTokens(ctx, target)
	if err != nil {
		return nil, err
	}

	ttl := payload.TTLSeconds
	if ttl <= 0 {
		ttl = 3600
	}

	messages := make([]client.PushMessage, 0, len(tokens))
	for _, token := range dedupe(tokens) {
		if !client.IsExpoToken(token) {
			continue
		}
		messages = append(messages, client.PushMessage{
			To:       token,
			Title:    payload.Title,
			Body:     payload.Body,
			Data:     payload.Data,
			Sound:    payload.Sound,
			Priority: "high",
			TTL:      ttl,
		})
	}
	if len(messages) == 0 {
		return &dto.PushResult{OK: true}, nil
	}

	sent, errs := s.expo.Send(ctx, messages)
	for _, e := range errs {
		s.logger.Errorf("push batch: %v", e)
	}
	return &dto.PushResult{OK: true, Enqueued: len(messages), Sent: sent}, nil
}

// Promo is the broadcast path: tokens, user ids and tag filters are merged
// and deduplicated before batching.
func (s *pushServiceImpl) Promo(ctx context.Context, req *dto.PromoRequest) (*dto.PushResult, error) {
	tokens := append([]string(nil), req.Tokens...)

	if len(req.UserIDs) > 0 {
		byUser, err := s.deviceRepo.TokensByUserIDs(ctx, req.UserIDs, true)
		if err != nil {
			s.logger.Warnf("promo: tokens by userIds: %v", err)
		} else {
			tokens = append(tokens, byUser...)
		}
	}
	if len(req.Tags) > 0 {
		byTags, err := s.deviceRepo.TokensBySegment(ctx, nil, nil, req.Tags, nil)
		if err != nil {
			s.logger.Warnf("promo: tokens by tags: %v", err)
		} else {
			tokens = append(tokens, byTags...)
		}
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = 60 * 60 * 24 * 7
	}

	return s.Send(ctx, dto.PushTarget{Tokens: dedupe(tokens)}, dto.PushPayload{
		Title:      req.Title,
		Body:       req.Body,
		Data:       req.Data,
		Sound:      "default",
		TTLSeconds: ttl,
	})
}
