package service

import (
	"context"
	"errors"
	"testing"

	"github.com/labstack/gommon/log"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
)

func newPushSvc(env *testEnv, expo *fakeExpo) PushService {
	logger := log.New("test")
	logger.SetLevel(log.OFF)
	return NewPushService(env.deviceRepo, expo, logger)
}

func registerDevice(t *testing.T, svc PushService, token string, userID *uint, tags []string) {
	t.Helper()
	if err := svc.Register(context.Background(), &dto.RegisterDeviceRequest{
		Token:  token,
		UserID: userID,
		Tags:   tags,
	}); err != nil {
		t.Fatalf("register %s: %v", token, err)
	}
}

func TestRegisterRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	svc := newPushSvc(env, &fakeExpo{})

	err := svc.Register(context.Background(), &dto.RegisterDeviceRequest{Token: "  "})
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("got %v, want ErrTokenRequired", err)
	}
}

func TestRegisterUpsertsByToken(t *testing.T) {
	env := newTestEnv(t)
	svc := newPushSvc(env, &fakeExpo{})
	ctx := context.Background()

	registerDevice(t, svc, "ExponentPushToken[dev1]", nil, nil)
	userID := uint(7)
	registerDevice(t, svc, "ExponentPushToken[dev1]", &userID, []string{"vip"})

	var count int64
	if err := env.db.Model(&model.PushDevice{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("devices = %d, re-registering a token must not duplicate", count)
	}

	tokens, err := env.deviceRepo.TokensByUserIDs(ctx, []uint{userID}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 {
		t.Fatalf("token not re-bound to user: %v", tokens)
	}
}

func TestSendFiltersNonExpoTokens(t *testing.T) {
	env := newTestEnv(t)
	expo := &fakeExpo{}
	svc := newPushSvc(env, expo)

	result, err := svc.Send(context.Background(),
		dto.PushTarget{Tokens: []string{"ExponentPushToken[a]", "garbage", "ExponentPushToken[a]"}},
		dto.PushPayload{Title: "Hi", Body: "There"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if result.Enqueued != 1 || result.Sent != 1 {
		t.Fatalf("result = %+v, want one deduplicated expo message", result)
	}
	if len(expo.sent) != 1 || expo.sent[0].To != "ExponentPushToken[a]" {
		t.Fatalf("sent = %+v", expo.sent)
	}
}

func TestSendByUserIDsRespectsMarketingOptOut(t *testing.T) {
	env := newTestEnv(t)
	expo := &fakeExpo{}
	svc := newPushSvc(env, expo)
	ctx := context.Background()

	userID := uint(5)
	optOut := false
	if err := svc.Register(ctx, &dto.RegisterDeviceRequest{
		Token:          "ExponentPushToken[quiet]",
		UserID:         &userID,
		MarketingOptIn: &optOut,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Send(ctx,
		dto.PushTarget{UserIDs: []uint{userID}},
		dto.PushPayload{Title: "Sale", Body: "50% off"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if result.Enqueued != 0 {
		t.Fatalf("opted-out device received marketing push: %+v", result)
	}
}

func TestPromoMergesTargets(t *testing.T) {
	env := newTestEnv(t)
	expo := &fakeExpo{}
	svc := newPushSvc(env, expo)
	ctx := context.Background()

	userID := uint(9)
	registerDevice(t, svc, "ExponentPushToken[u9]", &userID, nil)
	registerDevice(t, svc, "ExponentPushToken[vip]", nil, []string{"vip", "beta"})

	result, err := svc.Promo(ctx, &dto.PromoRequest{
		Title:   "Promo",
		Body:    "News",
		Tokens:  []string{"ExponentPushToken[direct]"},
		UserIDs: []uint{userID},
		Tags:    []string{"vip"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Enqueued != 3 {
		t.Fatalf("enqueued = %d, want direct + user + tag match", result.Enqueued)
	}

	seen := map[string]bool{}
	for _, m := range expo.sent {
		seen[m.To] = true
		if m.TTL != 60*60*24*7 {
			t.Errorf("promo ttl = %d, want a week", m.TTL)
		}
	}
	for _, want := range []string{"ExponentPushToken[direct]", "ExponentPushToken[u9]", "ExponentPushToken[vip]"} {
		if !seen[want] {
			t.Errorf("missing recipient %s", want)
		}
	}
}
