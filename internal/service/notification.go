package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
)

const outboxBackoffBase = 30 * time.Second

// NotificationService drains the notification outbox: rows are enqueued
// transactionally with the state change that caused them and delivered
// here with retry and backoff, so a transient SMTP or push failure is
// recoverable instead of lost.
type NotificationService interface {
	Run(ctx context.Context)
	DispatchPending(ctx context.Context)
}

type notificationServiceImpl struct {
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	deviceRepo repository.PushDeviceRepository
	mailer     client.Mailer
	expo       client.ExpoClient
	notifyCfg  *config.Notify
	outboxCfg  *config.Outbox
	logger     *log.Logger
}

func NewNotificationService(
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	deviceRepo repository.PushDeviceRepository,
	mailer client.Mailer,
	expo client.ExpoClient,
	notifyCfg *config.Notify,
	outboxCfg *config.Outbox,
	logger *log.Logger,
) NotificationService {
	return &notificationServiceImpl{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		deviceRepo: deviceRepo,
		mailer:     mailer,
		expo:       expo,
		notifyCfg:  notifyCfg,
		outboxCfg:  outboxCfg,
		logger:     logger,
	}
}

// Run polls the outbox until the context is cancelled.
func (s *notificationServiceImpl) Run(ctx context.Context) {
	interval := time.Duration(s.outboxCfg.PollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Infof("outbox worker started, poll interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			s.DispatchPending(ctx)
		}
	}
}

// DispatchPending processes one batch of due records. A failing record is
// rescheduled with exponential backoff and never blocks the others.
func (s *notificationServiceImpl) DispatchPending(ctx context.Context) {
	records, err := s.outboxRepo.FetchDue(ctx, time.Now(), s.outboxCfg.BatchSize)
	if err != nil {
		s.logger.Errorf("fetch outbox: %v", err)
		return
	}

	for _, rec := range records {
		if err := s.dispatch(ctx, rec); err != nil {
			s.retryLater(ctx, rec, err)
			continue
		}
		if err := s.outboxRepo.MarkSent(ctx, rec.ID); err != nil {
			s.logger.Errorf("mark outbox %d sent: %v", rec.ID, err)
		}
	}
}

func (s *notificationServiceImpl) retryLater(ctx context.Context, rec *model.NotificationOutbox, cause error) {
	attempts := rec.Attempts + 1
	if attempts >= s.outboxCfg.MaxAttempts {
		s.logger.Errorf("outbox %d (%s) dead after %d attempts: %v", rec.ID, rec.Kind, attempts, cause)
		if err := s.outboxRepo.MarkDead(ctx, rec.ID, attempts, cause.Error()); err != nil {
			s.logger.Errorf("mark outbox %d dead: %v", rec.ID, err)
		}
		return
	}

	next := time.Now().Add(outboxBackoffBase * (1 << (attempts - 1)))
	s.logger.Warnf("outbox %d (%s) attempt %d failed, retry at %s: %v", rec.ID, rec.Kind, attempts, next.Format(time.RFC3339), cause)
	if err := s.outboxRepo.Reschedule(ctx, rec.ID, attempts, next, cause.Error()); err != nil {
		s.logger.Errorf("reschedule outbox %d: %v", rec.ID, err)
	}
}

func (s *notificationServiceImpl) dispatch(ctx context.Context, rec *model.NotificationOutbox) error {
	order, err := s.orderRepo.FindByDocumentID(ctx, rec.OrderDocumentID, true)
	if err != nil {
		return fmt.Errorf("load order %s: %w", rec.OrderDocumentID, err)
	}

	switch rec.Kind {
	case model.NotifyEmailCustomer:
		return s.sendCustomerEmail(order)
	case model.NotifyEmailOps:
		return s.sendOpsEmail(order)
	case model.NotifyPush:
		return s.sendOrderPush(ctx, order, rec.Payload)
	default:
		// unknown kinds are dropped, not retried
		s.logger.Warnf("outbox %d has unknown kind %q", rec.ID, rec.Kind)
		return nil
	}
}

func (s *notificationServiceImpl) sendCustomerEmail(order *model.Order) error {
	if order.CustomerEmail == "" {
		s.logger.Warnf("customer email skip: empty address for %s", order.OrderNumber)
		return nil
	}

	html, err := renderReceiptHTML(order, s.notifyCfg)
	if err != nil {
		return err
	}

	err = s.mailer.Send(&client.MailMessage{
		To:      order.CustomerEmail,
		Subject: emailSubject(order),
		Text:    fmt.Sprintf("%s %s", order.Total, order.Currency),
		HTML:    html,
	})
	if err != nil {
		return err
	}
	s.logger.Infof("customer receipt sent for %s to %s", order.OrderNumber, order.CustomerEmail)
	return nil
}

func (s *notificationServiceImpl) sendOpsEmail(order *model.Order) error {
	if s.notifyCfg.OrderEmail == "" {
		s.logger.Warn("ops email skip: ORDER_NOTIFY_EMAIL not set")
		return nil
	}

	subject, body := opsSummary(order)
	err := s.mailer.Send(&client.MailMessage{
		To:      s.notifyCfg.OrderEmail,
		Subject: subject,
		Text:    body,
	})
	if err != nil {
		return err
	}
	s.logger.Infof("ops summary sent for %s", order.OrderNumber)
	return nil
}

func (s *notificationServiceImpl) sendOrderPush(ctx context.Context, order *model.Order, payload string) error {
	var p struct {
		Kind string `json:"kind"`
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("decode push payload: %w", err)
		}
	}
	if p.Kind == "" {
		p.Kind = "order_paid"
	}

	title, body, ok := pushMessageFor(p.Kind, order.Language, order.OrderNumber)
	if !ok {
		s.logger.Warnf("unknown push template %q for %s", p.Kind, order.OrderNumber)
		return nil
	}

	if order.UserID == nil {
		return nil
	}
	tokens, err := s.deviceRepo.TokensByUserIDs(ctx, []uint{*order.UserID}, false)
	if err != nil {
		return fmt.Errorf("resolve push tokens: %w", err)
	}

	messages := make([]client.PushMessage, 0, len(tokens))
	for _, token := range dedupe(tokens) {
		if !client.IsExpoToken(token) {
			continue
		}
		messages = append(messages, client.PushMessage{
			To:       token,
			Title:    title,
			Body:     body,
			Data:     map[string]any{"orderNumber": order.OrderNumber, "kind": p.Kind},
			Priority: "high",
			TTL:      3600,
		})
	}
	if len(messages) == 0 {
		return nil
	}

	sent, errs := s.expo.Send(ctx, messages)
	for _, e := range errs {
		s.logger.Errorf("push batch for %s: %v", order.OrderNumber, e)
	}
	if sent == 0 && len(errs) > 0 {
		return fmt.Errorf("all push batches failed for %s", order.OrderNumber)
	}
	s.logger.Infof("push sent for %s: %d messages", order.OrderNumber, sent)
	return nil
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
