package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/money"
	"storefront-payments/internal/repository"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrPaymentFinal         = errors.New("payment status is terminal")
)

const (
	defaultLanguage = "ru"
	defaultCurrency = "RUB"
)

var allowedLanguages = map[string]bool{"ru": true, "en": true, "fr": true, "es": true}

// statusSynonyms maps free-text labels, including localized ones, onto the
// closed status enum.
var statusSynonyms = map[string]string{
	"оплачен":     model.OrderPaid,
	"оплачено":    model.OrderPaid,
	"payed":       model.OrderPaid,
	"paid":        model.OrderPaid,
	"в обработке": model.OrderPending,
	"ожидает":     model.OrderPending,
	"pending":     model.OrderPending,
	"awaiting":    model.OrderPending,
	"отгружен":    model.OrderShipped,
	"отправлен":   model.OrderShipped,
	"shipped":     model.OrderShipped,
	"sent":        model.OrderShipped,
	"доставлен":   model.OrderDelivered,
	"delivered":   model.OrderDelivered,
	"отменен":     model.OrderCancelled,
	"отменён":     model.OrderCancelled,
	"cancelled":   model.OrderCancelled,
	"canceled":    model.OrderCancelled,
}

// paymentStatuses is the closed paymentStatus enum.
var paymentStatuses = map[string]bool{
	model.PaymentPending:      true,
	model.PaymentPaid:         true,
	model.PaymentPaidCaptured: true,
	model.PaymentFailed:       true,
}

// orderTransitions is the fulfillment state machine. failed is tracked on
// paymentStatus only and never appears here.
var orderTransitions = map[string][]string{
	model.OrderPending: {model.OrderPaid, model.OrderCancelled},
	model.OrderPaid:    {model.OrderShipped},
	model.OrderShipped: {model.OrderDelivered},
}

type OrderService interface {
	Create(ctx context.Context, req *dto.CreateOrderRequest) (*model.Order, error)
	Update(ctx context.Context, documentID string, req *dto.UpdateOrderRequest) (*model.Order, error)
	Get(ctx context.Context, documentID string) (*model.Order, error)
	// HandlePaid runs the exactly-once paid side effects: stamps
	// emailSentAt and enqueues the notification outbox records. Safe to
	// call any number of times.
	HandlePaid(ctx context.Context, documentID string) error
}

type orderServiceImpl struct {
	db         *gorm.DB
	orderRepo  repository.OrderRepository
	userRepo   repository.UserRepository
	outboxRepo repository.OutboxRepository
	logger     *log.Logger
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	outboxRepo repository.OutboxRepository,
	logger *log.Logger,
) OrderService {
	return &orderServiceImpl{
		db:         db,
		orderRepo:  orderRepo,
		userRepo:   userRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func normalizeLanguage(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if allowedLanguages[s] {
		return s, true
	}
	return "", false
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if mapped, ok := statusSynonyms[s]; ok {
		return mapped
	}
	return model.OrderPending
}

func makeOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}

// resolveLanguage walks payload → customer → user profile → default.
func (s *orderServiceImpl) resolveLanguage(ctx context.Context, req *dto.CreateOrderRequest) string {
	if lang, ok := normalizeLanguage(req.Language); ok {
		return lang
	}
	if req.Customer != nil {
		if lang, ok := normalizeLanguage(req.Customer.Language); ok {
			return lang
		}
	}
	if req.UserID != nil {
		if user, err := s.userRepo.FindByID(ctx, *req.UserID); err == nil {
			if lang, ok := normalizeLanguage(user.Language); ok {
				return lang
			}
		}
	}
	return defaultLanguage
}

func buildItems(documentID string, inputs []dto.OrderItemInput) []*model.OrderItem {
	items := make([]*model.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		price, ok := money.Parse(in.Price)
		if !ok {
			price = decimal.Zero
		}
		qty := int32(1)
		if q, ok := money.Parse(in.Quantity); ok && q.IsPositive() {
			qty = int32(q.IntPart())
		}
		name := in.Name
		if name == "" {
			name = in.Sku
		}
		items = append(items, &model.OrderItem{
			OrderDocumentID: documentID,
			Sku:             in.Sku,
			ExternalCode:    in.ExternalCode,
			Barcode:         in.Barcode,
			Name:            name,
			Price:           price,
			Quantity:        qty,
			Size:            in.Size,
			Color:           in.Color,
			ImageURL:        in.ImageURL,
		})
	}
	return items
}

func itemLines(items []*model.OrderItem) []money.Line {
	lines := make([]money.Line, len(items))
	for i, it := range items {
		lines[i] = money.Line{Price: it.Price, Quantity: int64(it.Quantity)}
	}
	return lines
}

func (s *orderServiceImpl) Create(ctx context.Context, req *dto.CreateOrderRequest) (*model.Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	order := &model.Order{
		DocumentID:     uuid.NewString(),
		OrderNumber:    makeOrderNumber(),
		Currency:       currency,
		Language:       s.resolveLanguage(ctx, req),
		OrderStatus:    normalizeStatus(req.OrderStatus),
		PaymentStatus:  model.PaymentPending,
		UserID:         req.UserID,
		DeliveryMethod: req.DeliveryMethod,
		Country:        req.Country,
		City:           req.City,
		Street:         req.Street,
		Building:       req.Building,
		Apartment:      req.Apartment,
		Zip:            req.Zip,
	}
	if req.Customer != nil {
		order.CustomerEmail = strings.ToLower(strings.TrimSpace(req.Customer.Email))
		order.CustomerName = req.Customer.Name
		order.CustomerPhone = req.Customer.Phone
	}

	items := buildItems(order.DocumentID, req.Items)
	if len(items) > 0 {
		order.Total = money.Total(itemLines(items), currency)
	} else if advisory, ok := money.Parse(req.Total); ok {
		// no items to derive from: the client total is the only signal
		order.Total = money.Round(advisory, currency)
	} else {
		order.Total = decimal.Zero
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		if err := s.orderRepo.CreateItems(ctx, tx, items); err != nil {
			return fmt.Errorf("store order items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reconcile(ctx, order.DocumentID)
}

func (s *orderServiceImpl) Get(ctx context.Context, documentID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByDocumentID(ctx, documentID, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (s *orderServiceImpl) Update(ctx context.Context, documentID string, req *dto.UpdateOrderRequest) (*model.Order, error) {
	current, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}

	if req.Language != nil {
		if lang, ok := normalizeLanguage(*req.Language); ok {
			fields["language"] = lang
		} else {
			fields["language"] = defaultLanguage
		}
	}

	// Whichever of the two status fields the patch carries is
	// authoritative and is propagated to the other.
	var paidTransition bool
	switch {
	case req.PaymentStatus != nil:
		target := strings.ToLower(strings.TrimSpace(*req.PaymentStatus))
		if !paymentStatuses[target] {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, target)
		}
		if isTerminalPayment(current.PaymentStatus) && !isTerminalPayment(target) {
			return nil, ErrPaymentFinal
		}
		if isTerminalPayment(target) && !isTerminalPayment(current.PaymentStatus) {
			// first entry into paid syncs fulfillment; a capture upgrade
			// on an already shipped order leaves orderStatus alone
			if !transitionAllowed(current.OrderStatus, model.OrderPaid) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.OrderStatus, model.OrderPaid)
			}
			fields["order_status"] = model.OrderPaid
			paidTransition = true
		}
		fields["payment_status"] = target
	case req.OrderStatus != nil:
		target := normalizeStatus(*req.OrderStatus)
		if target != current.OrderStatus {
			if !transitionAllowed(current.OrderStatus, target) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.OrderStatus, target)
			}
			fields["order_status"] = target
			if target == model.OrderPaid {
				if !isTerminalPayment(current.PaymentStatus) {
					fields["payment_status"] = model.PaymentPaid
				}
				paidTransition = true
			}
		}
	}

	var newItems []*model.OrderItem
	if len(req.Items) > 0 {
		newItems = buildItems(documentID, req.Items)
		fields["total"] = money.Total(itemLines(newItems), current.Currency)
	}

	if len(fields) > 0 || len(newItems) > 0 {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if len(newItems) > 0 {
				if err := tx.Where("order_document_id = ?", documentID).
					Delete(&model.OrderItem{}).Error; err != nil {
					return fmt.Errorf("replace order items: %w", err)
				}
				if err := s.orderRepo.CreateItems(ctx, tx, newItems); err != nil {
					return fmt.Errorf("replace order items: %w", err)
				}
			}
			if len(fields) > 0 {
				if err := s.orderRepo.UpdateFields(ctx, tx, documentID, fields); err != nil {
					return fmt.Errorf("update order: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if paidTransition {
		if err := s.HandlePaid(ctx, documentID); err != nil {
			// the order write already succeeded; notifications are owned
			// by the outbox worker from here on
			s.logger.Errorf("paid side effects for %s: %v", documentID, err)
		}
	}

	return s.reconcile(ctx, documentID)
}

func isTerminalPayment(status string) bool {
	return status == model.PaymentPaid || status == model.PaymentPaidCaptured
}

func transitionAllowed(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// reconcile is the self-healing read-repair pass: re-read with items,
// recompute the total and correct drift. Failures are logged, never
// surfaced; the triggering write already succeeded.
func (s *orderServiceImpl) reconcile(ctx context.Context, documentID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByDocumentID(ctx, documentID, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if len(order.Items) == 0 {
		return order, nil
	}

	items := make([]*model.OrderItem, len(order.Items))
	for i := range order.Items {
		items[i] = &order.Items[i]
	}
	mustBe := money.Total(itemLines(items), order.Currency)
	if !order.Total.Equal(mustBe) {
		if err := s.orderRepo.UpdateTotal(ctx, documentID, mustBe); err != nil {
			s.logger.Errorf("total repair for %s: %v", documentID, err)
			return order, nil
		}
		s.logger.Infof("order %s total repaired to %s", documentID, mustBe)
		order.Total = mustBe
	}

	return order, nil
}

func (s *orderServiceImpl) HandlePaid(ctx context.Context, documentID string) error {
	order, err := s.orderRepo.FindByDocumentID(ctx, documentID, true)
	if err != nil {
		return fmt.Errorf("load paid order: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamped, err := s.orderRepo.StampEmailSent(ctx, tx, documentID, time.Now())
		if err != nil {
			return fmt.Errorf("stamp email sent: %w", err)
		}
		if !stamped {
			// notifications already enqueued by an earlier transition
			return nil
		}

		now := time.Now()
		records := []*model.NotificationOutbox{
			{
				OrderDocumentID: documentID,
				Kind:            model.NotifyEmailCustomer,
				NextAttemptAt:   now,
			},
			{
				OrderDocumentID: documentID,
				Kind:            model.NotifyEmailOps,
				NextAttemptAt:   now,
			},
		}
		if order.UserID != nil {
			records = append(records, &model.NotificationOutbox{
				OrderDocumentID: documentID,
				Kind:            model.NotifyPush,
				Payload:         `{"kind":"order_paid"}`,
				NextAttemptAt:   now,
			})
		}
		for _, rec := range records {
			rec.Status = model.OutboxPending
		}
		if err := s.outboxRepo.Enqueue(ctx, tx, records); err != nil {
			return fmt.Errorf("enqueue notifications: %w", err)
		}

		s.logger.Infof("order %s marked paid, %d notifications enqueued", order.OrderNumber, len(records))
		return nil
	})
}
