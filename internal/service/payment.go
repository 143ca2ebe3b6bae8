package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"gorm.io/gorm"

	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/money"
	"storefront-payments/internal/repository"
)

var (
	ErrAlreadyPaid   = errors.New("order already paid")
	ErrInvalidTotal  = errors.New("invalid order total")
	ErrNotConfigured = errors.New("payment gateway not configured")
)

// gatewayCompleted is the only callback status that moves money.
const gatewayCompleted = "Completed"

// PaymentService is the CloudPayments adapter: widget init on the way out,
// check/pay/confirm/fail callbacks on the way in. Callback methods return
// an advisory gateway code; they never fail the request.
type PaymentService interface {
	Init(ctx context.Context, documentID string) (*dto.PayInitResponse, error)
	Check(ctx context.Context, cb *dto.GatewayCallback) int
	Pay(ctx context.Context, cb *dto.GatewayCallback) int
	Confirm(ctx context.Context, cb *dto.GatewayCallback) int
	Fail(ctx context.Context, cb *dto.GatewayCallback) int
	Status(ctx context.Context, invoiceID string) (*dto.StatusResponse, error)
}

type paymentServiceImpl struct {
	db        *gorm.DB
	cfg       *config.CloudPayments
	orderRepo repository.OrderRepository
	orderSvc  OrderService
	logger    *log.Logger
}

func NewPaymentService(
	db *gorm.DB,
	cfg *config.CloudPayments,
	orderRepo repository.OrderRepository,
	orderSvc OrderService,
	logger *log.Logger,
) PaymentService {
	return &paymentServiceImpl{
		db:        db,
		cfg:       cfg,
		orderRepo: orderRepo,
		orderSvc:  orderSvc,
		logger:    logger,
	}
}

func (s *paymentServiceImpl) Init(ctx context.Context, documentID string) (*dto.PayInitResponse, error) {
	order, err := s.orderRepo.FindByDocumentID(ctx, documentID, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if isTerminalPayment(order.PaymentStatus) {
		return nil, ErrAlreadyPaid
	}

	amount := order.Total
	if !amount.IsPositive() {
		// stored total is zero or broken: recompute from the populated
		// items and persist the correction before quoting an amount
		items := make([]*model.OrderItem, len(order.Items))
		for i := range order.Items {
			items[i] = &order.Items[i]
		}
		computed := money.Total(itemLines(items), order.Currency)
		if computed.IsPositive() {
			if err := s.orderRepo.UpdateTotal(ctx, documentID, computed); err != nil {
				return nil, fmt.Errorf("repair order total: %w", err)
			}
			amount = computed
		}
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidTotal
	}

	if s.cfg.PublicID == "" {
		return nil, ErrNotConfigured
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.orderRepo.UpdateFields(ctx, tx, documentID, map[string]any{
			"payment_status": model.PaymentPending,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("mark payment pending: %w", err)
	}

	return &dto.PayInitResponse{
		PublicID:    s.cfg.PublicID,
		InvoiceID:   order.DocumentID,
		Amount:      amount.StringFixed(money.MinorUnits(order.Currency)),
		Currency:    order.Currency,
		Description: fmt.Sprintf("Order #%s", order.OrderNumber),
	}, nil
}

// Check is the gateway's pre-auth validation: the returned code decides
// whether the charge proceeds.
func (s *paymentServiceImpl) Check(ctx context.Context, cb *dto.GatewayCallback) int {
	if cb.InvoiceID == "" {
		return dto.CodeOrderNotFound
	}

	order, err := s.orderRepo.FindByDocumentID(ctx, cb.InvoiceID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.CodeOrderNotFound
	}
	if err != nil {
		s.logger.Errorf("check callback %s: %v", cb.InvoiceID, err)
		return dto.CodeOK // never amplify internal errors into gateway retries
	}

	if isTerminalPayment(order.PaymentStatus) {
		return dto.CodeAlreadyPaid
	}
	if code := s.amountCode(order, cb); code != dto.CodeOK {
		return code
	}
	return dto.CodeOK
}

// Pay is the one-stage success notification.
func (s *paymentServiceImpl) Pay(ctx context.Context, cb *dto.GatewayCallback) int {
	if cb.InvoiceID == "" || cb.Status != gatewayCompleted {
		return dto.CodeOK
	}
	if _, ok := money.Parse(cb.Amount); !ok {
		return dto.CodeOK
	}
	return s.settle(ctx, cb, model.PaymentPaid, model.TerminalPaymentStatuses)
}

// Confirm is the two-stage capture notification. A paid order may still be
// upgraded to paid_captured; anything already captured is a duplicate.
func (s *paymentServiceImpl) Confirm(ctx context.Context, cb *dto.GatewayCallback) int {
	if cb.InvoiceID == "" {
		return dto.CodeOK
	}
	return s.settle(ctx, cb, model.PaymentPaidCaptured, []string{model.PaymentPaidCaptured})
}

func (s *paymentServiceImpl) settle(ctx context.Context, cb *dto.GatewayCallback, target string, guard []string) int {
	order, err := s.orderRepo.FindByDocumentID(ctx, cb.InvoiceID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.CodeOrderNotFound
	}
	if err != nil {
		s.logger.Errorf("settle callback %s: %v", cb.InvoiceID, err)
		return dto.CodeOK
	}

	alreadyTerminal := isTerminalPayment(order.PaymentStatus)
	if alreadyTerminal && target == model.PaymentPaid {
		return dto.CodeAlreadyPaid
	}
	if order.PaymentStatus == model.PaymentPaidCaptured {
		return dto.CodeAlreadyPaid
	}

	if code := s.amountCode(order, cb); code != dto.CodeOK {
		return code
	}

	transition := repository.PaymentTransition{
		PaymentStatus: target,
		OrderStatus:   model.OrderPaid,
		Guard:         guard,
	}
	if cb.TransactionID != "" {
		transition.TransactionID = &cb.TransactionID
	}
	if !order.Total.IsPositive() {
		// externally computed order without items: the verified gateway
		// amount becomes the total
		if amount, ok := money.Parse(cb.Amount); ok && amount.IsPositive() {
			rounded := money.Round(amount, order.Currency)
			transition.Total = &rounded
		}
	}

	var rows int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err = s.orderRepo.TransitionPayment(ctx, tx, cb.InvoiceID, transition)
		return err
	})
	if err != nil {
		s.logger.Errorf("payment transition %s: %v", cb.InvoiceID, err)
		return dto.CodeOK
	}
	if rows == 0 {
		// a concurrent delivery of the same event won the compare-and-set
		return dto.CodeAlreadyPaid
	}

	if err := s.orderSvc.HandlePaid(ctx, cb.InvoiceID); err != nil {
		s.logger.Errorf("paid side effects %s: %v", cb.InvoiceID, err)
	}
	s.logger.Infof("order %s settled as %s, transaction %s", cb.InvoiceID, target, cb.TransactionID)
	return dto.CodeOK
}

func (s *paymentServiceImpl) Fail(ctx context.Context, cb *dto.GatewayCallback) int {
	if cb.InvoiceID == "" {
		return dto.CodeOK
	}

	order, err := s.orderRepo.FindByDocumentID(ctx, cb.InvoiceID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.CodeOrderNotFound
	}
	if err != nil {
		s.logger.Errorf("fail callback %s: %v", cb.InvoiceID, err)
		return dto.CodeOK
	}
	if isTerminalPayment(order.PaymentStatus) {
		// a paid order is never overwritten with failed
		return dto.CodeAlreadyPaid
	}

	transition := repository.PaymentTransition{
		PaymentStatus: model.PaymentFailed,
		Guard:         model.TerminalPaymentStatuses,
	}
	if cb.TransactionID != "" {
		transition.TransactionID = &cb.TransactionID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.orderRepo.TransitionPayment(ctx, tx, cb.InvoiceID, transition)
		return err
	})
	if err != nil {
		s.logger.Errorf("fail transition %s: %v", cb.InvoiceID, err)
	}
	return dto.CodeOK
}

func (s *paymentServiceImpl) Status(ctx context.Context, invoiceID string) (*dto.StatusResponse, error) {
	order, err := s.orderRepo.FindByDocumentID(ctx, invoiceID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	return &dto.StatusResponse{
		OK:            true,
		Found:         true,
		InvoiceID:     invoiceID,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		TransactionID: order.TransactionID,
	}, nil
}

// amountCode verifies a supplied callback amount and currency against the
// stored order within the currency tolerance. A missing amount is not an
// error; some notifications carry none.
func (s *paymentServiceImpl) amountCode(order *model.Order, cb *dto.GatewayCallback) int {
	if cb.Currency != "" && !strings.EqualFold(cb.Currency, order.Currency) {
		s.logger.Warnf("currency mismatch invoice=%s order=%s gateway=%s",
			order.DocumentID, order.Currency, cb.Currency)
		return dto.CodeAmountMismatch
	}
	amount, ok := money.Parse(cb.Amount)
	if !ok {
		return dto.CodeOK
	}
	if order.Total.IsPositive() && !money.Within(order.Total, amount, order.Currency) {
		s.logger.Warnf("amount mismatch invoice=%s total=%s gateway=%s",
			order.DocumentID, order.Total, amount)
		return dto.CodeAmountMismatch
	}
	return dto.CodeOK
}
