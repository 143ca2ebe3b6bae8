package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/labstack/gommon/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"storefront-payments/internal/config"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	// a single connection keeps the shared in-memory db alive and avoids
	// sqlite write locks under the transaction-heavy tests
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&model.Order{},
		&model.OrderItem{},
		&model.User{},
		&model.PushDevice{},
		&model.NotificationOutbox{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type testEnv struct {
	db         *gorm.DB
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	deviceRepo repository.PushDeviceRepository
	orderSvc   OrderService
	paySvc     PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	logger := log.New("test")
	logger.SetLevel(log.OFF)

	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	deviceRepo := repository.NewPushDeviceRepository(db)

	orderSvc := NewOrderService(db, orderRepo, userRepo, outboxRepo, logger)
	paySvc := NewPaymentService(db, &config.CloudPayments{
		PublicID:  "pk_test_public",
		APISecret: "test-api-secret",
	}, orderRepo, orderSvc, logger)

	return &testEnv{
		db:         db,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		deviceRepo: deviceRepo,
		orderSvc:   orderSvc,
		paySvc:     paySvc,
	}
}

// createOrder persists a two-item order totalling 2500 RUB.
func (e *testEnv) createOrder(t *testing.T) *model.Order {
	t.Helper()

	order, err := e.orderSvc.Create(context.Background(), &dto.CreateOrderRequest{
		Total: 0, // client total is advisory only
		Customer: &dto.CustomerInput{
			Email: "buyer@example.com",
		},
		DeliveryMethod: "courier",
		Items: []dto.OrderItemInput{
			{Sku: "TS-001", Name: "T-shirt", Price: 1000.0, Quantity: 2},
			{Sku: "CP-002", Name: "Cap", Price: 500.0, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (e *testEnv) reload(t *testing.T, documentID string) *model.Order {
	t.Helper()
	order, err := e.orderRepo.FindByDocumentID(context.Background(), documentID, true)
	if err != nil {
		t.Fatalf("reload order %s: %v", documentID, err)
	}
	return order
}

func (e *testEnv) outboxCount(t *testing.T, documentID string) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&model.NotificationOutbox{}).
		Where("order_document_id = ?", documentID).
		Count(&count).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return count
}
