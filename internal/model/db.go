package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. orderStatus tracks fulfillment, paymentStatus tracks the
// gateway; the two are kept in sync on the paid transition.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"

	PaymentPending      = "pending"
	PaymentPaid         = "paid"
	PaymentPaidCaptured = "paid_captured"
	PaymentFailed       = "failed"
)

// TerminalPaymentStatuses are never regressed once reached.
var TerminalPaymentStatuses = []string{PaymentPaid, PaymentPaidCaptured}

type Order struct {
	// DocumentID is the correlation key shared with the payment gateway
	// (the widget InvoiceId). Assigned once, never changes.
	DocumentID  string `gorm:"primaryKey;size:64;not null"`
	OrderNumber string `gorm:"size:32;uniqueIndex;not null"`

	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"size:8;not null"`
	Language string          `gorm:"size:8;not null"`

	OrderStatus   string  `gorm:"size:32;index;not null"`
	PaymentStatus string  `gorm:"size:32;index;not null"`
	TransactionID *string `gorm:"size:64"`

	// EmailSentAt is the idempotency guard for payment notifications:
	// stamped at most once, in the same transaction that enqueues them.
	EmailSentAt *time.Time

	CustomerEmail string `gorm:"size:128;index"`
	CustomerName  string `gorm:"size:128"`
	CustomerPhone string `gorm:"size:32"`
	UserID        *uint  `gorm:"index"`

	DeliveryMethod string `gorm:"size:32"`
	Country        string `gorm:"size:64"`
	City           string `gorm:"size:64"`
	Street         string `gorm:"size:128"`
	Building       string `gorm:"size:16"`
	Apartment      string `gorm:"size:16"`
	Zip            string `gorm:"size:16"`

	Items []OrderItem `gorm:"foreignKey:OrderDocumentID;references:DocumentID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID              uint   `gorm:"primaryKey"`
	OrderDocumentID string `gorm:"size:64;index;not null"`

	Sku          string `gorm:"size:64;index"`
	ExternalCode string `gorm:"size:64"`
	Barcode      string `gorm:"size:64"`
	Name         string `gorm:"size:256;not null"`

	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity int32           `gorm:"not null"`
	Size     string          `gorm:"size:16"`
	Color    string          `gorm:"size:32"`
	ImageURL string          `gorm:"size:512"`

	CreatedAt time.Time
}

type User struct {
	ID       uint   `gorm:"primaryKey"`
	Email    string `gorm:"size:128;uniqueIndex;not null"`
	Language string `gorm:"size:8"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type PushDevice struct {
	ID       uint   `gorm:"primaryKey"`
	Token    string `gorm:"size:128;uniqueIndex;not null"`
	Platform string `gorm:"size:16"`
	UserID   *uint  `gorm:"index"`

	Lang    string `gorm:"size:8"`
	Country string `gorm:"size:8;index"`
	// Tags is a comma-separated list, matched with LIKE. The opt-in
	// default is applied in the service layer, not as a column default.
	Tags           string `gorm:"size:256"`
	MarketingOptIn bool   `gorm:"not null"`
	LastSeenAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outbox states for pending notifications.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxDead    = "dead"
)

// Notification kinds.
const (
	NotifyEmailCustomer = "email_customer"
	NotifyEmailOps      = "email_ops"
	NotifyPush          = "push"
)

// NotificationOutbox is persisted in the same transaction as the state
// change that triggers it and delivered by a separate worker with retry.
type NotificationOutbox struct {
	ID              uint   `gorm:"primaryKey"`
	OrderDocumentID string `gorm:"size:64;index;not null"`
	Kind            string `gorm:"size:32;not null"`
	Payload         string `gorm:"type:text"`

	Status        string `gorm:"size:16;index;not null;default:pending"`
	Attempts      int    `gorm:"not null;default:0"`
	NextAttemptAt time.Time
	LastError     string `gorm:"size:512"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
