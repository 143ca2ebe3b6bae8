package dto

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type OrderItemInput struct {
	Sku          string `json:"sku"`
	ExternalCode string `json:"externalCode"`
	Barcode      string `json:"barcode"`
	Name         string `json:"name"`
	// Price and Quantity accept numbers or locale-formatted strings; they
	// are normalized before any arithmetic.
	Price    any    `json:"price"`
	Quantity any    `json:"quantity"`
	Size     string `json:"size"`
	Color    string `json:"color"`
	ImageURL string `json:"imageUrl"`
}

type CustomerInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Language string `json:"language"`
}

type CreateOrderRequest struct {
	Language    string         `json:"language"`
	Currency    string         `json:"currency"`
	OrderStatus string         `json:"orderStatus"`
	Total       any            `json:"total"` // advisory, used only when items are absent
	Customer    *CustomerInput `json:"customer"`
	UserID      *uint          `json:"userId"`

	DeliveryMethod string `json:"deliveryMethod"`
	Country        string `json:"country"`
	City           string `json:"city"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	Apartment      string `json:"apartment"`
	Zip            string `json:"zip"`

	Items []OrderItemInput `json:"items"`
}

type UpdateOrderRequest struct {
	OrderStatus   *string          `json:"orderStatus"`
	PaymentStatus *string          `json:"paymentStatus"`
	Language      *string          `json:"language"`
	Items         []OrderItemInput `json:"items"`
}

type OrderItemResponse struct {
	Sku      string `json:"sku"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Quantity int32  `json:"quantity"`
	Size     string `json:"size,omitempty"`
	Color    string `json:"color,omitempty"`
}

type OrderResponse struct {
	DocumentID    string              `json:"documentId"`
	OrderNumber   string              `json:"orderNumber"`
	Total         string              `json:"total"`
	Currency      string              `json:"currency"`
	Language      string              `json:"language"`
	OrderStatus   string              `json:"orderStatus"`
	PaymentStatus string              `json:"paymentStatus"`
	TransactionID *string             `json:"transactionId"`
	Items         []OrderItemResponse `json:"items"`
}

// ---- payment gateway ----

type PayInitRequest struct {
	DocumentID string `json:"documentId"`
}

type PayInitResponse struct {
	PublicID    string `json:"publicId"`
	InvoiceID   string `json:"invoiceId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

// GatewayAck is the envelope every callback answers with. The gateway
// checks for code 0 to stop retrying; non-zero codes are advisory.
type GatewayAck struct {
	Code int `json:"code"`
}

const (
	CodeOK               = 0
	CodeOrderNotFound    = 10
	CodeAlreadyPaid      = 11
	CodeAmountMismatch   = 12
	CodeInvalidSignature = 13
)

// GatewayCallback is the single canonical shape for check/pay/confirm/fail
// notifications. The gateway posts either JSON or a urlencoded form.
type GatewayCallback struct {
	InvoiceID     string
	TransactionID string
	Amount        any // absent when the gateway sent none
	Currency      string
	Status        string
}

// ParseCallback decodes the raw callback body. Unrecognized shapes fail
// here, at the boundary, rather than deep in business logic.
func ParseCallback(raw []byte, contentType string) (*GatewayCallback, error) {
	if strings.Contains(contentType, "application/json") {
		var aux struct {
			InvoiceID     any    `json:"InvoiceId"`
			TransactionID any    `json:"TransactionId"`
			Amount        any    `json:"Amount"`
			Currency      string `json:"Currency"`
			Status        string `json:"Status"`
		}
		if err := json.Unmarshal(raw, &aux); err != nil {
			return nil, fmt.Errorf("decode callback json: %w", err)
		}
		return &GatewayCallback{
			InvoiceID:     anyToString(aux.InvoiceID),
			TransactionID: anyToString(aux.TransactionID),
			Amount:        aux.Amount,
			Currency:      aux.Currency,
			Status:        strings.TrimSpace(aux.Status),
		}, nil
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode callback form: %w", err)
	}
	cb := &GatewayCallback{
		InvoiceID:     strings.TrimSpace(form.Get("InvoiceId")),
		TransactionID: strings.TrimSpace(form.Get("TransactionId")),
		Currency:      form.Get("Currency"),
		Status:        strings.TrimSpace(form.Get("Status")),
	}
	if form.Has("Amount") {
		cb.Amount = form.Get("Amount")
	}
	return cb, nil
}

func anyToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", s), "00"), ".")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

type StatusResponse struct {
	OK            bool    `json:"ok"`
	Found         bool    `json:"found"`
	InvoiceID     string  `json:"invoiceId"`
	PaymentStatus string  `json:"paymentStatus,omitempty"`
	OrderStatus   string  `json:"orderStatus,omitempty"`
	TransactionID *string `json:"transactionId,omitempty"`
}

// ---- push ----

type RegisterDeviceRequest struct {
	Token          string   `json:"token"`
	Platform       string   `json:"platform"`
	UserID         *uint    `json:"userId"`
	Lang           string   `json:"lang"`
	Country        string   `json:"country"`
	MarketingOptIn *bool    `json:"marketingOptIn"`
	Tags           []string `json:"tags"`
}

type PushSegment struct {
	Country   []string `json:"country"`
	Lang      []string `json:"lang"`
	Tags      []string `json:"tags"`
	Marketing *bool    `json:"marketing"`
}

type PushTarget struct {
	Tokens  []string     `json:"tokens"`
	UserIDs []uint       `json:"userIds"`
	Segment *PushSegment `json:"segment"`
}

type PushPayload struct {
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data"`
	Sound      string         `json:"sound"`
	TTLSeconds int            `json:"ttlSeconds"`
}

type PushSendRequest struct {
	Target  PushTarget  `json:"target"`
	Payload PushPayload `json:"payload"`
}

type PromoRequest struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data"`
	Tokens  []string       `json:"tokens"`
	UserIDs []uint         `json:"userIds"`
	Tags    []string       `json:"tags"`
	TTL     int            `json:"ttl"`
}

type PushResult struct {
	OK       bool `json:"ok"`
	Enqueued int  `json:"enqueued"`
	Sent     int  `json:"sent"`
}
