package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"storefront-payments/internal/dto"
	mw "storefront-payments/internal/middleware"
	"storefront-payments/internal/service"
	"storefront-payments/internal/signature"
)

type CloudPaymentsHandler struct {
	paymentService service.PaymentService
	apiSecret      string
	logger         *log.Logger
}

func NewCloudPaymentsHandler(paymentService service.PaymentService, apiSecret string, logger *log.Logger) *CloudPaymentsHandler {
	return &CloudPaymentsHandler{
		paymentService: paymentService,
		apiSecret:      apiSecret,
		logger:         logger,
	}
}

func ack(c echo.Context, code int) error {
	return c.JSON(http.StatusOK, dto.GatewayAck{Code: code})
}

// verified checks the HMAC over the exact raw body captured by the
// middleware. Authenticity failure is the one case a webhook may answer
// with a non-acknowledged envelope.
func (h *CloudPaymentsHandler) verified(c echo.Context) bool {
	raw := mw.RawBody(c)
	provided := c.Request().Header.Get(signature.Header)
	if signature.Verify(h.apiSecret, raw, provided) {
		return true
	}
	h.logger.Warnf("webhook signature rejected path=%s", c.Request().URL.Path)
	return false
}

func (h *CloudPaymentsHandler) callback(c echo.Context) *dto.GatewayCallback {
	raw := mw.RawBody(c)
	cb, err := dto.ParseCallback(raw, c.Request().Header.Get(echo.HeaderContentType))
	if err != nil {
		h.logger.Warnf("webhook body rejected: %v", err)
		return &dto.GatewayCallback{}
	}
	return cb
}

// Pay serves two callers on one endpoint: the app initializing the payment
// widget (JSON with documentId) and the gateway's one-stage success
// notification (signed callback).
func (h *CloudPaymentsHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()
	raw := mw.RawBody(c)

	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "application/json") {
		var req dto.PayInitRequest
		if err := json.Unmarshal(raw, &req); err == nil && req.DocumentID != "" {
			return h.initPayment(c, req.DocumentID)
		}
	}

	if !h.verified(c) {
		return ack(c, dto.CodeInvalidSignature)
	}

	code := h.paymentService.Pay(ctx, h.callback(c))
	if code != dto.CodeOK {
		h.logger.Infof("pay callback advisory code=%d", code)
	}
	// business outcomes always acknowledge, or the gateway retries forever
	return ack(c, dto.CodeOK)
}

func (h *CloudPaymentsHandler) initPayment(c echo.Context, documentID string) error {
	resp, err := h.paymentService.Init(c.Request().Context(), documentID)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Order not found"})
	case errors.Is(err, service.ErrAlreadyPaid):
		return c.JSON(http.StatusConflict, map[string]string{"error": "Order already paid"})
	case errors.Is(err, service.ErrInvalidTotal):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid order total"})
	case errors.Is(err, service.ErrNotConfigured):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Missing CLOUDPAYMENTS_PUBLIC_ID"})
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CloudPaymentsHandler) Check(c echo.Context) error {
	if !h.verified(c) {
		return ack(c, dto.CodeInvalidSignature)
	}
	// check is pre-auth validation: the code decides whether the charge
	// proceeds, so the advisory code is returned as-is
	return ack(c, h.paymentService.Check(c.Request().Context(), h.callback(c)))
}

func (h *CloudPaymentsHandler) Confirm(c echo.Context) error {
	if !h.verified(c) {
		return ack(c, dto.CodeInvalidSignature)
	}
	code := h.paymentService.Confirm(c.Request().Context(), h.callback(c))
	if code != dto.CodeOK {
		h.logger.Infof("confirm callback advisory code=%d", code)
	}
	return ack(c, dto.CodeOK)
}

func (h *CloudPaymentsHandler) Fail(c echo.Context) error {
	if !h.verified(c) {
		return ack(c, dto.CodeInvalidSignature)
	}
	code := h.paymentService.Fail(c.Request().Context(), h.callback(c))
	if code != dto.CodeOK {
		h.logger.Infof("fail callback advisory code=%d", code)
	}
	return ack(c, dto.CodeOK)
}

func (h *CloudPaymentsHandler) Status(c echo.Context) error {
	invoiceID := strings.TrimSpace(c.QueryParam("invoiceId"))
	if invoiceID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invoiceId is required"})
	}

	resp, err := h.paymentService.Status(c.Request().Context(), invoiceID)
	if errors.Is(err, service.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, dto.StatusResponse{OK: false, Found: false, InvoiceID: invoiceID})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
