package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/money"
	"storefront-payments/internal/service"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func toOrderResponse(order *model.Order) *dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, dto.OrderItemResponse{
			Sku:      it.Sku,
			Name:     it.Name,
			Price:    it.Price.StringFixed(money.MinorUnits(order.Currency)),
			Quantity: it.Quantity,
			Size:     it.Size,
			Color:    it.Color,
		})
	}
	return &dto.OrderResponse{
		DocumentID:    order.DocumentID,
		OrderNumber:   order.OrderNumber,
		Total:         order.Total.StringFixed(money.MinorUnits(order.Currency)),
		Currency:      order.Currency,
		Language:      order.Language,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		TransactionID: order.TransactionID,
		Items:         items,
	}
}

func (h *OrderHandler) Create(c echo.Context) error {
	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.Create(c.Request().Context(), &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) Get(c echo.Context) error {
	order, err := h.orderService.Get(c.Request().Context(), c.Param("documentId"))
	if errors.Is(err, service.ErrOrderNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) Update(c echo.Context) error {
	var req dto.UpdateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.Update(c.Request().Context(), c.Param("documentId"), &req)
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrInvalidPaymentStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrPaymentFinal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return err
	}

	return c.JSON(http.StatusOK, toOrderResponse(order))
}
