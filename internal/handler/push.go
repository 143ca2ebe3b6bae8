package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/service"
)

type PushHandler struct {
	pushService service.PushService
}

func NewPushHandler(pushService service.PushService) *PushHandler {
	return &PushHandler{
		pushService: pushService,
	}
}

func (h *PushHandler) Register(c echo.Context) error {
	var req dto.RegisterDeviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	err := h.pushService.Register(c.Request().Context(), &req)
	if errors.Is(err, service.ErrTokenRequired) {
		return echo.NewHTTPError(http.StatusBadRequest, "token required")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *PushHandler) Send(c echo.Context) error {
	var req dto.PushSendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.pushService.Send(c.Request().Context(), req.Target, req.Payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PushHandler) Promo(c echo.Context) error {
	var req dto.PromoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.pushService.Promo(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PushHandler) Test(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token required")
	}

	result, err := h.pushService.Send(c.Request().Context(),
		dto.PushTarget{Tokens: []string{req.Token}},
		dto.PushPayload{Title: "Storefront", Body: "Test push"})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
