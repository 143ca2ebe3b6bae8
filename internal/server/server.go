package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storefront-payments/internal/handler"
	mw "storefront-payments/internal/middleware"
)

type Server struct {
	echo          *echo.Echo
	orderHandler  *handler.OrderHandler
	cpHandler     *handler.CloudPaymentsHandler
	pushHandler   *handler.PushHandler
	pushAdminAuth echo.MiddlewareFunc
}

func NewServer(
	orderHandler *handler.OrderHandler,
	cpHandler *handler.CloudPaymentsHandler,
	pushHandler *handler.PushHandler,
	pushAdminToken string,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:          e,
		orderHandler:  orderHandler,
		cpHandler:     cpHandler,
		pushHandler:   pushHandler,
		pushAdminAuth: adminAuth(pushAdminToken),
	}

	s.setupRoutes()
	return s
}

// adminAuth guards the manual/broadcast push routes with a static bearer
// token from config.
func adminAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "admin token required")
			}
			return next(c)
		}
	}
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- orders --------
	api.POST("/orders", s.orderHandler.Create)
	api.GET("/orders/:documentId", s.orderHandler.Get)
	api.PATCH("/orders/:documentId", s.orderHandler.Update)

	// -------- cloudpayments --------
	// the raw body is captured before binding so the webhook HMAC is
	// computed over the exact bytes the gateway signed
	cp := api.Group("/cloudpayments", mw.CaptureRawBody)
	cp.POST("/check", s.cpHandler.Check)
	cp.POST("/pay", s.cpHandler.Pay)
	cp.POST("/confirm", s.cpHandler.Confirm)
	cp.POST("/fail", s.cpHandler.Fail)
	cp.GET("/status", s.cpHandler.Status)

	// -------- push --------
	push := api.Group("/push")
	push.POST("/register", s.pushHandler.Register)
	push.POST("/send", s.pushHandler.Send, s.pushAdminAuth)
	push.POST("/promo", s.pushHandler.Promo, s.pushAdminAuth)
	push.POST("/test", s.pushHandler.Test, s.pushAdminAuth)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
