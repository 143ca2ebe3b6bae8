package middleware

import (
	"bytes"
	"io"

	"github.com/labstack/echo/v4"
)

// RawBodyKey is the echo context key under which the captured body is set.
const RawBodyKey = "rawBody"

const maxWebhookBody = 2 << 20 // 2mb

// CaptureRawBody reads the request body before any binding consumes it and
// stores the exact bytes in the context for HMAC verification, then
// restores the stream so handlers can still bind normally.
func CaptureRawBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if req.Body != nil {
			raw, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
			if err != nil {
				return echo.NewHTTPError(400, "cannot read request body")
			}
			req.Body.Close()
			c.Set(RawBodyKey, raw)
			req.Body = io.NopCloser(bytes.NewReader(raw))
		}
		return next(c)
	}
}

// RawBody returns the bytes captured by CaptureRawBody, or nil.
func RawBody(c echo.Context) []byte {
	raw, _ := c.Get(RawBodyKey).([]byte)
	return raw
}
