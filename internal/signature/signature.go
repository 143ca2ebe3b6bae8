// Package signature implements the gateway's webhook authenticity check:
// HMAC-SHA256 over the exact raw request body, base64-encoded.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Header carries the base64 HMAC on gateway callbacks.
const Header = "Content-HMAC"

// Sign computes the base64 HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the provided signature against the raw body bytes in
// constant time. The body must be the bytes as received on the wire; a
// re-serialized parsed form will not match.
func Verify(secret string, body []byte, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
