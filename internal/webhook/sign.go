package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Delivery headers. Signature material travels out-of-band so the body stays
// byte-reproducible for verification.
const (
	HeaderSignature  = "X-Signature"
	HeaderEvent      = "X-Event"
	HeaderDeliveryID = "X-Delivery-Id"
)

// Sign computes the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Signature header against the raw body.
// Exported for receiver implementations and tests.
func VerifySignature(secret string, body []byte, signature string) bool {
	sig, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), sig)
}
