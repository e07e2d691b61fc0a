package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the upstream platform's HMAC over the raw body.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature checks an HMAC-SHA256 hex signature over the raw request
// body. hmac.Equal does the constant-time comparison. An empty signature
// or secret never verifies; running without a secret is a config decision
// the handler makes explicitly, not something decided here.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
