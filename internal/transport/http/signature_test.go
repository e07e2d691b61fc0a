package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"request_id":"abc"}`)
	secret := "shh"

	if !VerifySignature(body, sign(body, secret), secret) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(body, sign(body, "wrong-secret"), secret) {
		t.Error("signature from wrong secret accepted")
	}
	if VerifySignature([]byte(`{"request_id":"tampered"}`), sign(body, secret), secret) {
		t.Error("signature over different body accepted")
	}
	if VerifySignature(body, "", secret) {
		t.Error("empty signature accepted")
	}
	if VerifySignature(body, sign(body, ""), "") {
		t.Error("empty secret must never verify")
	}
	if VerifySignature(body, "not-hex", secret) {
		t.Error("malformed signature accepted")
	}
}
