package paymaya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-PayMaya-Signature"

var (
	ErrSignatureMissing  = errors.New("webhook signature header missing")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// Sign returns the hex signature of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature in constant time. An empty secret disables the check.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}
