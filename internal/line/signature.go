// Package line talks to the LINE Messaging API: webhook payloads,
// signature verification and reply delivery.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var ErrInvalidSignature = errors.New("line: webhook signature mismatch")

// VerifySignature checks the X-Line-Signature header: the base64 of an
// HMAC-SHA256 over the raw request body keyed with the channel secret.
func VerifySignature(secret string, body []byte, header string) error {
	if header == "" {
		return ErrInvalidSignature
	}
	expected := computeSignature(secret, body)
	if !hmac.Equal([]byte(header), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignForTest is exported for use in handler tests.
func SignForTest(secret string, body []byte) string {
	return computeSignature(secret, body)
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
