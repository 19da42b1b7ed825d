package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeSignature returns the lowercase hex HMAC-SHA256 of payload under secret.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the checkout callback signature, which signs
// "<order_id>|<payment_id>" with the API key secret.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if c == nil {
		return false
	}
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := ComputeSignature([]byte(orderID+"|"+paymentID), c.keySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the x-razorpay-signature header against the
// raw request body. Returns false when no webhook secret is configured.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	expected := ComputeSignature(body, c.webhookSecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
