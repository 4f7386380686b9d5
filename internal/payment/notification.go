package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var ErrInvalidSignature = errors.New("invalid notification signature")

// Notification event types the gateway sends.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventChargeRefunded   = "charge.refunded"
)

type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	IntentID      string            `json:"intent_id"`
	AmountCents   int               `json:"amount_cents"`
	Currency      string            `json:"currency"`
	MethodSummary string            `json:"method_summary"`
	Metadata      map[string]string `json:"metadata"`
}

// VerifyNotification authenticates then parses an inbound gateway
// notification. The HMAC check runs over the raw body before any JSON
// is touched, so a forged or malformed body never reaches the decoder.
func VerifyNotification(rawBody []byte, sigHeader, secret string) (Event, error) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(sigHeader)
	if err != nil || !hmac.Equal(want, got) {
		return Event{}, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// SignNotification produces the signature header value for rawBody.
// The test gateway and fixtures use it; the real provider signs its own.
func SignNotification(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
