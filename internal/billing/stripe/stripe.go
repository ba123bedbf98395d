// Package stripe verifies and parses Stripe checkout webhooks into
// activation events.
package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/billing/domain"
)

const Provider = "stripe"

// Verify checks the Stripe-Signature header (t=...,v1=...) against the
// shared webhook secret.
func Verify(payload []byte, headers http.Header, secret string) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

// Parse extracts an activation from a checkout completion. Event types that
// do not activate a subscription return ErrEventIgnored.
func Parse(payload []byte) (*domain.ActivationEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil, domain.ErrEventIgnored
	}

	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	userRaw := readMetadataValue(session.Metadata, "user_id")
	if userRaw == "" {
		return nil, domain.ErrInvalidEvent
	}
	userID, err := snowflake.ParseString(userRaw)
	if err != nil {
		return nil, domain.ErrInvalidEvent
	}

	planCode := readMetadataValue(session.Metadata, "plan_code")
	if planCode == "" {
		return nil, domain.ErrInvalidEvent
	}

	activation := &domain.ActivationEvent{
		Provider:        Provider,
		ProviderEventID: event.ID,
		EventType:       strings.TrimSpace(event.Type),
		UserID:          userID,
		PlanCode:        planCode,
		BasePriceCents:  session.AmountSubtotal,
		FinalPriceCents: session.AmountTotal,
		CouponCode:      strings.ToUpper(readMetadataValue(session.Metadata, "coupon_code")),
		OccurredAt:      timestamp(session.Created, event.Created),
		RawPayload:      payload,
	}

	if employeeRaw := readMetadataValue(session.Metadata, "employee_id"); employeeRaw != "" {
		employeeID, err := snowflake.ParseString(employeeRaw)
		if err != nil {
			return nil, domain.ErrInvalidEvent
		}
		activation.EmployeeID = &employeeID
	}
	return activation, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID             string         `json:"id"`
	AmountSubtotal int64          `json:"amount_subtotal"`
	AmountTotal    int64          `json:"amount_total"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			ts = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return ts, signatures, nil
}

// SignatureHeader builds a valid Stripe-Signature value. Used by tests and
// local tooling to produce deliveries the verifier accepts.
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func timestamp(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	default:
		return ""
	}
}
