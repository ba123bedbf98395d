package domain

import (
	"context"
	"errors"
	"net/http"
)

type Service interface {
	// Ingest verifies, parses and processes one raw webhook delivery.
	// Duplicate deliveries return ErrEventAlreadyProcessed, which handlers
	// acknowledge with 200 so the provider stops retrying.
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
	// ProcessActivation applies a parsed activation in one transaction:
	// event record, allowance grant, commission, coupon usage, audit entry
	// and the processed mark all commit or roll back together.
	ProcessActivation(ctx context.Context, event ActivationEvent) error
	// PurgeProcessed enforces the retention window. The scheduler calls it
	// on every maintenance pass.
	PurgeProcessed(ctx context.Context) (int64, error)
}

var (
	ErrUnknownProvider       = errors.New("unknown_provider")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrUnknownPlan           = errors.New("unknown_plan")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	// ErrTransientConflict means a concurrent delivery of the same event is
	// in flight. Handlers surface it as a failure so the provider retries.
	ErrTransientConflict = errors.New("transient_conflict")
)
