package payment

import (
	"context"
	"fmt"

	"github.com/kirinyoku/cinetix/internal/domain"
)

// Gateway event types the reconciliation reacts to.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// Gateway intent statuses the service distinguishes.
const (
	IntentCanceled        = "canceled"
	IntentProcessing      = "processing"
	IntentSucceeded       = "succeeded"
	IntentRequiresCapture = "requires_capture"
)

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"-"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type IntentParams struct {
	AmountCents int64
	Currency    string
	CustomerRef string
	Metadata    map[string]string
}

// WebhookEvent is a verified gateway notification. IntentID is empty for
// events that do not concern a payment intent.
type WebhookEvent struct {
	ID            string
	Type          string
	IntentID      string
	FailureReason string
	Payload       []byte
}

// Gateway is the payment provider boundary. Implementations return
// *GatewayError for provider-side failures and ErrInvalidSignature for
// webhooks that do not verify.
type Gateway interface {
	CreateCustomer(ctx context.Context, u domain.User) (string, error)
	CustomerExists(ctx context.Context, ref string) (bool, error)
	CreateIntent(ctx context.Context, p IntentParams) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// GatewayError carries the provider's reason, shown to the caller as is.
type GatewayError struct {
	Reason string
	Code   string
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Code)
}

func (e *GatewayError) Unwrap() error { return domain.ErrUpstream }
