// Package stripe adapts the Stripe API to the payment gateway port.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API endpoint. Empty means api.stripe.com.
	BaseURL string
}

type Gateway struct {
	api           *client.API
	webhookSecret string
}

func New(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendCfg := &stripego.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripego.Int64(1),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripego.String(cfg.BaseURL)
	}

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripego.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Gateway{api: api, webhookSecret: cfg.WebhookSecret}
}

func (g *Gateway) CreateCustomer(ctx context.Context, u domain.User) (string, error) {
	params := &stripego.CustomerParams{
		Email: stripego.String(u.Email),
		Name:  stripego.String(u.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatInt(u.ID, 10))

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", convertErr(err)
	}

	return c.ID, nil
}

// CustomerExists reports false for customers Stripe deleted or never had.
func (g *Gateway) CustomerExists(ctx context.Context, ref string) (bool, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx

	c, err := g.api.Customers.Get(ref, params)
	if err != nil {
		var se *stripego.Error
		if errors.As(err, &se) && se.Code == stripego.ErrorCodeResourceMissing {
			return false, nil
		}
		return false, convertErr(err)
	}

	return !c.Deleted, nil
}

func (g *Gateway) CreateIntent(ctx context.Context, p payment.IntentParams) (*payment.Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(p.AmountCents),
		Currency: stripego.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	if p.CustomerRef != "" {
		params.Customer = stripego.String(p.CustomerRef)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, convertErr(err)
	}

	return toIntent(pi), nil
}

func (g *Gateway) CancelIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	params := &stripego.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		return nil, convertErr(err)
	}

	return toIntent(pi), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, convertErr(err)
	}

	return toIntent(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw body.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}

	out := &payment.WebhookEvent{
		ID:      ev.ID,
		Type:    string(ev.Type),
		Payload: payload,
	}

	if ev.Data != nil && strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe.Gateway.ParseWebhook: %w", err)
		}
		out.IntentID = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Msg
		}
	}

	return out, nil
}

func toIntent(pi *stripego.PaymentIntent) *payment.Intent {
	return &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}
}

// convertErr turns Stripe API errors into gateway errors that keep the
// decline reason. Transport failures are returned as they are.
func convertErr(err error) error {
	var se *stripego.Error
	if !errors.As(err, &se) {
		return err
	}

	code := string(se.Code)
	if se.DeclineCode != "" {
		code = string(se.DeclineCode)
	}

	reason := se.Msg
	if reason == "" {
		reason = "payment gateway error"
	}

	return &payment.GatewayError{Reason: reason, Code: code}
}
