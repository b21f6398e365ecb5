package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: webhookSecret,
	}
}

func (s *StripeProvider) Name() string { return "stripe" }

func (s *StripeProvider) RefundPayment(ctx context.Context, reference string) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundID: refund.ID,
		Status:   string(refund.Status),
		Amount:   refund.Amount,
	}, nil
}

func (s *StripeProvider) ParseWebhook(payload []byte, headers http.Header) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, headers.Get(stripeSignatureHeader), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status string
	var metadata map[string]string
	var reference string

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentAmountCapturableUpdated,
		stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		status = stripeIntentStatus(event.Type)
		metadata = pi.Metadata
		reference = pi.ID
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal charge: %w", err)
		}
		status = StatusRefunded
		metadata = ch.Metadata
		if ch.PaymentIntent != nil {
			reference = ch.PaymentIntent.ID
		}
	default:
		return nil, nil
	}

	bookingID := metadata["booking_id"]
	if bookingID == "" {
		return nil, ErrMissingBookingID
	}

	return &PaymentEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		BookingID: bookingID,
		Status:    status,
		Reference: reference,
		CreatedAt: event.Created,
	}, nil
}

func stripeIntentStatus(t stripe.EventType) string {
	switch t {
	case stripe.EventTypePaymentIntentSucceeded:
		return StatusPaid
	case stripe.EventTypePaymentIntentAmountCapturableUpdated:
		return StatusAuthorized
	default:
		return StatusFailed
	}
}
