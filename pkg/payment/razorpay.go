package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
)

type RazorpayProvider struct {
	client        *razorpay.Client
	webhookSecret string
}

func NewRazorpayProvider(keyID, keySecret, webhookSecret string) *RazorpayProvider {
	client := razorpay.NewClient(keyID, keySecret)

	return &RazorpayProvider{
		client:        client,
		webhookSecret: webhookSecret,
	}
}

func (r *RazorpayProvider) Name() string { return "razorpay" }

// RefundPayment refunds the full captured amount of the payment.
func (r *RazorpayProvider) RefundPayment(ctx context.Context, reference string) (*RefundResponse, error) {
	payment, err := r.client.Payment.Fetch(reference, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment: %w", err)
	}

	amount, _ := payment["amount"].(float64)
	refund, err := r.client.Payment.Refund(reference, int(amount), map[string]interface{}{
		"speed": "normal",
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	resp := &RefundResponse{Amount: int64(amount)}
	resp.RefundID, _ = refund["id"].(string)
	resp.Status, _ = refund["status"].(string)
	return resp, nil
}

// razorpayNotes tolerates the empty array Razorpay sends when no notes are set.
type razorpayNotes map[string]string

func (n *razorpayNotes) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		*n = nil
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

type razorpayEntity struct {
	ID        string        `json:"id"`
	PaymentID string        `json:"payment_id"`
	Notes     razorpayNotes `json:"notes"`
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

func (r *RazorpayProvider) ParseWebhook(payload []byte, headers http.Header) (*PaymentEvent, error) {
	signature := headers.Get(razorpaySignatureHeader)
	if signature == "" || !utils.VerifyWebhookSignature(string(payload), signature, r.webhookSecret) {
		return nil, ErrInvalidSignature
	}

	var hook razorpayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook payload: %w", err)
	}

	var status string
	switch hook.Event {
	case "payment.authorized":
		status = StatusAuthorized
	case "payment.captured":
		status = StatusPaid
	case "payment.failed":
		status = StatusFailed
	case "refund.processed":
		status = StatusRefunded
	default:
		return nil, nil
	}

	var reference string
	var notes razorpayNotes
	if p := hook.Payload.Payment; p != nil {
		reference = p.Entity.ID
		notes = p.Entity.Notes
	}
	if rf := hook.Payload.Refund; rf != nil {
		if reference == "" {
			reference = rf.Entity.PaymentID
		}
		if notes["booking_id"] == "" {
			notes = rf.Entity.Notes
		}
	}

	bookingID := notes["booking_id"]
	if bookingID == "" {
		return nil, ErrMissingBookingID
	}

	// Razorpay sends the delivery id in a header; the body has none.
	eventID := headers.Get(razorpayEventIDHeader)
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s:%d", hook.Event, reference, hook.CreatedAt)
	}

	return &PaymentEvent{
		EventID:   eventID,
		EventType: hook.Event,
		BookingID: bookingID,
		Status:    status,
		Reference: reference,
		CreatedAt: hook.CreatedAt,
	}, nil
}
