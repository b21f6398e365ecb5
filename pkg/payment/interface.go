package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Payment statuses reported by gateway events. They match the booking
// payment status values.
const (
	StatusAuthorized = "authorized"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingBookingID = errors.New("payment event carries no booking_id")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

type PaymentProvider interface {
	Name() string
	// ParseWebhook verifies and decodes a webhook delivery. It returns a nil
	// event for event types that do not affect booking payment status.
	ParseWebhook(payload []byte, headers http.Header) (*PaymentEvent, error)
	RefundPayment(ctx context.Context, reference string) (*RefundResponse, error)
}

type PaymentEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	CreatedAt int64  `json:"created_at"`
}

type RefundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
}

// Registry looks up gateways by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]PaymentProvider
}

func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{providers: make(map[string]PaymentProvider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p PaymentProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (PaymentProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Refund issues a full refund for reference through the named provider.
func (r *Registry) Refund(ctx context.Context, provider, reference string) error {
	p, ok := r.Get(provider)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	_, err := p.RefundPayment(ctx, reference)
	return err
}
