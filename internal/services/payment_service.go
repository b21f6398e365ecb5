package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/utils"
	"tripchat/pkg/cache"
	"tripchat/pkg/logger"
	"tripchat/pkg/payment"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type WebhookResult struct {
	EventID   string               `json:"event_id,omitempty"`
	BookingID string               `json:"booking_id,omitempty"`
	Status    models.PaymentStatus `json:"status,omitempty"`
	Duplicate bool                 `json:"duplicate"`
	Ignored   bool                 `json:"ignored"`
}

// PaymentService turns verified provider webhooks into booking payment updates.
type PaymentService struct {
	registry *payment.Registry
	bookings *BookingService
	dedup    cache.Store
	dedupTTL time.Duration
	logger   *logger.Logger
}

func NewPaymentService(registry *payment.Registry, bookings *BookingService, dedup cache.Store, dedupTTL time.Duration, log *logger.Logger) *PaymentService {
	return &PaymentService{
		registry: registry,
		bookings: bookings,
		dedup:    dedup,
		dedupTTL: dedupTTL,
		logger:   log,
	}
}

// HandleWebhook processes one webhook delivery. Replays of an event id are
// acknowledged without touching the booking.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*WebhookResult, error) {
	provider, ok := s.registry.Get(providerName)
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "unknown payment provider")
	}

	event, err := provider.ParseWebhook(payload, headers)
	if err != nil {
		s.logger.WithError(err).LogSecurityEvent("payment_webhook_rejected", "medium", map[string]interface{}{
			"provider": providerName,
		})
		if errors.Is(err, payment.ErrInvalidSignature) {
			return nil, apperrors.Wrap(apperrors.KindInvalidInput, "invalid webhook signature", err)
		}
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "malformed webhook payload", err)
	}
	if event == nil {
		return &WebhookResult{Ignored: true}, nil
	}

	result := &WebhookResult{
		EventID:   event.EventID,
		BookingID: event.BookingID,
		Status:    models.PaymentStatus(event.Status),
	}

	bookingID, err := primitive.ObjectIDFromHex(event.BookingID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInvalidInput, "webhook booking_id is not a valid id")
	}

	key := utils.CacheWebhookPrefix + providerName + ":" + event.EventID
	if s.dedup != nil {
		fresh, err := s.dedup.SetNX(ctx, key, event.Status, s.dedupTTL)
		if err != nil {
			s.logger.WithError(err).Warn("webhook dedup store unavailable, processing without it")
		} else if !fresh {
			result.Duplicate = true
			return result, nil
		}
	}

	if _, err := s.bookings.RecordPaymentStatus(ctx, bookingID, result.Status, providerName, event.Reference); err != nil {
		if s.dedup != nil {
			if delErr := s.dedup.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.WithError(delErr).Warn("failed to clear webhook dedup key")
			}
		}
		return nil, err
	}

	s.logger.LogPaymentEvent(bookingID, providerName, event.EventType, event.Status)
	return result, nil
}
