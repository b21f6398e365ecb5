package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"
	"tripchat/internal/utils"
	"tripchat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const refundTimeout = 15 * time.Second

// BookingListener observes committed booking transitions. before is nil for a
// newly created booking. Listeners run synchronously before the caller of the
// transition sees success.
type BookingListener interface {
	BookingChanged(ctx context.Context, before, after *models.Booking)
}

// Refunder asks a payment provider to return the money of a payment.
type Refunder interface {
	Refund(ctx context.Context, provider, reference string) error
}

var errNoChange = errors.New("no change")

// change collects the side effects of one transition.
type change struct {
	undo      []func(ctx context.Context)
	committed []func(ctx context.Context)
	details   map[string]interface{}
}

func (c *change) onRollback(fn func(ctx context.Context)) {
	c.undo = append(c.undo, fn)
}

func (c *change) onCommit(fn func(ctx context.Context)) {
	c.committed = append(c.committed, fn)
}

type BookingService struct {
	bookings  interfaces.BookingRepository
	trips     interfaces.TripRepository
	refunder  Refunder
	logger    *logger.Logger
	locks     *keyedMutex
	tripLocks *keyedMutex
	now       func() time.Time

	listenersMu sync.RWMutex
	listeners   []BookingListener
}

func NewBookingService(
	bookings interfaces.BookingRepository,
	trips interfaces.TripRepository,
	refunder Refunder,
	log *logger.Logger,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		trips:     trips,
		refunder:  refunder,
		logger:    log,
		locks:     newKeyedMutex(),
		tripLocks: newKeyedMutex(),
		now:       time.Now,
	}
}

func (s *BookingService) AddListener(l BookingListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *BookingService) notify(ctx context.Context, before, after *models.Booking) {
	s.listenersMu.RLock()
	listeners := make([]BookingListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		var b *models.Booking
		if before != nil {
			b = before.Clone()
		}
		l.BookingChanged(ctx, b, after.Clone())
	}
}

// CreateBooking records a pending booking request of passengerID on tripID.
func (s *BookingService) CreateBooking(ctx context.Context, passengerID, tripID primitive.ObjectID, seats int) (*models.Booking, error) {
	if seats < 1 {
		return nil, apperrors.New(apperrors.KindInvalidInput, "at least one seat must be booked")
	}

	unlock := s.tripLocks.Lock(tripID)
	defer unlock()

	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID == passengerID {
		return nil, apperrors.New(apperrors.KindNotAuthorized, "drivers cannot book their own trip")
	}
	if seats > trip.AvailableSeats {
		return nil, apperrors.New(apperrors.KindPreconditionFailed, "not enough seats available")
	}

	existing, err := s.bookings.GetByTripAndPassenger(ctx, tripID, passengerID)
	if err != nil {
		return nil, err
	}
	for _, b := range existing {
		if !b.Status.IsTerminal() {
			return nil, apperrors.New(apperrors.KindConflict, "passenger already has an active booking on this trip")
		}
	}

	booking := &models.Booking{
		TripID:        tripID,
		PassengerID:   passengerID,
		DriverID:      trip.DriverID,
		NumberOfSeats: seats,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.WithUserID(passengerID).LogBookingEvent(booking.ID, "created", map[string]interface{}{
		"trip_id": tripID.Hex(),
		"seats":   seats,
	})
	s.notify(ctx, nil, booking)
	return booking, nil
}

// mutate runs fn on a copy of the booking under its lock and persists the
// result with an optimistic version check.
func (s *BookingService) mutate(ctx context.Context, id primitive.ObjectID, event string, fn func(b *models.Booking, c *change) error) (*models.Booking, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	before, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	c := &change{details: map[string]interface{}{}}
	if err := fn(after, c); err != nil {
		if errors.Is(err, errNoChange) {
			return before, nil
		}
		return nil, err
	}

	if after.ChatOpenedAt == nil && after.ChatEligible() {
		now := s.now()
		after.ChatOpenedAt = &now
	}

	if err := s.bookings.Update(ctx, after, before.Version); err != nil {
		detached := context.WithoutCancel(ctx)
		for i := len(c.undo) - 1; i >= 0; i-- {
			c.undo[i](detached)
		}
		return nil, err
	}

	for _, fn := range c.committed {
		fn(ctx)
	}

	c.details["status"] = after.Status
	c.details["payment_status"] = after.PaymentStatus
	s.logger.WithContext(ctx).LogBookingEvent(id, event, c.details)

	s.notify(ctx, before, after)
	return after, nil
}

func requireDriver(b *models.Booking, actorID primitive.ObjectID) error {
	if b.DriverID != actorID {
		return apperrors.New(apperrors.KindNotAuthorized, "only the trip driver can do this")
	}
	return nil
}

func requirePassenger(b *models.Booking, actorID primitive.ObjectID) error {
	if b.PassengerID != actorID {
		return apperrors.New(apperrors.KindNotAuthorized, "only the booking passenger can do this")
	}
	return nil
}

func (s *BookingService) reserveSeats(ctx context.Context, b *models.Booking, c *change) error {
	if err := s.trips.ReserveSeats(ctx, b.TripID, b.NumberOfSeats); err != nil {
		return err
	}
	c.onRollback(func(ctx context.Context) {
		if err := s.trips.ReleaseSeats(ctx, b.TripID, b.NumberOfSeats); err != nil {
			s.logger.WithBookingID(b.ID).WithError(err).Error("failed to release seats after aborted confirmation")
		}
	})
	return nil
}

func (s *BookingService) releaseSeats(ctx context.Context, b *models.Booking, c *change) error {
	if err := s.trips.ReleaseSeats(ctx, b.TripID, b.NumberOfSeats); err != nil {
		return err
	}
	c.onRollback(func(ctx context.Context) {
		if err := s.trips.ReserveSeats(ctx, b.TripID, b.NumberOfSeats); err != nil {
			s.logger.WithBookingID(b.ID).WithError(err).Error("failed to restore seats after aborted release")
		}
	})
	c.details["seats_released"] = b.NumberOfSeats
	return nil
}

// ConfirmBooking accepts a pending request and reserves its seats.
func (s *BookingService) ConfirmBooking(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
	return s.mutate(ctx, id, "confirmed", func(b *models.Booking, c *change) error {
		if err := requireDriver(b, actorID); err != nil {
			return err
		}
		if err := CheckStatusTransition(b, models.BookingStatusConfirmed); err != nil {
			return err
		}
		if err := s.reserveSeats(ctx, b, c); err != nil {
			return err
		}
		now := s.now()
		b.Status = models.BookingStatusConfirmed
		b.ConfirmedAt = &now
		return nil
	})
}

// RejectBooking declines a pending request on behalf of the driver.
func (s *BookingService) RejectBooking(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*models.Booking, error) {
	return s.mutate(ctx, id, "rejected", func(b *models.Booking, c *change) error {
		if err := requireDriver(b, actorID); err != nil {
			return err
		}
		if b.Status != models.BookingStatusPending {
			return apperrors.New(apperrors.KindInvalidTransition, "only a pending booking can be rejected")
		}
		s.markCancelled(b, models.BookingStatusCancelledByDriver, models.PartyRoleDriver, reason)
		return nil
	})
}

// CancelBooking cancels on behalf of whichever party actorID is. Held seats
// are released and a paid booking is refunded.
func (s *BookingService) CancelBooking(ctx context.Context, id, actorID primitive.ObjectID, reason string) (*models.Booking, error) {
	return s.mutate(ctx, id, "cancelled", func(b *models.Booking, c *change) error {
		role := b.RoleOf(actorID)
		to := models.BookingStatusCancelledByPassenger
		switch role {
		case models.PartyRoleDriver:
			to = models.BookingStatusCancelledByDriver
		case models.PartyRolePassenger:
		default:
			return apperrors.New(apperrors.KindNotAuthorized, "not a party of this booking")
		}

		if err := CheckStatusTransition(b, to); err != nil {
			return err
		}
		if b.Status.HoldsSeats() {
			if err := s.releaseSeats(ctx, b, c); err != nil {
				return err
			}
		}

		s.markCancelled(b, to, role, reason)

		if b.PaymentStatus == models.PaymentStatusPaid {
			b.PaymentStatus = models.PaymentStatusRefunded
			provider, reference := b.PaymentProvider, b.PaymentReference
			c.details["refund"] = true
			c.onCommit(func(ctx context.Context) {
				s.refund(ctx, b.ID, provider, reference)
			})
		}
		return nil
	})
}

func (s *BookingService) markCancelled(b *models.Booking, to models.BookingStatus, by models.PartyRole, reason string) {
	now := s.now()
	b.Status = to
	b.CancelledBy = by
	b.CancellationReason = reason
	b.CancelledAt = &now
}

func (s *BookingService) refund(ctx context.Context, bookingID primitive.ObjectID, provider, reference string) {
	log := s.logger.WithBookingID(bookingID).WithField("provider", provider)
	if s.refunder == nil || provider == "" || reference == "" {
		log.Warn("paid booking cancelled without a refundable payment reference")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	if err := s.refunder.Refund(ctx, provider, reference); err != nil {
		log.WithError(err).Error("provider refund failed")
		return
	}
	log.LogPaymentEvent(bookingID, provider, "refund_requested", string(models.PaymentStatusRefunded))
}

func (s *BookingService) StartTrip(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
	return s.mutate(ctx, id, "started", func(b *models.Booking, c *change) error {
		if err := requireDriver(b, actorID); err != nil {
			return err
		}
		if err := CheckStatusTransition(b, models.BookingStatusInProgress); err != nil {
			return err
		}
		now := s.now()
		b.Status = models.BookingStatusInProgress
		b.StartedAt = &now
		return nil
	})
}

func (s *BookingService) CompleteBooking(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
	return s.mutate(ctx, id, "completed", func(b *models.Booking, c *change) error {
		if err := requireDriver(b, actorID); err != nil {
			return err
		}
		if err := CheckStatusTransition(b, models.BookingStatusCompleted); err != nil {
			return err
		}
		now := s.now()
		b.Status = models.BookingStatusCompleted
		b.CompletedAt = &now
		return nil
	})
}

// MarkNoShow records that the passenger did not turn up. Their seats go back to the trip.
func (s *BookingService) MarkNoShow(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
	return s.mutate(ctx, id, "no_show", func(b *models.Booking, c *change) error {
		if err := requireDriver(b, actorID); err != nil {
			return err
		}
		if err := CheckStatusTransition(b, models.BookingStatusNoShow); err != nil {
			return err
		}
		if b.Status.HoldsSeats() {
			if err := s.releaseSeats(ctx, b, c); err != nil {
				return err
			}
		}
		b.Status = models.BookingStatusNoShow
		return nil
	})
}

func (s *BookingService) RateBooking(ctx context.Context, id, actorID primitive.ObjectID, score int, comment string) (*models.Booking, error) {
	if score < utils.MinRatingScore || score > utils.MaxRatingScore {
		return nil, apperrors.New(apperrors.KindInvalidInput, "rating must be between 1 and 5")
	}

	return s.mutate(ctx, id, "rated", func(b *models.Booking, c *change) error {
		if err := requirePassenger(b, actorID); err != nil {
			return err
		}
		if b.Status != models.BookingStatusCompleted {
			return apperrors.New(apperrors.KindPreconditionFailed, "only a completed booking can be rated")
		}
		if b.Rating != nil {
			return apperrors.New(apperrors.KindConflict, "booking has already been rated")
		}
		b.Rating = &models.BookingRating{
			Score:     score,
			Comment:   comment,
			CreatedAt: s.now(),
		}
		c.details["score"] = score
		return nil
	})
}

// RecordPaymentStatus applies a payment status reported by a provider.
// Repeating the current status is a no-op and notifies nobody.
func (s *BookingService) RecordPaymentStatus(ctx context.Context, id primitive.ObjectID, to models.PaymentStatus, provider, reference string) (*models.Booking, error) {
	return s.mutate(ctx, id, "payment_updated", func(b *models.Booking, c *change) error {
		changed, err := CheckPaymentTransition(b, to)
		if err != nil {
			return err
		}
		if !changed {
			return errNoChange
		}
		b.PaymentStatus = to
		if provider != "" {
			b.PaymentProvider = provider
		}
		if reference != "" {
			b.PaymentReference = reference
		}
		c.details["provider"] = provider
		return nil
	})
}

// GetBooking returns the booking if actorID is one of its parties.
func (s *BookingService) GetBooking(ctx context.Context, id, actorID primitive.ObjectID) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RoleOf(actorID) == "" {
		return nil, apperrors.New(apperrors.KindNotAuthorized, "not a party of this booking")
	}
	return b, nil
}

func (s *BookingService) ListTripBookings(ctx context.Context, tripID, actorID primitive.ObjectID) ([]*models.Booking, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != actorID {
		return nil, apperrors.New(apperrors.KindNotAuthorized, "only the trip driver can list its bookings")
	}
	return s.bookings.GetByTrip(ctx, tripID)
}
