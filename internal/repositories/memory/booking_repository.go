package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingRepository struct {
	mu       sync.RWMutex
	bookings map[primitive.ObjectID]*models.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{bookings: make(map[primitive.ObjectID]*models.Booking)}
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking.ID = primitive.NewObjectID()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	booking.Version = 1
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
	}
	return booking.Clone(), nil
}

func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[booking.ID]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "booking not found")
	}
	if stored.Version != expectedVersion {
		return apperrors.New(apperrors.KindConflict, "booking was modified concurrently")
	}

	booking.UpdatedAt = time.Now()
	booking.Version = expectedVersion + 1
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *BookingRepository) GetByTrip(ctx context.Context, tripID primitive.ObjectID) ([]*models.Booking, error) {
	return r.filter(func(b *models.Booking) bool { return b.TripID == tripID }), nil
}

func (r *BookingRepository) GetByTripAndPassenger(ctx context.Context, tripID, passengerID primitive.ObjectID) ([]*models.Booking, error) {
	return r.filter(func(b *models.Booking) bool {
		return b.TripID == tripID && b.PassengerID == passengerID
	}), nil
}

func (r *BookingRepository) filter(match func(*models.Booking) bool) []*models.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Booking
	for _, b := range r.bookings {
		if match(b) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.Hex() < result[j].ID.Hex()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
