package interfaces

import (
	"context"

	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)

	// Update persists booking if the stored version still equals expectedVersion,
	// and bumps booking.Version on success.
	Update(ctx context.Context, booking *models.Booking, expectedVersion int64) error

	GetByTrip(ctx context.Context, tripID primitive.ObjectID) ([]*models.Booking, error)
	GetByTripAndPassenger(ctx context.Context, tripID, passengerID primitive.ObjectID) ([]*models.Booking, error)
}
