package interfaces

import (
	"context"

	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)

	// ReserveSeats decrements available seats only if at least seats remain.
	ReserveSeats(ctx context.Context, id primitive.ObjectID, seats int) error
	ReleaseSeats(ctx context.Context, id primitive.ObjectID, seats int) error
}
