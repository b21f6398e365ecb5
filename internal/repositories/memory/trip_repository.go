package memory

import (
	"context"
	"sync"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripRepository struct {
	mu    sync.Mutex
	trips map[primitive.ObjectID]*models.Trip
}

func NewTripRepository() *TripRepository {
	return &TripRepository{trips: make(map[primitive.ObjectID]*models.Trip)}
}

func (r *TripRepository) Create(ctx context.Context, trip *models.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	trip.CreatedAt = time.Now()
	trip.UpdatedAt = trip.CreatedAt
	stored := *trip
	r.trips[trip.ID] = &stored
	return nil
}

func (r *TripRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trip, ok := r.trips[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "trip not found")
	}
	copied := *trip
	return &copied, nil
}

func (r *TripRepository) ReserveSeats(ctx context.Context, id primitive.ObjectID, seats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trip, ok := r.trips[id]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "trip not found")
	}
	if trip.AvailableSeats < seats {
		return apperrors.New(apperrors.KindPreconditionFailed, "not enough seats available")
	}
	trip.AvailableSeats -= seats
	trip.UpdatedAt = time.Now()
	return nil
}

func (r *TripRepository) ReleaseSeats(ctx context.Context, id primitive.ObjectID, seats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trip, ok := r.trips[id]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "trip not found")
	}
	if trip.AvailableSeats+seats > trip.TotalSeats {
		return apperrors.New(apperrors.KindConflict, "seat release exceeds trip capacity")
	}
	trip.AvailableSeats += seats
	trip.UpdatedAt = time.Now()
	return nil
}
