package mongodb

import (
	"context"
	"fmt"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookingRepository struct {
	collection *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) interfaces.BookingRepository {
	return &bookingRepository{
		collection: db.Collection("bookings"),
	}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	booking.ID = primitive.NewObjectID()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	booking.Version = 1

	_, err := r.collection.InsertOne(ctx, booking)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

func (r *bookingRepository) Update(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	booking.UpdatedAt = time.Now()
	booking.Version = expectedVersion + 1

	result, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": booking.ID, "version": expectedVersion},
		booking,
	)
	if err != nil {
		booking.Version = expectedVersion
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		booking.Version = expectedVersion
		return apperrors.New(apperrors.KindConflict, "booking was modified concurrently")
	}

	return nil
}

func (r *bookingRepository) GetByTrip(ctx context.Context, tripID primitive.ObjectID) ([]*models.Booking, error) {
	return r.find(ctx, bson.M{"trip_id": tripID})
}

func (r *bookingRepository) GetByTripAndPassenger(ctx context.Context, tripID, passengerID primitive.ObjectID) ([]*models.Booking, error) {
	return r.find(ctx, bson.M{"trip_id": tripID, "passenger_id": passengerID})
}

func (r *bookingRepository) find(ctx context.Context, filter bson.M) ([]*models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}
