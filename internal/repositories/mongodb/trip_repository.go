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
)

type tripRepository struct {
	collection *mongo.Collection
}

func NewTripRepository(db *mongo.Database) interfaces.TripRepository {
	return &tripRepository{
		collection: db.Collection("trips"),
	}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	trip.CreatedAt = time.Now()
	trip.UpdatedAt = trip.CreatedAt

	_, err := r.collection.InsertOne(ctx, trip)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}

	return nil
}

func (r *tripRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	var trip models.Trip
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&trip)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.New(apperrors.KindNotFound, "trip not found")
		}
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	return &trip, nil
}

func (r *tripRepository) ReserveSeats(ctx context.Context, id primitive.ObjectID, seats int) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "available_seats": bson.M{"$gte": seats}},
		bson.M{
			"$inc": bson.M{"available_seats": -seats},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to reserve seats: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.New(apperrors.KindPreconditionFailed, "not enough seats available")
	}

	return nil
}

func (r *tripRepository) ReleaseSeats(ctx context.Context, id primitive.ObjectID, seats int) error {
	// $expr keeps the counter at or below total_seats when a release is replayed
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":   id,
			"$expr": bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$available_seats", seats}}, "$total_seats"}},
		},
		bson.M{
			"$inc": bson.M{"available_seats": seats},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	if result.MatchedCount == 0 {
		return apperrors.New(apperrors.KindConflict, "seat release exceeds trip capacity")
	}

	return nil
}
