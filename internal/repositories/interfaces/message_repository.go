package interfaces

import (
	"context"
	"time"

	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string, editedAt time.Time) error

	// GetByTrip returns the room log ordered by sequence, oldest first.
	GetByTrip(ctx context.Context, tripID primitive.ObjectID) ([]*models.Message, error)
	LastSequence(ctx context.Context, tripID primitive.ObjectID) (int64, error)
}
