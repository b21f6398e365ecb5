package memory

import (
	"context"
	"sync"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[primitive.ObjectID]*models.User)}
}

// Put stores or replaces a user. Accounts are owned elsewhere; this exists for seeding.
func (r *UserRepository) Put(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	copied := *user
	copied.DeviceTokens = append([]models.DeviceToken(nil), user.DeviceTokens...)
	r.users[user.ID] = &copied
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "user not found")
	}
	copied := *user
	copied.DeviceTokens = append([]models.DeviceToken(nil), user.DeviceTokens...)
	return &copied, nil
}
