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

type sequenceKey struct {
	tripID   primitive.ObjectID
	sequence int64
}

type MessageRepository struct {
	mu        sync.RWMutex
	messages  map[primitive.ObjectID]*models.Message
	sequences map[sequenceKey]primitive.ObjectID
	failNext  error
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages:  make(map[primitive.ObjectID]*models.Message),
		sequences: make(map[sequenceKey]primitive.ObjectID),
	}
}

// FailNextCreate makes the next Create return err. Used by tests to exercise
// store failures.
func (r *MessageRepository) FailNextCreate(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}

	key := sequenceKey{tripID: message.TripID, sequence: message.Sequence}
	if _, taken := r.sequences[key]; taken {
		return apperrors.New(apperrors.KindConflict, "message sequence already taken")
	}

	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	r.messages[message.ID] = cloneMessage(message)
	r.sequences[key] = message.ID
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messages[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "message not found")
	}
	return cloneMessage(message), nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id primitive.ObjectID, content string, editedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[id]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "message not found")
	}
	message.Content = content
	message.Edited = true
	message.EditedAt = &editedAt
	return nil
}

func (r *MessageRepository) GetByTrip(ctx context.Context, tripID primitive.ObjectID) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Message, 0)
	for _, m := range r.messages {
		if m.TripID == tripID {
			result = append(result, cloneMessage(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

func (r *MessageRepository) LastSequence(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last int64
	for _, m := range r.messages {
		if m.TripID == tripID && m.Sequence > last {
			last = m.Sequence
		}
	}
	return last, nil
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	if m.Location != nil {
		loc := *m.Location
		c.Location = &loc
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return &c
}
