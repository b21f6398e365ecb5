package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"
	"tripchat/pkg/logger"
	"tripchat/pkg/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const archiveTimeout = time.Minute

type Transcript struct {
	TripID     string            `json:"trip_id"`
	ArchivedAt time.Time         `json:"archived_at"`
	Messages   []*models.Message `json:"messages"`
}

// ArchiveService stores the chat transcript of a trip once a booking on it completes.
type ArchiveService struct {
	messages interfaces.MessageRepository
	storage  storage.StorageProvider
	prefix   string
	logger   *logger.Logger
	now      func() time.Time
	run      func(func())
}

func NewArchiveService(messages interfaces.MessageRepository, store storage.StorageProvider, prefix string, log *logger.Logger) *ArchiveService {
	return &ArchiveService{
		messages: messages,
		storage:  store,
		prefix:   prefix,
		logger:   log,
		now:      time.Now,
		run:      func(fn func()) { go fn() },
	}
}

func (a *ArchiveService) BookingChanged(ctx context.Context, before, after *models.Booking) {
	if before == nil || before.Status == after.Status || after.Status != models.BookingStatusCompleted {
		return
	}

	tripID := after.TripID
	a.run(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if _, err := a.Archive(ctx, tripID); err != nil {
			a.logger.WithTripID(tripID).WithError(err).Error("failed to archive trip transcript")
		}
	})
}

func (a *ArchiveService) key(tripID primitive.ObjectID) string {
	return path.Join(a.prefix, tripID.Hex()+".json")
}

// Archive uploads the current transcript of tripID, replacing any earlier copy.
func (a *ArchiveService) Archive(ctx context.Context, tripID primitive.ObjectID) (*storage.UploadResponse, error) {
	messages, err := a.messages.GetByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	body, err := json.Marshal(&Transcript{
		TripID:     tripID.Hex(),
		ArchivedAt: a.now().UTC(),
		Messages:   messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	resp, err := a.storage.Upload(ctx, &storage.UploadRequest{
		Key:         a.key(tripID),
		Reader:      bytes.NewReader(body),
		ContentType: "application/json",
		Size:        int64(len(body)),
		Metadata:    map[string]string{"trip_id": tripID.Hex()},
	})
	if err != nil {
		return nil, err
	}

	a.logger.WithTripID(tripID).WithFields(map[string]interface{}{
		"key":      resp.Key,
		"messages": len(messages),
	}).Info("trip transcript archived")
	return resp, nil
}
