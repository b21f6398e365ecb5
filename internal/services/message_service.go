package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/internal/repositories/interfaces"
	"tripchat/internal/utils"
	"tripchat/pkg/cache"
	"tripchat/pkg/logger"
	"tripchat/pkg/maps"
	"tripchat/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OfflineNotifier tells a receiver without a live session about a new message.
type OfflineNotifier interface {
	NotifyOfflineMessage(ctx context.Context, message *models.Message) error
}

type MessageConfig struct {
	MaxMessageLength int
	SendRateLimit    int
	SendRateWindow   time.Duration
	GeocodeTimeout   time.Duration
}

// MessageService sequences, stores and fans out trip chat messages.
type MessageService struct {
	messages interfaces.MessageRepository
	access   *AccessService
	router   *websocket.Router
	presence *websocket.Presence
	limiter  cache.Store
	geocoder maps.MapsProvider
	offline  OfflineNotifier
	cfg      MessageConfig
	logger   *logger.Logger
	now      func() time.Time

	seqMu sync.Mutex
	seq   map[primitive.ObjectID]int64
}

func NewMessageService(
	messages interfaces.MessageRepository,
	access *AccessService,
	router *websocket.Router,
	presence *websocket.Presence,
	limiter cache.Store,
	geocoder maps.MapsProvider,
	offline OfflineNotifier,
	cfg MessageConfig,
	log *logger.Logger,
) *MessageService {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = utils.MaxMessageLength
	}
	return &MessageService{
		messages: messages,
		access:   access,
		router:   router,
		presence: presence,
		limiter:  limiter,
		geocoder: geocoder,
		offline:  offline,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		seq:      make(map[primitive.ObjectID]int64),
	}
}

func (m *MessageService) checkContent(content string) error {
	if content == "" {
		return apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > m.cfg.MaxMessageLength {
		return apperrors.New(apperrors.KindInvalidInput,
			fmt.Sprintf("message exceeds %d characters", m.cfg.MaxMessageLength))
	}
	return nil
}

// allow applies the per-user send limit. Limiter failures let the message through.
func (m *MessageService) allow(ctx context.Context, userID primitive.ObjectID) error {
	if m.limiter == nil || m.cfg.SendRateLimit <= 0 {
		return nil
	}
	key := utils.CacheRateLimitPrefix + "chat:" + userID.Hex()
	count, err := m.limiter.IncrementWindow(ctx, key, m.cfg.SendRateWindow)
	if err != nil {
		m.logger.WithUserID(userID).WithError(err).Warn("send rate limiter unavailable")
		return nil
	}
	if count > int64(m.cfg.SendRateLimit) {
		return apperrors.ErrRateLimited
	}
	return nil
}

func (m *MessageService) reverseGeocode(ctx context.Context, loc *models.MessageLocation) {
	if m.geocoder == nil || loc.Address != "" {
		return
	}
	timeout := m.cfg.GeocodeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := m.geocoder.ReverseGeocode(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		m.logger.WithError(err).Debug("reverse geocoding skipped")
		return
	}
	loc.Address = resp.FormattedAddress()
}

// resolveReceiver picks the other party of the conversation for sender.
func resolveReceiver(rm *websocket.Room, parties *websocket.Parties, senderID primitive.ObjectID, explicit *primitive.ObjectID) (primitive.ObjectID, error) {
	var candidates []primitive.ObjectID
	if senderID == parties.DriverID {
		candidates = parties.PassengerIDs
	} else {
		candidates = []primitive.ObjectID{parties.DriverID}
	}

	if explicit != nil {
		for _, id := range candidates {
			if id == *explicit {
				return id, nil
			}
		}
		return primitive.NilObjectID, apperrors.New(apperrors.KindNotAuthorized, "receiver is not a party of this chat")
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	var inRoom []primitive.ObjectID
	for _, id := range candidates {
		if rm.HasUser(id) {
			inRoom = append(inRoom, id)
		}
	}
	if len(inRoom) == 1 {
		return inRoom[0], nil
	}
	return primitive.NilObjectID, apperrors.New(apperrors.KindInvalidInput, "receiver_id is required for this trip")
}

func (m *MessageService) nextSequence(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	m.seqMu.Lock()
	last, ok := m.seq[tripID]
	m.seqMu.Unlock()
	if ok {
		return last + 1, nil
	}

	last, err := m.messages.LastSequence(ctx, tripID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUnavailable, "failed to read message sequence", err)
	}
	return last + 1, nil
}

func (m *MessageService) setSequence(tripID primitive.ObjectID, seq int64) {
	m.seqMu.Lock()
	m.seq[tripID] = seq
	m.seqMu.Unlock()
}

func (m *MessageService) forgetSequence(tripID primitive.ObjectID) {
	m.seqMu.Lock()
	delete(m.seq, tripID)
	m.seqMu.Unlock()
}

// persist stores message under the next room sequence. A taken sequence
// means another writer got ahead, so the counter is reloaded once.
func (m *MessageService) persist(ctx context.Context, message *models.Message) error {
	for attempt := 0; ; attempt++ {
		seq, err := m.nextSequence(ctx, message.TripID)
		if err != nil {
			return err
		}
		message.Sequence = seq
		message.ID = primitive.NilObjectID

		err = m.messages.Create(ctx, message)
		if err == nil {
			m.setSequence(message.TripID, seq)
			return nil
		}
		m.forgetSequence(message.TripID)
		if apperrors.KindOf(err) != apperrors.KindConflict || attempt > 0 {
			return err
		}
	}
}

// Send validates, sequences, stores and broadcasts one message from session s.
func (m *MessageService) Send(ctx context.Context, s *websocket.Session, req *websocket.SendMessageRequest) (*models.Message, error) {
	senderID := s.UserID
	content := strings.TrimSpace(req.Content)
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperrors.New(apperrors.KindInvalidInput, fmt.Sprintf("unknown message type %q", msgType))
	}

	var location *models.MessageLocation
	if msgType == models.MessageTypeLocation {
		if req.Location == nil || !utils.IsValidCoordinates(req.Location.Latitude, req.Location.Longitude) {
			return nil, apperrors.New(apperrors.KindInvalidInput, "location message needs valid coordinates")
		}
		loc := *req.Location
		loc.Address = strings.TrimSpace(loc.Address)
		location = &loc
	} else if content == "" {
		return nil, apperrors.ErrEmptyContent
	}

	if err := m.allow(ctx, senderID); err != nil {
		return nil, err
	}

	if location != nil {
		m.reverseGeocode(ctx, location)
		if content == "" {
			content = location.Address
		}
		if content == "" {
			content = utils.FormatCoordinates(location.Latitude, location.Longitude)
		}
	}
	if err := m.checkContent(content); err != nil {
		return nil, err
	}

	message := &models.Message{
		TripID:   req.TripID,
		SenderID: senderID,
		Type:     msgType,
		Content:  content,
		Location: location,
	}

	err := m.router.WithRoom(req.TripID, func(rm *websocket.Room) error {
		parties, err := m.access.AuthorizeJoin(ctx, req.TripID, senderID)
		if err != nil {
			return err
		}
		if !rm.HasSession(s.ID) {
			return apperrors.ErrNotInRoom
		}

		receiverID, err := resolveReceiver(rm, parties, senderID, req.ReceiverID)
		if err != nil {
			return err
		}
		message.ReceiverID = receiverID
		message.CreatedAt = m.now()

		if err := m.persist(ctx, message); err != nil {
			return err
		}

		rm.Broadcast(websocket.NewTripEvent(websocket.EventNewMessage, req.TripID, message), "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithTripID(req.TripID).WithFields(map[string]interface{}{
		"message_id": message.ID.Hex(),
		"sequence":   message.Sequence,
		"type":       message.Type,
	}).Debug("message sent")

	if m.offline != nil && m.presence != nil && !m.presence.IsOnline(message.ReceiverID) {
		m.notifyOffline(ctx, message)
	}
	return message, nil
}

func (m *MessageService) notifyOffline(ctx context.Context, message *models.Message) {
	copied := *message
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), utils.NotificationTimeout)
		defer cancel()
		if err := m.offline.NotifyOfflineMessage(ctx, &copied); err != nil {
			m.logger.WithTripID(copied.TripID).WithError(err).Warn("offline message notification failed")
		}
	}()
}

// History returns the room log for userID, oldest first.
func (m *MessageService) History(ctx context.Context, tripID, userID primitive.ObjectID) ([]*models.Message, error) {
	if err := m.access.CanReadHistory(ctx, tripID, userID); err != nil {
		return nil, err
	}
	return m.messages.GetByTrip(ctx, tripID)
}

// Edit replaces the content of a message its sender wrote.
func (m *MessageService) Edit(ctx context.Context, s *websocket.Session, messageID primitive.ObjectID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if err := m.checkContent(content); err != nil {
		return nil, err
	}

	message, err := m.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != s.UserID {
		return nil, apperrors.New(apperrors.KindNotAuthorized, "only the sender can edit a message")
	}

	err = m.router.WithRoom(message.TripID, func(rm *websocket.Room) error {
		if _, err := m.access.AuthorizeJoin(ctx, message.TripID, s.UserID); err != nil {
			return err
		}
		if !rm.HasSession(s.ID) {
			return apperrors.ErrNotInRoom
		}

		editedAt := m.now()
		if err := m.messages.UpdateContent(ctx, messageID, content, editedAt); err != nil {
			return err
		}
		message.Content = content
		message.Edited = true
		message.EditedAt = &editedAt

		rm.Broadcast(websocket.NewTripEvent(websocket.EventMessageEdited, message.TripID, message), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return message, nil
}
