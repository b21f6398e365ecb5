package websocket

import (
	"encoding/json"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

// Server to client events.
const (
	EventConnect           EventType = "connect"
	EventDisconnect        EventType = "disconnect"
	EventConnectError      EventType = "connect_error"
	EventUserOnline        EventType = "user_online"
	EventUserOffline       EventType = "user_offline"
	EventOnlineUsers       EventType = "online_users"
	EventNewMessage        EventType = "new_message"
	EventMessageEdited     EventType = "message_edited"
	EventTripStatusUpdated EventType = "trip_status_updated"
	EventChatClosed        EventType = "chat_closed"
	EventResponse          EventType = "response"
)

// Client to server operations.
const (
	OpAuth            EventType = "auth"
	OpJoinTrip        EventType = "join_trip"
	OpLeaveTrip       EventType = "leave_trip"
	OpSendMessage     EventType = "send_message"
	OpGetTripMessages EventType = "get_trip_messages"
	OpEditMessage     EventType = "edit_message"
)

// Disconnect reasons.
const (
	ReasonClientClosed = "client_closed"
	ReasonSuperseded   = "superseded"
	ReasonSlowConsumer = "slow_consumer"
	ReasonPongTimeout  = "pong_timeout"
	ReasonShutdown     = "server_shutdown"
)

type Event struct {
	Type      EventType     `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	TripID    string        `json:"trip_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

type ErrorPayload struct {
	Code      apperrors.Kind `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
}

// Request is an inbound client frame.
type Request struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	TripID    string          `json:"trip_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type AuthPayload struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id,omitempty"`
}

type ConnectPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type OnlineUsersPayload struct {
	TripID  string   `json:"trip_id"`
	UserIDs []string `json:"user_ids"`
}

type ChatClosedPayload struct {
	TripID string `json:"trip_id"`
	Reason string `json:"reason"`
}

type SendMessagePayload struct {
	Content    string                  `json:"content"`
	Type       models.MessageType      `json:"type,omitempty"`
	ReceiverID string                  `json:"receiver_id,omitempty"`
	Location   *models.MessageLocation `json:"location,omitempty"`
}

type EditMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type JoinResult struct {
	TripID string `json:"trip_id"`
	Joined bool   `json:"joined"`
}

type HistoryResult struct {
	TripID   string            `json:"trip_id"`
	Messages []*models.Message `json:"messages"`
}

// SendMessageRequest is a validated send_message operation.
type SendMessageRequest struct {
	TripID     primitive.ObjectID
	Content    string
	Type       models.MessageType
	ReceiverID *primitive.ObjectID
	Location   *models.MessageLocation
}

func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewTripEvent(eventType EventType, tripID primitive.ObjectID, data interface{}) *Event {
	ev := NewEvent(eventType, data)
	ev.TripID = tripID.Hex()
	return ev
}

func NewResponse(requestID string, data interface{}, err error) *Event {
	ev := NewEvent(EventResponse, data)
	ev.RequestID = requestID
	if err != nil {
		ev.Data = nil
		ev.Error = NewErrorPayload(err)
	}
	return ev
}

func NewErrorPayload(err error) *ErrorPayload {
	return &ErrorPayload{
		Code:      apperrors.KindOf(err),
		Message:   apperrors.PublicMessage(err),
		Retryable: apperrors.Retryable(err),
	}
}

// Err turns a wire error back into an *apperrors.Error.
func (p *ErrorPayload) Err() *apperrors.Error {
	return apperrors.New(p.Code, p.Message)
}
