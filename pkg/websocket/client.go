package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/pkg/logger"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const requestTimeout = 10 * time.Second

// MessageExchange serves the chat operations of a session.
type MessageExchange interface {
	Send(ctx context.Context, s *Session, req *SendMessageRequest) (*models.Message, error)
	History(ctx context.Context, tripID, userID primitive.ObjectID) ([]*models.Message, error)
	Edit(ctx context.Context, s *Session, messageID primitive.ObjectID, content string) (*models.Message, error)
}

type connConfig struct {
	pongWait       time.Duration
	pingPeriod     time.Duration
	writeWait      time.Duration
	maxMessageSize int64
}

// Client pumps frames between one websocket connection and its Session.
type Client struct {
	conn     *websocket.Conn
	session  *Session
	manager  *SessionManager
	router   *Router
	exchange MessageExchange
	cfg      connConfig
	logger   *logger.Logger
}

func (c *Client) readPump() {
	reason := ReasonClientClosed
	defer func() {
		c.manager.Disconnect(c.session.ID, reason)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error")
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				reason = ReasonPongTimeout
			}
			return
		}

		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	outbound := c.session.Outbound()
	for {
		select {
		case ev, ok := <-outbound:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		c.session.Deliver(NewResponse("", nil, apperrors.New(apperrors.KindInvalidInput, "malformed frame")))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.SessionIDKey, c.session.ID)

	data, err := c.dispatch(ctx, &req)
	if err != nil && apperrors.KindOf(err) == apperrors.KindInternal {
		c.logger.WithContext(ctx).WithError(err).WithField("op", req.Type).Error("WebSocket request failed")
	}
	c.session.Deliver(NewResponse(req.RequestID, data, err))
}

func (c *Client) dispatch(ctx context.Context, req *Request) (interface{}, error) {
	switch req.Type {
	case OpJoinTrip:
		tripID, err := parseID(req.TripID, "trip_id")
		if err != nil {
			return nil, err
		}
		if err := c.router.Join(ctx, c.session, tripID); err != nil {
			return nil, err
		}
		return &JoinResult{TripID: tripID.Hex(), Joined: true}, nil

	case OpLeaveTrip:
		tripID, err := parseID(req.TripID, "trip_id")
		if err != nil {
			return nil, err
		}
		c.router.Leave(c.session, tripID)
		return &JoinResult{TripID: tripID.Hex(), Joined: false}, nil

	case OpSendMessage:
		sendReq, err := decodeSendMessage(req)
		if err != nil {
			return nil, err
		}
		return c.exchange.Send(ctx, c.session, sendReq)

	case OpGetTripMessages:
		tripID, err := parseID(req.TripID, "trip_id")
		if err != nil {
			return nil, err
		}
		messages, err := c.exchange.History(ctx, tripID, c.session.UserID)
		if err != nil {
			return nil, err
		}
		return &HistoryResult{TripID: tripID.Hex(), Messages: messages}, nil

	case OpEditMessage:
		var payload EditMessagePayload
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return nil, apperrors.New(apperrors.KindInvalidInput, "invalid edit_message payload")
		}
		messageID, err := parseID(payload.MessageID, "message_id")
		if err != nil {
			return nil, err
		}
		return c.exchange.Edit(ctx, c.session, messageID, payload.Content)

	default:
		return nil, apperrors.New(apperrors.KindInvalidInput, "unknown operation "+string(req.Type))
	}
}

func decodeSendMessage(req *Request) (*SendMessageRequest, error) {
	tripID, err := parseID(req.TripID, "trip_id")
	if err != nil {
		return nil, err
	}

	var payload SendMessagePayload
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return nil, apperrors.New(apperrors.KindInvalidInput, "invalid send_message payload")
		}
	}

	sendReq := &SendMessageRequest{
		TripID:   tripID,
		Content:  payload.Content,
		Type:     payload.Type,
		Location: payload.Location,
	}
	if sendReq.Type == "" {
		sendReq.Type = models.MessageTypeText
	}
	if payload.ReceiverID != "" {
		receiverID, err := parseID(payload.ReceiverID, "receiver_id")
		if err != nil {
			return nil, err
		}
		sendReq.ReceiverID = &receiverID
	}
	return sendReq, nil
}

func parseID(raw, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, apperrors.New(apperrors.KindInvalidInput, "invalid "+field)
	}
	return id, nil
}
