// Package chatclient is a reconnecting client for the trip chat websocket.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/internal/models"
	"tripchat/pkg/logger"
	ws "tripchat/pkg/websocket"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

type Options struct {
	URL      string
	Token    string
	DeviceID string

	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
	EventBuffer    int

	Dialer *websocket.Dialer

	// OnReconcile receives the history of each room rejoined after a reconnect.
	OnReconcile   func(tripID string, messages []*models.Message)
	OnStateChange func(State)
}

// Frame is a decoded server frame. Data stays raw until the caller knows its type.
type Frame struct {
	Type      ws.EventType     `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	TripID    string           `json:"trip_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Error     *ws.ErrorPayload `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

type Client struct {
	opts   Options
	logger *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	sessionID string
	rooms     map[string]struct{}
	pending   map[string]chan *Frame
	closed    bool

	writeMu sync.Mutex
	events  chan *Frame
	done    chan struct{}
}

func New(opts Options, log *logger.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		opts:    opts,
		logger:  log,
		state:   StateDisconnected,
		rooms:   make(map[string]struct{}),
		pending: make(map[string]chan *Frame),
		events:  make(chan *Frame, opts.EventBuffer),
		done:    make(chan struct{}),
	}
}

// Events carries server pushes: new_message, presence, trip status and chat_closed.
// Frames are dropped when the buffer is full.
func (c *Client) Events() <-chan *Frame {
	return c.events
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Rooms returns the trip ids the client will rejoin after a reconnect.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	cb := c.opts.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// Connect dials and authenticates once. Credential rejections are returned
// as AuthenticationFailed and never retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.New(apperrors.KindUnavailable, "client is closed")
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, sessionID, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.attach(conn, sessionID)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, string, error) {
	target, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInvalidInput, "invalid server url", err)
	}
	if c.opts.DeviceID != "" {
		q := target.Query()
		q.Set("device_id", c.opts.DeviceID)
		target.RawQuery = q.Encode()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, _, err := c.opts.Dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindUnavailable, "failed to reach chat server", err)
	}

	deadline := time.Now().Add(c.opts.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return nil, "", apperrors.Wrap(apperrors.KindUnavailable, "handshake interrupted", err)
		}
		switch f.Type {
		case ws.EventConnect:
			var payload ws.ConnectPayload
			if err := f.Decode(&payload); err != nil {
				conn.Close()
				return nil, "", apperrors.Wrap(apperrors.KindInternal, "malformed connect frame", err)
			}
			return conn, payload.SessionID, nil
		case ws.EventConnectError:
			conn.Close()
			if f.Error != nil {
				return nil, "", f.Error.Err()
			}
			return nil, "", apperrors.ErrAuthenticationFailed
		}
	}
}

func (c *Client) attach(conn *websocket.Conn, sessionID string) {
	c.mu.Lock()
	c.conn = conn
	c.sessionID = sessionID
	c.mu.Unlock()

	c.setState(StateConnected)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.WithError(err).Warn("dropping malformed frame")
			continue
		}
		c.dispatch(&f)
	}
}

func (c *Client) dispatch(f *Frame) {
	switch f.Type {
	case ws.EventResponse:
		c.mu.Lock()
		ch, ok := c.pending[f.RequestID]
		delete(c.pending, f.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- f
		}
		return
	case ws.EventChatClosed:
		c.mu.Lock()
		delete(c.rooms, f.TripID)
		c.mu.Unlock()
	}

	select {
	case c.events <- f:
	default:
		c.logger.WithField("type", f.Type).Warn("event buffer full, frame dropped")
	}
}

// failPending wakes every waiting request with a nil frame. Callers hold c.mu.
func (c *Client) failPending() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) connectionLost(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPending()
	closed := c.closed
	c.mu.Unlock()
	conn.Close()

	if closed {
		return
	}
	c.logger.WithError(cause).Info("chat connection lost, reconnecting")
	c.setState(StateReconnecting)
	go c.reconnect()
}

func (c *Client) reconnect() {
	delay := c.opts.InitialDelay
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-c.done:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		conn, sessionID, err := c.dial(ctx)
		cancel()
		if err == nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				conn.Close()
				return
			}
			c.attach(conn, sessionID)
			c.reconcile()
			return
		}

		c.logger.WithError(err).WithField("attempt", attempt).Warn("reconnect attempt failed")
		if apperrors.KindOf(err) == apperrors.KindAuthenticationFailed {
			break
		}
		delay *= 2
		if delay > c.opts.MaxDelay {
			delay = c.opts.MaxDelay
		}
	}

	c.setState(StateDisconnected)
}

// reconcile rejoins the remembered rooms and refetches their history.
func (c *Client) reconcile() {
	for _, tripID := range c.Rooms() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		err := c.Join(ctx, tripID)
		if err != nil {
			cancel()
			kind := apperrors.KindOf(err)
			if kind == apperrors.KindNotAuthorized || kind == apperrors.KindRoomNotEligible {
				c.forget(tripID)
			}
			c.logger.WithError(err).WithField("trip_id", tripID).Warn("failed to rejoin trip chat")
			continue
		}

		messages, err := c.History(ctx, tripID)
		cancel()
		if err != nil {
			c.logger.WithError(err).WithField("trip_id", tripID).Warn("failed to refetch trip history")
			continue
		}
		if c.opts.OnReconcile != nil {
			c.opts.OnReconcile(tripID, messages)
		}
	}
}

func (c *Client) forget(tripID string) {
	c.mu.Lock()
	delete(c.rooms, tripID)
	c.mu.Unlock()
}

func (c *Client) request(ctx context.Context, op ws.EventType, tripID string, data interface{}) (*Frame, error) {
	req := &ws.Request{Type: op, RequestID: uuid.NewString(), TripID: tripID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		req.Data = raw
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	ch := make(chan *Frame, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, apperrors.New(apperrors.KindUnavailable, "not connected")
	}
	c.pending[req.RequestID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.RequestTimeout))
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(req.RequestID)
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "failed to send request", err)
	}

	select {
	case f := <-ch:
		if f == nil {
			return nil, apperrors.New(apperrors.KindUnavailable, "connection lost before response")
		}
		if f.Error != nil {
			return nil, f.Error.Err()
		}
		return f, nil
	case <-ctx.Done():
		c.dropPending(req.RequestID)
		return nil, apperrors.Wrap(apperrors.KindUnavailable, "request timed out", ctx.Err())
	}
}

func (c *Client) dropPending(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

func (c *Client) Join(ctx context.Context, tripID string) error {
	if _, err := c.request(ctx, ws.OpJoinTrip, tripID, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[tripID] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Client) Leave(ctx context.Context, tripID string) error {
	c.forget(tripID)
	_, err := c.request(ctx, ws.OpLeaveTrip, tripID, nil)
	return err
}

func (c *Client) Send(ctx context.Context, tripID string, payload *ws.SendMessagePayload) (*models.Message, error) {
	f, err := c.request(ctx, ws.OpSendMessage, tripID, payload)
	if err != nil {
		return nil, err
	}
	var message models.Message
	if err := f.Decode(&message); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &message, nil
}

func (c *Client) History(ctx context.Context, tripID string) ([]*models.Message, error) {
	f, err := c.request(ctx, ws.OpGetTripMessages, tripID, nil)
	if err != nil {
		return nil, err
	}
	var result ws.HistoryResult
	if err := f.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return result.Messages, nil
}

func (c *Client) Edit(ctx context.Context, messageID, content string) (*models.Message, error) {
	f, err := c.request(ctx, ws.OpEditMessage, "", &ws.EditMessagePayload{MessageID: messageID, Content: content})
	if err != nil {
		return nil, err
	}
	var message models.Message
	if err := f.Decode(&message); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &message, nil
}

// Close disconnects for good and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPending()
	c.mu.Unlock()

	close(c.done)
	c.setState(StateDisconnected)

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}
