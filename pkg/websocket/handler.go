package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tripchat/internal/apperrors"
	"tripchat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type HandlerConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	EnableCompression bool
	AllowedOrigins    []string
}

type Handler struct {
	manager  *SessionManager
	router   *Router
	exchange MessageExchange
	upgrader websocket.Upgrader
	cfg      HandlerConfig
	logger   *logger.Logger
}

func NewHandler(manager *SessionManager, router *Router, exchange MessageExchange, cfg HandlerConfig, log *logger.Logger) *Handler {
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = (cfg.PongTimeout * 9) / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}

	h := &Handler{
		manager:  manager,
		router:   router,
		exchange: exchange,
		cfg:      cfg,
		logger:   log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin:       h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and authenticates the connection with
// a bearer header, a token query parameter, or a first auth frame.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	deviceID := c.Query("device_id")
	if deviceID == "" {
		deviceID = c.GetHeader("X-Device-ID")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	if token == "" {
		auth, err := h.readAuthFrame(conn)
		if err != nil {
			h.reject(conn, err)
			return
		}
		token = auth.Token
		if deviceID == "" {
			deviceID = auth.DeviceID
		}
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	session, err := h.manager.Connect(c.Request.Context(), token, deviceID)
	if err != nil {
		h.reject(conn, err)
		return
	}

	client := &Client{
		conn:     conn,
		session:  session,
		manager:  h.manager,
		router:   h.router,
		exchange: h.exchange,
		cfg: connConfig{
			pongWait:       h.cfg.PongTimeout,
			pingPeriod:     h.cfg.PingInterval,
			writeWait:      h.cfg.WriteTimeout,
			maxMessageSize: h.cfg.MaxMessageSize,
		},
		logger: h.logger.WithSessionID(session.ID).WithUserID(session.UserID),
	}

	go client.writePump()
	go client.readPump()
}

func (h *Handler) readAuthFrame(conn *websocket.Conn) (*AuthPayload, error) {
	conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, message, err := conn.ReadMessage()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthenticationFailed, "no auth frame received", err)
	}

	var req Request
	if err := json.Unmarshal(message, &req); err != nil || req.Type != OpAuth {
		return nil, apperrors.New(apperrors.KindAuthenticationFailed, "first frame must be auth")
	}

	var auth AuthPayload
	if err := json.Unmarshal(req.Data, &auth); err != nil || auth.Token == "" {
		return nil, apperrors.New(apperrors.KindAuthenticationFailed, "missing credential")
	}
	return &auth, nil
}

func (h *Handler) reject(conn *websocket.Conn, err error) {
	ev := NewEvent(EventConnectError, nil)
	ev.Error = NewErrorPayload(err)

	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if writeErr := conn.WriteJSON(ev); writeErr == nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(ev.Error.Code)))
	}
	conn.Close()
}

// Shutdown disconnects every live session.
func (h *Handler) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.manager.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
